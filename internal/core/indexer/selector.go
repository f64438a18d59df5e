package indexer

import (
	"github.com/alihussainiF1/talk2folder/internal/models"
)

// Fast-path eligibility thresholds. A folder breaching any of them is
// indexed in rag mode instead.
const (
	FastMaxFiles     = 50
	FastMaxTotalSize = 100 * 1024 * 1024
	FastMaxFileSize  = 10 * 1024 * 1024
)

// nativeMIMEs are the content types the model's file store accepts directly.
var nativeMIMEs = map[string]bool{
	"application/pdf":        true,
	"text/plain":             true,
	"text/markdown":          true,
	"text/html":              true,
	"text/css":               true,
	"text/csv":               true,
	"text/xml":               true,
	"text/rtf":               true,
	"application/json":       true,
	"text/x-python":          true,
	"application/x-python":   true,
	"text/javascript":        true,
	"application/javascript": true,
	"image/png":              true,
	"image/jpeg":             true,
	"image/webp":             true,
	"image/heic":             true,
	"image/heif":             true,
}

// ChooseMode picks fast when every file fits the native-upload constraints,
// rag otherwise. The whole folder gets one mode.
func ChooseMode(files []models.SourceFile) string {
	if len(files) == 0 || len(files) > FastMaxFiles {
		return models.ModeRag
	}

	var total int64
	for _, f := range files {
		if f.SizeBytes > FastMaxFileSize {
			return models.ModeRag
		}
		total += f.SizeBytes
		if !nativeMIMEs[f.MimeType] && !needsConversion(f.MimeType) {
			return models.ModeRag
		}
	}
	if total > FastMaxTotalSize {
		return models.ModeRag
	}
	return models.ModeFast
}

// needsConversion reports whether a fast-path file is an office format that
// must be converted to plain text before hitting the file store.
func needsConversion(mimeType string) bool {
	switch mimeType {
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.ms-powerpoint":
		return true
	}
	return false
}
