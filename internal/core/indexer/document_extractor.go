package indexer

import (
	"bytes"
	"context"
	"strings"

	"code.sajari.com/docconv"

	"github.com/alihussainiF1/talk2folder/internal/core"
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractText converts document bytes to plain text. Empty extraction is an
// unsupported-file condition, never retried.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Plain text needs no conversion and docconv rejects some of its variants.
	if isPlainText(mimeType) {
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", core.ErrUnsupportedFile
		}
		return text, nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, e.useReadability)
	if err != nil {
		return "", core.Permanentf("docconv convert", err)
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", core.ErrUnsupportedFile
	}
	return text, nil
}

func isPlainText(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/x-yaml", "application/xml":
		return true
	}
	return false
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)
