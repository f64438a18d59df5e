package core

import "context"

// DocumentExtractor turns raw document bytes into plain text. The mime type
// hint selects the parsing strategy.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}
