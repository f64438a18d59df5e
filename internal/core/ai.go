package core

import (
	"context"
	"time"
)

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// ModelName identifies the embedding space; folders pin it at index time.
	ModelName() string
}

// NativeFile references an upload in the provider's file store, usable as a
// prompt part for native multimodal reasoning.
type NativeFile struct {
	Name     string // original file name, used for citation matching
	URI      string
	MimeType string
}

// PromptTurn is one prior conversation turn supplied as context.
type PromptTurn struct {
	Role string // "user" or "assistant"
	Text string
}

// Prompt is the tagged union consumed by one streaming generation call:
// exactly one of Files (fast path) or Chunks (rag path) is populated.
type Prompt struct {
	System   string
	History  []PromptTurn
	Question string
	Files    []NativeFile
	Chunks   []ChunkMeta
}

// StreamDelta is one fragment of a streamed generation. A non-nil Err is
// terminal; the channel is closed after it.
type StreamDelta struct {
	Text string
	Err  error
}

type LLMProvider interface {
	// GenerateStream starts a streaming generation and returns a channel of
	// fragments. The channel is closed when the stream ends or fails.
	GenerateStream(ctx context.Context, p *Prompt) (<-chan StreamDelta, error)
}

// UploadedFile is the provider's record of a native file upload.
type UploadedFile struct {
	Handle    string // provider resource name, used for deletion/lookup
	URI       string
	ExpiresAt time.Time
}

// NativeFileStore wraps the provider's file store used by the fast path.
type NativeFileStore interface {
	Upload(ctx context.Context, name string, data []byte, mimeType string) (*UploadedFile, error)
	Delete(ctx context.Context, handle string) error
}
