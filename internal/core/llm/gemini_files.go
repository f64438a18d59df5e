package llm

import (
	"bytes"
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/alihussainiF1/talk2folder/internal/core"
)

// GeminiFileStore implements core.NativeFileStore against the provider's
// file API. Uploads expire provider-side; the expiry comes back with the
// handle so the fast path can refresh lazily.
type GeminiFileStore struct {
	client *genai.Client
}

func NewGeminiFileStore(ctx context.Context, apiKey string) (*GeminiFileStore, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiFileStore{client: cl}, nil
}

func (s *GeminiFileStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *GeminiFileStore) Upload(ctx context.Context, name string, data []byte, mimeType string) (*core.UploadedFile, error) {
	f, err := s.client.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{
		DisplayName: name,
		MIMEType:    mimeType,
	})
	if err != nil {
		return nil, classify("gemini upload file", err)
	}
	return &core.UploadedFile{
		Handle:    f.Name,
		URI:       f.URI,
		ExpiresAt: f.ExpirationTime,
	}, nil
}

func (s *GeminiFileStore) Delete(ctx context.Context, handle string) error {
	if err := s.client.DeleteFile(ctx, handle); err != nil {
		return classify("gemini delete file", err)
	}
	return nil
}

var _ core.NativeFileStore = (*GeminiFileStore)(nil)
