package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// GenerateStream builds the model request from the tagged-union prompt and
// streams fragments onto the returned channel. A terminal failure is sent as
// the last delta before the channel closes.
func (g *GeminiLLM) GenerateStream(ctx context.Context, p *core.Prompt) (<-chan core.StreamDelta, error) {
	m := g.client.GenerativeModel(g.modelName)
	if p.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(p.System)},
		}
	}

	session := m.StartChat()
	session.History = historyToContents(p.History)

	parts, err := promptParts(p)
	if err != nil {
		return nil, err
	}

	iter := session.SendMessageStream(ctx, parts...)

	ch := make(chan core.StreamDelta)
	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				select {
				case ch <- core.StreamDelta{Err: classify("gemini stream", err)}:
				case <-ctx.Done():
				}
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			select {
			case ch <- core.StreamDelta{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

var _ core.LLMProvider = (*GeminiLLM)(nil)

// promptParts realizes the tagged union: native file references for the fast
// path, inline provenance-marked chunk texts for the rag path.
func promptParts(p *core.Prompt) ([]genai.Part, error) {
	var parts []genai.Part
	switch {
	case len(p.Files) > 0:
		for _, f := range p.Files {
			parts = append(parts, genai.FileData{MIMEType: f.MimeType, URI: f.URI})
		}
		parts = append(parts, genai.Text(fmt.Sprintf("Please analyze the document(s) above and answer: %s", p.Question)))
	case len(p.Chunks) > 0:
		var sb strings.Builder
		for _, ch := range p.Chunks {
			fmt.Fprintf(&sb, "[File: %s]\n%s\n---\n", ch.FileName, ch.Text)
		}
		parts = append(parts, genai.Text(fmt.Sprintf("Context:\n%s\nQuestion: %s", sb.String(), p.Question)))
	default:
		return nil, fmt.Errorf("prompt has neither files nor chunks")
	}
	return parts, nil
}

func historyToContents(turns []core.PromptTurn) []*genai.Content {
	var out []*genai.Content
	for _, t := range turns {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
