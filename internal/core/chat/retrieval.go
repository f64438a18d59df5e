package chat

import (
	"context"
	"fmt"

	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

// Retrieval tuning. The raw query fans wide, per-file diversity keeps one
// verbose document from crowding out the rest, and the prompt ceiling bounds
// context size.
const (
	retrievalTopK    = 12
	maxChunksPerFile = 3
	maxPromptChunks  = 8
)

// Retriever answers rag-path context queries against a folder's chunk store.
type Retriever struct {
	vec      core.VectorStore
	embedder core.EmbeddingProvider
}

func NewRetriever(vec core.VectorStore, embedder core.EmbeddingProvider) *Retriever {
	return &Retriever{vec: vec, embedder: embedder}
}

// Retrieve embeds the question and returns the most similar chunks, capped
// per file and overall. A folder pinned to a different embedding model than
// the live one cannot be queried; the stored vectors live in another space.
func (r *Retriever) Retrieve(ctx context.Context, folder *models.Folder, question string) ([]core.ChunkMeta, error) {
	if folder.EmbedModel != r.embedder.ModelName() {
		return nil, fmt.Errorf("folder indexed with %q but embedder is %q, re-index required",
			folder.EmbedModel, r.embedder.ModelName())
	}

	vectors, err := r.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vectors))
	}

	hits, err := r.vec.Query(ctx, folder.ID, vectors[0], retrievalTopK)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	perFile := map[string]int{}
	out := make([]core.ChunkMeta, 0, maxPromptChunks)
	for _, h := range hits {
		if perFile[h.Meta.SourceFileID] >= maxChunksPerFile {
			continue
		}
		perFile[h.Meta.SourceFileID]++
		out = append(out, h.Meta)
		if len(out) == maxPromptChunks {
			break
		}
	}
	return out, nil
}
