package indexer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

// indexChunks runs the rag pipeline over every payload, a bounded number of
// files at a time. Files fail independently; the count of successfully
// indexed files and the last failure cause are returned.
func (i *FolderIndexer) indexChunks(ctx context.Context, payloads []payload) (int, error) {
	var (
		mu      sync.Mutex
		indexed int
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.DownloadWorkers)
	for _, p := range payloads {
		p := p
		g.Go(func() error {
			if err := i.indexFile(gctx, p); err != nil {
				log.Printf("FolderIndexer: index %s: %v", p.file.Name, err)
				mu.Lock()
				lastErr = fmt.Errorf("%s: %w", p.file.Name, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			indexed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return indexed, lastErr
}

// indexFile extracts, chunks, embeds and upserts one file. Chunk IDs are
// "{source_file_id}:{chunk_index}" so a repeat run replaces in place.
func (i *FolderIndexer) indexFile(ctx context.Context, p payload) error {
	text, err := i.extractor.ExtractText(ctx, p.data, p.file.MimeType)
	if err != nil {
		return err
	}

	chunks := splitChunks(text, i.cfg.TargetTokens, i.cfg.OverlapTokens)
	if len(chunks) == 0 {
		return core.ErrUnsupportedFile
	}

	for start := 0; start < len(chunks); start += i.cfg.BatchSize {
		end := start + i.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		var vectors [][]float32
		err := retryTransient(ctx, i.cfg.RetryAttempts, time.Second, func() error {
			var eerr error
			vectors, eerr = i.embedder.EmbedTexts(ctx, texts)
			return eerr
		})
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}

		records := make([]core.ChunkRecord, len(batch))
		for j, c := range batch {
			records[j] = core.ChunkRecord{
				ID:     fmt.Sprintf("%s:%d", p.file.ID, c.Pos),
				Vector: vectors[j],
				Meta: core.ChunkMeta{
					FolderID:     p.file.FolderID,
					SourceFileID: p.file.ID,
					FileName:     p.file.Name,
					MimeType:     p.file.MimeType,
					ChunkIndex:   c.Pos,
					Text:         c.Text,
				},
			}
		}
		if err := i.vec.Upsert(ctx, p.file.FolderID, records); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
	}
	return nil
}

func toModelsHandle(sourceFileID string, up *core.UploadedFile, mimeType, id string) models.NativeFileHandle {
	return models.NativeFileHandle{
		ID:           id,
		SourceFileID: sourceFileID,
		Handle:       up.Handle,
		URI:          up.URI,
		MimeType:     mimeType,
		ExpiresAt:    up.ExpiresAt,
	}
}
