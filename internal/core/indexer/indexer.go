package indexer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alihussainiF1/talk2folder/internal/core"
	objectclient "github.com/alihussainiF1/talk2folder/internal/core/object-client"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

// FolderIndexer orchestrates the background indexing pipeline:
//
// db:        persistence for folders, source files and handles.
// vec:       similarity-search store for rag chunks.
// files:     the model provider's native file store (fast path).
// source:    remote drive listing and download.
// embedder:  embedding provider.
// extractor: raw bytes to plain text.
// archive:   object storage keeping raw downloads for later refresh.
// jobs:      in-memory queue of folder IDs to process.
type FolderIndexer struct {
	db        core.DbClient
	vec       core.VectorStore
	files     core.NativeFileStore
	source    core.SourceClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	archive   core.ObjectClient
	cfg       *IndexConfig
	jobs      chan string
}

// NewFolderIndexer constructs the indexer with a bounded job queue (64).
func NewFolderIndexer(
	db core.DbClient,
	vec core.VectorStore,
	files core.NativeFileStore,
	source core.SourceClient,
	emb core.EmbeddingProvider,
	extractor core.DocumentExtractor,
	archive core.ObjectClient,
	cfg *IndexConfig,
) *FolderIndexer {
	if cfg == nil {
		cfg = DefaultIndexConfig()
	}
	return &FolderIndexer{
		db: db, vec: vec, files: files, source: source,
		embedder: emb, extractor: extractor, archive: archive,
		cfg:  cfg,
		jobs: make(chan string, 64),
	}
}

// Start runs worker goroutines reading from the jobs channel, plus a sweeper
// that fails folders stuck in "indexing" past the staleness cutoff.
func (i *FolderIndexer) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Println("FolderIndexer: worker shutting down.")
					return
				case folderID := <-i.jobs:
					log.Printf("FolderIndexer: processing folder %s on worker %d", folderID, w)
					if err := i.processOne(ctx, folderID); err != nil {
						log.Printf("FolderIndexer: folder %s failed: %v", folderID, err)
					}
				}
			}
		}(w)
	}

	go i.sweepStale(ctx)
}

// Begin claims the folder for indexing and schedules it. Returns
// core.ErrConcurrentModification when an indexing run already holds it, so
// callers can reject the request synchronously.
func (i *FolderIndexer) Begin(ctx context.Context, folderID string) error {
	ok, err := i.db.ClaimFolderForIndexing(ctx, folderID)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrConcurrentModification
	}

	select {
	case i.jobs <- folderID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetFolderIndex drops everything derived from a folder's content: rag
// chunks, provider file uploads and handle rows. Used on delete and before a
// rebuild.
func (i *FolderIndexer) ResetFolderIndex(ctx context.Context, folderID string) error {
	if err := i.vec.DeleteNamespace(ctx, folderID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	handles, err := i.db.ListNativeHandles(ctx, folderID)
	if err != nil {
		return fmt.Errorf("list handles: %w", err)
	}
	for _, h := range handles {
		// Provider-side uploads expire on their own; deletion is best effort.
		if err := i.files.Delete(ctx, h.Handle); err != nil {
			log.Printf("FolderIndexer: delete provider file %s: %v", h.Handle, err)
		}
	}
	return i.db.DeleteNativeHandles(ctx, folderID)
}

// payload pairs a discovered source file with its downloaded bytes.
type payload struct {
	file models.SourceFile
	data []byte
}

// processOne rebuilds a folder's index end to end. The folder must already
// be claimed (status "indexing"). Every exit settles the folder into ready
// or failed.
func (i *FolderIndexer) processOne(ctx context.Context, folderID string) error {
	// Indexing outlives the request that triggered it.
	proctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()

	folder, err := i.db.GetFolderByID(proctx, folderID)
	if err != nil {
		return fmt.Errorf("folder not found: %w", err)
	}

	if err := i.ResetFolderIndex(proctx, folderID); err != nil {
		return i.settleFailed(proctx, folderID, err)
	}

	var remote []core.RemoteFile
	err = retryTransient(proctx, i.cfg.RetryAttempts, time.Second, func() error {
		var lerr error
		remote, lerr = i.source.ListFiles(proctx, folder.DriveFolderID)
		return lerr
	})
	if err != nil {
		return i.settleFailed(proctx, folderID, fmt.Errorf("list source files: %w", err))
	}

	if len(remote) == 0 {
		if err := i.db.ReplaceSourceFiles(proctx, folderID, nil); err != nil {
			return i.settleFailed(proctx, folderID, err)
		}
		return i.db.FinishFolderIndexing(proctx, folderID, models.FolderReady, "", "", 0, "")
	}

	payloads, downloadErr := i.downloadAll(proctx, folderID, remote)
	if len(payloads) == 0 {
		return i.settleFailed(proctx, folderID, fmt.Errorf("no files downloadable: %w", downloadErr))
	}

	files := make([]models.SourceFile, 0, len(payloads))
	for _, p := range payloads {
		files = append(files, p.file)
	}
	if err := i.db.ReplaceSourceFiles(proctx, folderID, files); err != nil {
		return i.settleFailed(proctx, folderID, err)
	}

	mode := models.ModeFast
	if downloadErr != nil {
		// A partial folder can still be queried chunk by chunk, but native
		// whole-file prompting needs every file present.
		mode = models.ModeRag
	} else {
		mode = ChooseMode(files)
	}

	if mode == models.ModeFast {
		handles, err := i.uploadFast(proctx, payloads)
		if err == nil {
			if err := i.db.InsertNativeHandles(proctx, handles); err != nil {
				return i.settleFailed(proctx, folderID, err)
			}
			return i.db.FinishFolderIndexing(proctx, folderID, models.FolderReady, models.ModeFast, "", len(payloads), "")
		}
		log.Printf("FolderIndexer: folder %s fast path failed, falling back to rag: %v", folderID, err)
	}

	indexed, lastErr := i.indexChunks(proctx, payloads)
	if indexed == 0 {
		return i.settleFailed(proctx, folderID, fmt.Errorf("no files indexable: %w", lastErr))
	}

	lastErrText := ""
	if lastErr != nil {
		lastErrText = lastErr.Error()
	}
	return i.db.FinishFolderIndexing(proctx, folderID, models.FolderReady, models.ModeRag, i.embedder.ModelName(), indexed, lastErrText)
}

// downloadAll fetches every remote file concurrently, archiving raw bytes as
// it goes. Files that cannot be fetched are skipped; the first failure is
// returned alongside the successes so the caller can decide mode.
func (i *FolderIndexer) downloadAll(ctx context.Context, folderID string, remote []core.RemoteFile) ([]payload, error) {
	results := make([]*payload, len(remote))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.DownloadWorkers)

	var (
		mu       sync.Mutex
		firstErr error
	)
	for idx, rf := range remote {
		idx, rf := idx, rf
		g.Go(func() error {
			var (
				data []byte
				mime string
			)
			err := retryTransient(gctx, i.cfg.RetryAttempts, time.Second, func() error {
				var derr error
				data, mime, derr = i.source.Download(gctx, rf)
				return derr
			})
			if err != nil {
				log.Printf("FolderIndexer: download %s (%s): %v", rf.Name, rf.ID, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}

			sf := models.SourceFile{
				ID:            uuid.NewString(),
				FolderID:      folderID,
				DriveFileID:   rf.ID,
				Name:          rf.Name,
				MimeType:      mime,
				DriveMimeType: rf.MimeType,
				SizeBytes:     int64(len(data)),
				ContentHash:   rf.ContentHash,
			}

			key := objectclient.ArchiveKey(folderID, sf.ID)
			if err := i.archive.UploadFile(gctx, key, data, mime); err != nil {
				log.Printf("FolderIndexer: archive %s: %v", rf.Name, err)
			}

			results[idx] = &payload{file: sf, data: data}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]payload, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, firstErr
}

func (i *FolderIndexer) settleFailed(ctx context.Context, folderID string, cause error) error {
	if err := i.db.FinishFolderIndexing(ctx, folderID, models.FolderFailed, "", "", 0, cause.Error()); err != nil {
		log.Printf("FolderIndexer: settle failed for %s: %v", folderID, err)
	}
	return cause
}

// sweepStale periodically fails folders stuck in "indexing", releasing the
// claim so a later re-index can proceed.
func (i *FolderIndexer) sweepStale(ctx context.Context) {
	ticker := time.NewTicker(i.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := i.db.FailStaleIndexing(ctx, i.cfg.StaleAfter, "indexing timed out")
			if err != nil {
				log.Printf("FolderIndexer: stale sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("FolderIndexer: swept %d stale indexing folder(s)", n)
			}
		}
	}
}
