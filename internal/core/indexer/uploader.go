package indexer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/alihussainiF1/talk2folder/internal/core"
	objectclient "github.com/alihussainiF1/talk2folder/internal/core/object-client"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

// Handles expiring within this window are refreshed proactively so a prompt
// never references a file the provider has already dropped.
const refreshMargin = 2 * time.Minute

// uploadFast pushes every payload into the provider's file store. Office
// formats are converted to plain text first. Any failure aborts the whole
// batch: partial native context would silently narrow answers, so the caller
// falls back to rag instead.
func (i *FolderIndexer) uploadFast(ctx context.Context, payloads []payload) ([]models.NativeFileHandle, error) {
	handles := make([]models.NativeFileHandle, 0, len(payloads))

	for _, p := range payloads {
		h, err := i.uploadOne(ctx, p.file, p.data)
		if err != nil {
			for _, prev := range handles {
				if derr := i.files.Delete(ctx, prev.Handle); derr != nil {
					log.Printf("FolderIndexer: cleanup upload %s: %v", prev.Handle, derr)
				}
			}
			return nil, fmt.Errorf("upload %s: %w", p.file.Name, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (i *FolderIndexer) uploadOne(ctx context.Context, sf models.SourceFile, data []byte) (models.NativeFileHandle, error) {
	mime := sf.MimeType
	if needsConversion(mime) {
		text, err := i.extractor.ExtractText(ctx, data, mime)
		if err != nil {
			return models.NativeFileHandle{}, err
		}
		data = []byte(text)
		mime = "text/plain"
	}

	var up *core.UploadedFile
	err := retryTransient(ctx, i.cfg.RetryAttempts, time.Second, func() error {
		var uerr error
		up, uerr = i.files.Upload(ctx, sf.Name, data, mime)
		return uerr
	})
	if err != nil {
		return models.NativeFileHandle{}, err
	}
	return toModelsHandle(sf.ID, up, mime, uuid.NewString()), nil
}

// EnsureFreshHandles returns a prompt-ready file reference per source file,
// re-uploading any handle at or past expiry. Refresh bytes come from the
// archive; the source drive is the fallback when the archived copy is gone.
func (i *FolderIndexer) EnsureFreshHandles(ctx context.Context, folder *models.Folder) ([]core.NativeFile, error) {
	handles, err := i.db.ListNativeHandles(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	sources, err := i.db.ListSourceFiles(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.SourceFile, len(sources))
	for _, sf := range sources {
		byID[sf.ID] = sf
	}

	cutoff := time.Now().Add(refreshMargin)
	out := make([]core.NativeFile, 0, len(handles))
	for _, h := range handles {
		sf, ok := byID[h.SourceFileID]
		if !ok {
			return nil, fmt.Errorf("handle %s has no source file", h.ID)
		}

		if h.ExpiresAt.After(cutoff) {
			out = append(out, core.NativeFile{Name: sf.Name, URI: h.URI, MimeType: h.MimeType})
			continue
		}

		fresh, err := i.refreshHandle(ctx, folder.ID, sf, h)
		if err != nil {
			return nil, fmt.Errorf("refresh %s: %w", sf.Name, err)
		}
		out = append(out, core.NativeFile{Name: sf.Name, URI: fresh.URI, MimeType: fresh.MimeType})
	}
	return out, nil
}

func (i *FolderIndexer) refreshHandle(ctx context.Context, folderID string, sf models.SourceFile, old models.NativeFileHandle) (models.NativeFileHandle, error) {
	data, err := i.archive.GetFile(ctx, objectclient.ArchiveKey(folderID, sf.ID))
	if err != nil {
		log.Printf("FolderIndexer: archive miss for %s, refetching from source: %v", sf.Name, err)
		// The refetch must carry the listed source type, not the effective
		// type of the stored bytes, so Workspace files export again.
		data, _, err = i.source.Download(ctx, core.RemoteFile{
			ID:       sf.DriveFileID,
			Name:     sf.Name,
			MimeType: sf.DriveMimeType,
		})
		if err != nil {
			return models.NativeFileHandle{}, err
		}
	}

	fresh, err := i.uploadOne(ctx, sf, data)
	if err != nil {
		return models.NativeFileHandle{}, err
	}
	fresh.ID = old.ID

	if err := i.db.ReplaceNativeHandle(ctx, &fresh); err != nil {
		return models.NativeFileHandle{}, err
	}
	return fresh, nil
}
