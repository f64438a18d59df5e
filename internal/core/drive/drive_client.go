package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/alihussainiF1/talk2folder/internal/core"
)

// Google Workspace MIME types that must be exported rather than downloaded.
const (
	MimeTypeGoogleDoc    = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypeGoogleSlides = "application/vnd.google-apps.presentation"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
)

const (
	ExportMimeText = "text/plain"
	ExportMimeCSV  = "text/csv"
)

// MaxDownloadSize caps a single file download (20MB).
const MaxDownloadSize = 20 * 1024 * 1024

const listFields = "nextPageToken, files(id, name, mimeType, size, md5Checksum)"

// Client implements core.SourceClient on the Drive v3 API.
type Client struct {
	svc *drive.Service
}

func NewClient(ctx context.Context, credsPath string) (*Client, error) {
	var opts []option.ClientOption
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListFiles enumerates every non-folder file under folderRef, descending into
// subfolders breadth-first.
func (c *Client) ListFiles(ctx context.Context, folderRef string) ([]core.RemoteFile, error) {
	var out []core.RemoteFile
	queue := []string{folderRef}

	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		query := fmt.Sprintf("'%s' in parents and trashed = false", parent)
		pageToken := ""
		for {
			call := c.svc.Files.List().Q(query).Fields(listFields).PageSize(200).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			res, err := call.Do()
			if err != nil {
				return nil, classifyDrive("drive list", err)
			}
			for _, f := range res.Files {
				if f.MimeType == MimeTypeFolder {
					queue = append(queue, f.Id)
					continue
				}
				out = append(out, core.RemoteFile{
					ID:          f.Id,
					Name:        f.Name,
					MimeType:    f.MimeType,
					SizeBytes:   f.Size,
					ContentHash: f.Md5Checksum,
				})
			}
			pageToken = res.NextPageToken
			if pageToken == "" {
				break
			}
		}
	}
	return out, nil
}

// Download fetches file bytes. Google Workspace files are exported to a
// plain format; the effective mime type of the returned bytes is reported.
func (c *Client) Download(ctx context.Context, file core.RemoteFile) ([]byte, string, error) {
	exportMime := exportMimeFor(file.MimeType)

	var (
		resp *http.Response
		err  error
	)
	if exportMime != "" {
		resp, err = c.svc.Files.Export(file.ID, exportMime).Context(ctx).Download()
	} else {
		resp, err = c.svc.Files.Get(file.ID).Context(ctx).Download()
	}
	if err != nil {
		return nil, "", classifyDrive("drive download", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
	if err != nil {
		return nil, "", core.Transientf("drive download read", err)
	}

	mime := file.MimeType
	if exportMime != "" {
		mime = exportMime
	}
	return data, mime, nil
}

func exportMimeFor(mimeType string) string {
	switch mimeType {
	case MimeTypeGoogleDoc, MimeTypeGoogleSlides:
		return ExportMimeText
	case MimeTypeGoogleSheet:
		return ExportMimeCSV
	}
	return ""
}

func classifyDrive(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Transientf(op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return core.Transientf(op, err)
		}
		return core.Permanentf(op, err)
	}
	return core.Transientf(op, err)
}

var _ core.SourceClient = (*Client)(nil)
