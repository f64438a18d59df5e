package core

import (
	"context"
	"time"

	"github.com/alihussainiF1/talk2folder/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	CreateFolder(ctx context.Context, folder *models.Folder) error
	GetFolderByID(ctx context.Context, id string) (*models.Folder, error)
	ListFoldersByUser(ctx context.Context, userID string) ([]models.Folder, error)
	// ClaimFolderForIndexing atomically moves a folder out of any settled
	// state into "indexing". Returns false when another indexing run holds
	// the folder, making the status transition single-writer.
	ClaimFolderForIndexing(ctx context.Context, id string) (bool, error)
	FinishFolderIndexing(ctx context.Context, id, status, indexMode, embedModel string, fileCount int, lastError string) error
	FailStaleIndexing(ctx context.Context, olderThan time.Duration, reason string) (int64, error)
	DeleteFolder(ctx context.Context, id string) error

	ReplaceSourceFiles(ctx context.Context, folderID string, files []models.SourceFile) error
	ListSourceFiles(ctx context.Context, folderID string) ([]models.SourceFile, error)

	InsertNativeHandles(ctx context.Context, handles []models.NativeFileHandle) error
	ListNativeHandles(ctx context.Context, folderID string) ([]models.NativeFileHandle, error)
	ReplaceNativeHandle(ctx context.Context, handle *models.NativeFileHandle) error
	DeleteNativeHandles(ctx context.Context, folderID string) error

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	ListConversationsByFolder(ctx context.Context, folderID string) ([]models.Conversation, error)
	TouchConversation(ctx context.Context, id string) error

	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	Close() error
}

// ChunkMeta is the metadata stored alongside each embedded chunk and
// returned by similarity search.
type ChunkMeta struct {
	FolderID     string
	SourceFileID string
	FileName     string
	MimeType     string
	ChunkIndex   int
	Text         string
}

// ChunkRecord is one upsert unit for the similarity-search store. ID must be
// stable across re-indexing runs ("{source_file_id}:{chunk_index}") so a
// repeat upsert replaces rather than duplicates.
type ChunkRecord struct {
	ID     string
	Vector []float32
	Meta   ChunkMeta
}

// ScoredChunk is a similarity-search hit, higher score = more similar.
type ScoredChunk struct {
	Meta  ChunkMeta
	Score float64
}

// VectorStore is the similarity-search service. Namespaces partition the
// store per folder so retrieval never leaks across folders.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, records []ChunkRecord) error
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]ScoredChunk, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	CountNamespace(ctx context.Context, namespace string) (int, error)
}

// RemoteFile is a file enumerated from the remote document source.
type RemoteFile struct {
	ID          string
	Name        string
	MimeType    string
	SizeBytes   int64
	ContentHash string
}

// SourceClient lists and downloads files from the remote drive. Download
// returns the effective mime type, which differs from the listed one when
// the source exports a proprietary format.
type SourceClient interface {
	ListFiles(ctx context.Context, folderRef string) ([]RemoteFile, error)
	Download(ctx context.Context, file RemoteFile) (data []byte, mimeType string, err error)
}

// ObjectClient defines interactions with S3 or any object storage. Used as
// a raw-content archive so re-index and handle refresh can avoid a second
// trip to the document source.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) error
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}
