package models

import (
	"time"
)

// Folder lifecycle states. Transitions are owned by the indexer.
const (
	FolderPending  = "pending"
	FolderIndexing = "indexing"
	FolderReady    = "ready"
	FolderFailed   = "failed"
)

// How a folder's content was made queryable. Empty until indexing picks one.
const (
	ModeFast = "fast" // whole files in the model's native file store
	ModeRag  = "rag"  // chunked + embedded + vector search
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Folder is a linked remote drive folder and the root of the ownership chain.
type Folder struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	DriveFolderID string    `db:"drive_folder_id" json:"drive_folder_id"`
	Name          string    `db:"name" json:"name"`
	Status        string    `db:"status" json:"status"`         // pending | indexing | ready | failed
	IndexMode     string    `db:"index_mode" json:"index_mode"` // "" until indexed
	EmbedModel    string    `db:"embed_model" json:"embed_model,omitempty"`
	FileCount     int       `db:"file_count" json:"file_count"`
	LastError     string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SourceFile is one file discovered inside a folder. MimeType describes the
// downloaded bytes; DriveMimeType is the listed type at the source, which
// differs for exported Workspace files. Immutable once indexed; replaced
// wholesale on re-index.
type SourceFile struct {
	ID            string    `db:"id" json:"id"`
	FolderID      string    `db:"folder_id" json:"folder_id"`
	DriveFileID   string    `db:"drive_file_id" json:"drive_file_id"`
	Name          string    `db:"name" json:"name"`
	MimeType      string    `db:"mime_type" json:"mime_type"`
	DriveMimeType string    `db:"drive_mime_type" json:"drive_mime_type"`
	SizeBytes     int64     `db:"size_bytes" json:"size_bytes"`
	ContentHash   string    `db:"content_hash" json:"content_hash"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// NativeFileHandle records a fast-path upload to the provider's file store.
// Rows exist only while the owning folder is in fast mode.
type NativeFileHandle struct {
	ID           string    `db:"id" json:"id"`
	SourceFileID string    `db:"source_file_id" json:"source_file_id"`
	Handle       string    `db:"handle" json:"handle"` // provider-side resource name
	URI          string    `db:"uri" json:"uri"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Conversation is one chat thread against a folder.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	FolderID  string    `db:"folder_id" json:"folder_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	Messages  []Message `db:"-" json:"messages,omitempty"`
}

// Message is append-only; citations are filled in once streaming completes.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	Role           string     `db:"role" json:"role"`
	Content        string     `db:"content" json:"content"`
	Citations      []Citation `db:"citations" json:"citations,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Citation points a generated answer back to a source file, and to a chunk
// when the folder was indexed in rag mode.
type Citation struct {
	FileName     string `json:"file_name"`
	SourceFileID string `json:"source_file_id"`
	MimeType     string `json:"mime_type"`
	ChunkIndex   *int   `json:"chunk_index,omitempty"`
}
