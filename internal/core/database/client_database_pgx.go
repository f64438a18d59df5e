package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/alihussainiF1/talk2folder/internal/config"
	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the underlying pool so the vector store can share it.
func (c *DatabaseClient) DB() *sql.DB { return c.db }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Folders

func (c *DatabaseClient) CreateFolder(ctx context.Context, folder *models.Folder) error {
	if folder == nil {
		return errors.New("nil folder")
	}
	const q = `
		INSERT INTO folders (id, user_id, drive_folder_id, name, status, index_mode, embed_model, file_count, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := c.db.ExecContext(ctx, q,
		folder.ID, folder.UserID, folder.DriveFolderID, folder.Name,
		folder.Status, folder.IndexMode, folder.EmbedModel, folder.FileCount, folder.LastError)
	return err
}

func (c *DatabaseClient) GetFolderByID(ctx context.Context, id string) (*models.Folder, error) {
	const q = `
		SELECT id, user_id, drive_folder_id, name, status, index_mode, embed_model, file_count, last_error, created_at, updated_at
		FROM folders WHERE id = $1
	`
	var f models.Folder
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&f.ID, &f.UserID, &f.DriveFolderID, &f.Name, &f.Status, &f.IndexMode,
		&f.EmbedModel, &f.FileCount, &f.LastError, &f.CreatedAt, &f.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *DatabaseClient) ListFoldersByUser(ctx context.Context, userID string) ([]models.Folder, error) {
	const q = `
		SELECT id, user_id, drive_folder_id, name, status, index_mode, embed_model, file_count, last_error, created_at, updated_at
		FROM folders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(
			&f.ID, &f.UserID, &f.DriveFolderID, &f.Name, &f.Status, &f.IndexMode,
			&f.EmbedModel, &f.FileCount, &f.LastError, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ClaimFolderForIndexing is the single-writer gate for the status machine:
// only one run can move a folder into 'indexing' at a time.
func (c *DatabaseClient) ClaimFolderForIndexing(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE folders
		SET status = 'indexing', last_error = '', updated_at = now()
		WHERE id = $1 AND status <> 'indexing'
	`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *DatabaseClient) FinishFolderIndexing(ctx context.Context, id, status, indexMode, embedModel string, fileCount int, lastError string) error {
	const q = `
		UPDATE folders
		SET status = $2, index_mode = $3, embed_model = $4, file_count = $5, last_error = $6, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, indexMode, embedModel, fileCount, lastError)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("folder not found: %s", id)
	}
	return nil
}

// FailStaleIndexing forces folders stuck in 'indexing' past the threshold to
// 'failed' so a crash mid-index leaves them recoverable via re-index.
func (c *DatabaseClient) FailStaleIndexing(ctx context.Context, olderThan time.Duration, reason string) (int64, error) {
	const q = `
		UPDATE folders
		SET status = 'failed', last_error = $2, updated_at = now()
		WHERE status = 'indexing' AND updated_at < $1
	`
	res, err := c.db.ExecContext(ctx, q, time.Now().Add(-olderThan), reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *DatabaseClient) DeleteFolder(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM folders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Source files

// ReplaceSourceFiles swaps the folder's file catalog in one transaction so a
// re-index never leaves a mixed listing behind.
func (c *DatabaseClient) ReplaceSourceFiles(ctx context.Context, folderID string, files []models.SourceFile) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_files WHERE folder_id = $1`, folderID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO source_files (id, folder_id, drive_file_id, name, mime_type, drive_mime_type, size_bytes, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range files {
		f := &files[i]
		if _, err := stmt.ExecContext(ctx,
			f.ID, folderID, f.DriveFileID, f.Name, f.MimeType, f.DriveMimeType, f.SizeBytes, f.ContentHash,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) ListSourceFiles(ctx context.Context, folderID string) ([]models.SourceFile, error) {
	const q = `
		SELECT id, folder_id, drive_file_id, name, mime_type, drive_mime_type, size_bytes, content_hash, created_at
		FROM source_files
		WHERE folder_id = $1
		ORDER BY name ASC
	`
	rows, err := c.db.QueryContext(ctx, q, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SourceFile
	for rows.Next() {
		var f models.SourceFile
		if err := rows.Scan(
			&f.ID, &f.FolderID, &f.DriveFileID, &f.Name, &f.MimeType, &f.DriveMimeType, &f.SizeBytes, &f.ContentHash, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Native file handles

func (c *DatabaseClient) InsertNativeHandles(ctx context.Context, handles []models.NativeFileHandle) error {
	if len(handles) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO native_file_handles (id, source_file_id, handle, uri, mime_type, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range handles {
		h := &handles[i]
		if _, err := stmt.ExecContext(ctx,
			h.ID, h.SourceFileID, h.Handle, h.URI, h.MimeType, h.ExpiresAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) ListNativeHandles(ctx context.Context, folderID string) ([]models.NativeFileHandle, error) {
	const q = `
		SELECT h.id, h.source_file_id, h.handle, h.uri, h.mime_type, h.expires_at, h.created_at
		FROM native_file_handles h
		JOIN source_files sf ON sf.id = h.source_file_id
		WHERE sf.folder_id = $1
		ORDER BY h.created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.NativeFileHandle
	for rows.Next() {
		var h models.NativeFileHandle
		if err := rows.Scan(
			&h.ID, &h.SourceFileID, &h.Handle, &h.URI, &h.MimeType, &h.ExpiresAt, &h.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReplaceNativeHandle records a refreshed upload for a source file.
func (c *DatabaseClient) ReplaceNativeHandle(ctx context.Context, handle *models.NativeFileHandle) error {
	if handle == nil {
		return errors.New("nil handle")
	}
	const q = `
		UPDATE native_file_handles
		SET handle = $2, uri = $3, expires_at = $4, created_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, handle.ID, handle.Handle, handle.URI, handle.ExpiresAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("native handle not found: %s", handle.ID)
	}
	return nil
}

func (c *DatabaseClient) DeleteNativeHandles(ctx context.Context, folderID string) error {
	const q = `
		DELETE FROM native_file_handles
		WHERE source_file_id IN (SELECT id FROM source_files WHERE folder_id = $1)
	`
	_, err := c.db.ExecContext(ctx, q, folderID)
	return err
}

// Conversations

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	const q = `
		INSERT INTO conversations (id, user_id, folder_id, title)
		VALUES ($1, $2, $3, $4)
	`
	_, err := c.db.ExecContext(ctx, q, conv.ID, conv.UserID, conv.FolderID, conv.Title)
	return err
}

func (c *DatabaseClient) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	const q = `
		SELECT id, user_id, folder_id, title, created_at, updated_at
		FROM conversations WHERE id = $1
	`
	var conv models.Conversation
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&conv.ID, &conv.UserID, &conv.FolderID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *DatabaseClient) ListConversationsByFolder(ctx context.Context, folderID string) ([]models.Conversation, error) {
	const q = `
		SELECT id, user_id, folder_id, title, created_at, updated_at
		FROM conversations
		WHERE folder_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(
			&conv.ID, &conv.UserID, &conv.FolderID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) TouchConversation(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, id)
	return err
}

// Messages

func (c *DatabaseClient) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	var citations any
	if len(msg.Citations) > 0 {
		b, err := json.Marshal(msg.Citations)
		if err != nil {
			return fmt.Errorf("marshal citations: %w", err)
		}
		citations = b
	}
	const q = `
		INSERT INTO messages (id, conversation_id, role, content, citations)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.ExecContext(ctx, q, msg.ID, msg.ConversationID, msg.Role, msg.Content, citations)
	return err
}

func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, citations, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListRecentMessages returns the trailing window in chronological order.
func (c *DatabaseClient) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, citations, created_at
		FROM (
			SELECT id, conversation_id, role, content, citations, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) tail
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var (
			m   models.Message
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &raw, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.Citations); err != nil {
				return nil, fmt.Errorf("unmarshal citations: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ core.DbClient = (*DatabaseClient)(nil)
