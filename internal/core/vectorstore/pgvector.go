package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/alihussainiF1/talk2folder/internal/core"
)

// PgvectorStore implements core.VectorStore on the same Postgres instance the
// relational records live in. The namespace maps to the folder_id column so
// retrieval stays inside one folder.
type PgvectorStore struct {
	db *sql.DB
}

func NewPgvectorStore(db *sql.DB) *PgvectorStore {
	return &PgvectorStore{db: db}
}

// Upsert writes chunk records keyed by their stable id. A re-index of the
// same file overwrites rather than duplicates.
func (s *PgvectorStore) Upsert(ctx context.Context, namespace string, records []core.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunks (id, folder_id, source_file_id, chunk_index, file_name, mime_type, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding,
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		vec := pgvector.NewVector(rec.Vector)
		if _, err := stmt.ExecContext(ctx,
			rec.ID, namespace, rec.Meta.SourceFileID, rec.Meta.ChunkIndex,
			rec.Meta.FileName, rec.Meta.MimeType, rec.Meta.Text, vec,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert chunk %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Query finds the top-k most similar chunks within the namespace, best first.
func (s *PgvectorStore) Query(ctx context.Context, namespace string, vector []float32, k int) ([]core.ScoredChunk, error) {
	const q = `
		SELECT source_file_id, chunk_index, file_name, mime_type, text, 1 - (embedding <=> $2) AS score
		FROM chunks
		WHERE folder_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(vector)
	rows, err := s.db.QueryContext(ctx, q, namespace, vec, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ScoredChunk
	for rows.Next() {
		var sc core.ScoredChunk
		sc.Meta.FolderID = namespace
		if err := rows.Scan(
			&sc.Meta.SourceFileID, &sc.Meta.ChunkIndex, &sc.Meta.FileName,
			&sc.Meta.MimeType, &sc.Meta.Text, &sc.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PgvectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE folder_id = $1`, namespace)
	return err
}

func (s *PgvectorStore) CountNamespace(ctx context.Context, namespace string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks WHERE folder_id = $1`, namespace).Scan(&n)
	return n, err
}

var _ core.VectorStore = (*PgvectorStore)(nil)
