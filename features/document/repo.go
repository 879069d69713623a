package document

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (filename, file_hash, status) VALUES ($1, $2, $3) RETURNING id`
	return r.db.QueryRowContext(ctx, query, doc.Filename, doc.FileHash, doc.Status).Scan(&doc.ID)
}

// ExistsByHash ignores failed rows: a document whose ingest never stored
// chunks must stay re-uploadable.
func (r *PostgresRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE file_hash = $1 AND deleted_at IS NULL AND status <> 'failed')`
	err := r.db.QueryRowContext(ctx, query, hash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// SupersedeFailed soft-deletes failed rows for the hash so the partial
// unique index on file_hash accepts the replacement row.
func (r *PostgresRepo) SupersedeFailed(ctx context.Context, hash string) error {
	query := `UPDATE documents SET deleted_at = NOW(), updated_at = NOW() WHERE file_hash = $1 AND status = $2 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, hash, StatusFailed)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT id, filename, file_hash, status, chunk_count, COALESCE(error, ''), created_at::text, updated_at::text
		FROM documents WHERE id = $1 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Filename, &doc.FileHash, &doc.Status, &doc.ChunkCount, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT id, filename, file_hash, status, chunk_count, COALESCE(error, '')
		FROM documents WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.FileHash, &d.Status, &d.ChunkCount, &d.Error); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	query := `UPDATE documents SET status = $1, chunk_count = $2, error = NULL, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusCompleted, chunkCount, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE documents SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusFailed, reason, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func (r *PostgresRepo) Purge(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents`)
	return err
}
