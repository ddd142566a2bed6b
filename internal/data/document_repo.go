package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/parlorchat/parlor/internal/errors"
	"github.com/parlorchat/parlor/internal/ports"
)

var _ ports.DocumentStore = (*DocumentRepo)(nil)

// DocumentRepo stores JSON documents in the documents table, keyed by (collection, key).
type DocumentRepo struct {
	DB    *sql.DB
	Clock TimeProvider
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{DB: db, Clock: &RealTimeProvider{}}
}

// Get decodes the stored body into dst. A missing row reports (false, nil).
func (r *DocumentRepo) Get(ctx context.Context, collection, key string, dst any) (bool, error) {
	if collection == "" || key == "" {
		return false, ErrDocumentKeyRequired
	}
	var body []byte
	err := r.DB.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND key = $2`, collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get document %s/%s: %w", collection, key, apperrors.MapDBError(err))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return true, fmt.Errorf("unmarshal document %s/%s: %w", collection, key, err)
	}
	return true, nil
}

// Set creates or replaces the document.
func (r *DocumentRepo) Set(ctx context.Context, collection, key string, value any) error {
	if collection == "" || key == "" {
		return ErrDocumentKeyRequired
	}
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, key, err)
	}
	now := r.Clock.Now().UTC()
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO documents (collection, key, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collection, key) DO UPDATE
		SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		collection, key, body, now)
	if err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, key, apperrors.MapDBError(err))
	}
	return nil
}

// Delete removes the document; deleting a missing document is not an error.
func (r *DocumentRepo) Delete(ctx context.Context, collection, key string) error {
	if collection == "" || key == "" {
		return ErrDocumentKeyRequired
	}
	if _, err := r.DB.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, apperrors.MapDBError(err))
	}
	return nil
}
