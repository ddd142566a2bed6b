// Package sqlite persists the identity backend's current credential in a local
// SQLite file so a sign-in survives process restarts without external services.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/parlorchat/parlor/internal/migrate"
	"github.com/parlorchat/parlor/internal/ports"
	_ "modernc.org/sqlite"
)

var _ ports.CredentialStore = (*CredentialStore)(nil)

// CredentialStore provides SQLite-backed persistence for credentials.
type CredentialStore struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens and migrates a credential store at path.
func Open(ctx context.Context, path string) (*CredentialStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate.Apply(ctx, sqlDB, migrate.SQLite); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &CredentialStore{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the underlying SQLite connection.
func (s *CredentialStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save replaces the credential stored under cred.Key.
func (s *CredentialStore) Save(ctx context.Context, cred ports.Credential) error {
	if cred.Key == "" {
		return errors.New("credential key cannot be empty")
	}
	if !cred.ExpiresAt.After(s.now()) {
		return errors.New("credential is expired")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO credentials (key, user_id, token, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE
		SET user_id = excluded.user_id, token = excluded.token, expires_at = excluded.expires_at`,
		cred.Key, cred.UserID, cred.Token, cred.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Get returns the credential under key. Expired rows are removed and reported as missing.
func (s *CredentialStore) Get(ctx context.Context, key string) (ports.Credential, error) {
	var (
		cred      ports.Credential
		expiresAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT key, user_id, token, expires_at FROM credentials WHERE key = ?`, key).
		Scan(&cred.Key, &cred.UserID, &cred.Token, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Credential{}, ports.ErrCredentialNotFound
	}
	if err != nil {
		return ports.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	cred.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if s.now().After(cred.ExpiresAt) {
		if delErr := s.Delete(ctx, key); delErr != nil {
			return ports.Credential{}, delErr
		}
		return ports.Credential{}, ports.ErrCredentialNotFound
	}
	return cred, nil
}

// Delete removes the credential under key; a missing key is not an error.
func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
