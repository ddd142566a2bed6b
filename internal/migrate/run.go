package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect describes how migrations are stored and recorded for one database engine.
type Dialect struct {
	Name string
	dir  string
	// createTable creates the bookkeeping table.
	createTable string
	exists      string
	record      string
}

var (
	// Postgres applies migrations/postgres to a pgx-backed database.
	Postgres = Dialect{
		Name: "postgres",
		dir:  "migrations/postgres",
		createTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		exists: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
		record: `INSERT INTO schema_migrations (version) VALUES ($1)`,
	}

	// SQLite applies migrations/sqlite to a modernc.org/sqlite database.
	SQLite = Dialect{
		Name: "sqlite",
		dir:  "migrations/sqlite",
		createTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		exists: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`,
		record: `INSERT INTO schema_migrations (version) VALUES (?)`,
	}
)

// Run applies the Postgres migrations. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB) error {
	return Apply(ctx, db, Postgres)
}

// Apply applies every embedded migration for d that has not been recorded yet,
// in file-name order, each in its own transaction.
func Apply(ctx context.Context, db *sql.DB, d Dialect) error {
	if _, err := db.ExecContext(ctx, d.createTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := Files(d)
	if err != nil {
		return err
	}
	for _, f := range files {
		info := migrationInfo{
			versionStr: strings.TrimSuffix(f, ".sql"),
			file:       f,
		}
		if applyErr := applyMigration(ctx, db, d, info); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Files lists the migration file names for d in application order.
func Files(d Dialect) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, d.dir)
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", d.Name, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// migrationInfo holds information about a migration for processing.
type migrationInfo struct {
	versionStr string
	file       string
}

func applyMigration(ctx context.Context, db *sql.DB, d Dialect, info migrationInfo) error {
	var exists bool
	if err := db.QueryRowContext(ctx, d.exists, info.versionStr).Scan(&exists); err != nil {
		return fmt.Errorf("check migration %s: %w", info.file, err)
	}
	if exists {
		return nil
	}

	sqlBytes, err := migrationsFS.ReadFile(d.dir + "/" + info.file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", info.file, err)
	}

	logger := slog.Default().With("component", "migrations", "dialect", d.Name)
	logger.InfoContext(ctx, "applying migration", "version", info.versionStr)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback transaction", "err", rollbackErr, "migration_file", info.file)
		}
	}()

	if _, execErr := tx.ExecContext(ctx, string(sqlBytes)); execErr != nil {
		return fmt.Errorf("exec migration %s: %w", info.file, execErr)
	}
	if _, recErr := tx.ExecContext(ctx, d.record, info.versionStr); recErr != nil {
		return fmt.Errorf("record migration %s: %w", info.file, recErr)
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %s: %w", info.file, commitErr)
	}
	return nil
}
