package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	sqlDB
}

// NewSQLiteStore opens a SQLite database, sets file permissions, and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One writer at a time; the pipeline never overlaps runs.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	// The database holds OAuth refresh tokens.
	if err := os.Chmod(dsn, 0600); err != nil && !os.IsNotExist(err) {
		_ = db.Close()
		return nil, fmt.Errorf("setting file permissions: %w", err)
	}

	if err := MigrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{sqlDB{db: db}}, nil
}

// MigrateSQLite applies the embedded SQLite migrations.
func MigrateSQLite(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// DB returns the underlying database connection for migration commands.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) GetState(ctx context.Context, provider string) (*IngestionState, error) {
	return s.getState(ctx, provider)
}

func (s *SQLiteStore) UpsertState(ctx context.Context, state IngestionState) error {
	return s.upsertState(ctx, state)
}

func (s *SQLiteStore) ListStates(ctx context.Context) ([]IngestionState, error) {
	return s.listStates(ctx)
}

func (s *SQLiteStore) GetToken(ctx context.Context, provider string) (*Token, error) {
	return s.getToken(ctx, provider)
}

func (s *SQLiteStore) SaveToken(ctx context.Context, tok Token) error {
	return s.saveToken(ctx, tok)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
