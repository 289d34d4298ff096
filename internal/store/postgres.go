package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed pgmigrations/*.sql
var pgMigrations embed.FS

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	sqlDB
}

// NewPostgresStore opens a PostgreSQL connection and runs migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if err := MigratePostgres(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &PostgresStore{sqlDB{db: db, postgres: true}}, nil
}

// MigratePostgres applies the embedded PostgreSQL migrations.
func MigratePostgres(db *sql.DB) error {
	goose.SetBaseFS(pgMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "pgmigrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// DB returns the underlying database connection for migration commands.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetState(ctx context.Context, provider string) (*IngestionState, error) {
	return s.getState(ctx, provider)
}

func (s *PostgresStore) UpsertState(ctx context.Context, state IngestionState) error {
	return s.upsertState(ctx, state)
}

func (s *PostgresStore) ListStates(ctx context.Context) ([]IngestionState, error) {
	return s.listStates(ctx)
}

func (s *PostgresStore) GetToken(ctx context.Context, provider string) (*Token, error) {
	return s.getToken(ctx, provider)
}

func (s *PostgresStore) SaveToken(ctx context.Context, tok Token) error {
	return s.saveToken(ctx, tok)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
