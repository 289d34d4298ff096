package store

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

// MigrationStatus reports the applied schema version and the versions that
// an Open would apply.
type MigrationStatus struct {
	Current int64
	Pending []int64
}

// PendingMigrations inspects db without applying anything.
func PendingMigrations(driver string, db *sql.DB) (*MigrationStatus, error) {
	switch driver {
	case "sqlite":
		goose.SetBaseFS(migrations)
		if err := goose.SetDialect("sqlite3"); err != nil {
			return nil, err
		}
		return pending(db, "migrations")
	case "postgres":
		goose.SetBaseFS(pgMigrations)
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		return pending(db, "pgmigrations")
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func pending(db *sql.DB, dir string) (*MigrationStatus, error) {
	current, err := goose.GetDBVersion(db)
	if err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	all, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collecting migrations: %w", err)
	}
	st := &MigrationStatus{Current: current}
	for _, m := range all {
		if m.Version > current {
			st.Pending = append(st.Pending, m.Version)
		}
	}
	return st, nil
}
