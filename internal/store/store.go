package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store defines the interface for durable pipeline state.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	// GetState returns the ingestion state for a provider, or nil if the
	// provider has never run.
	GetState(ctx context.Context, provider string) (*IngestionState, error)

	// UpsertState creates or replaces the state row keyed by provider.
	UpsertState(ctx context.Context, state IngestionState) error

	// ListStates returns every provider's state ordered by provider.
	ListStates(ctx context.Context) ([]IngestionState, error)

	// GetToken returns the stored OAuth token for a provider, or nil.
	GetToken(ctx context.Context, provider string) (*Token, error)

	// SaveToken creates or replaces the token row keyed by provider.
	SaveToken(ctx context.Context, tok Token) error

	// Close closes the database connection.
	Close() error
}

// Open returns the Store for driver ("sqlite" or "postgres").
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

// IngestionState tracks a provider's last attempted and last successful run.
// A nil LastSuccessfulDate means no run has advanced the date yet.
type IngestionState struct {
	Provider           string     `json:"provider"`
	LastSuccessfulDate *string    `json:"last_successful_date"`
	LastRunAt          *time.Time `json:"last_run_at"`
}

// Token is a provider's OAuth token pair.
type Token struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// sqlDB holds the queries shared by both dialects. Statements are written
// with ? placeholders and rebound for postgres.
type sqlDB struct {
	db       *sql.DB
	postgres bool
}

func (s *sqlDB) q(query string) string {
	if s.postgres {
		return replacePlaceholders(query)
	}
	return query
}

func (s *sqlDB) getState(ctx context.Context, provider string) (*IngestionState, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT provider, last_successful_date, last_run_at
		FROM ingestion_state WHERE provider = ?`), provider)

	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting ingestion state: %w", err)
	}
	return st, nil
}

func (s *sqlDB) upsertState(ctx context.Context, st IngestionState) error {
	var lastRun any
	if st.LastRunAt != nil {
		lastRun = st.LastRunAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO ingestion_state (provider, last_successful_date, last_run_at)
		VALUES (?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			last_successful_date=excluded.last_successful_date,
			last_run_at=excluded.last_run_at`),
		st.Provider, st.LastSuccessfulDate, lastRun)
	if err != nil {
		return fmt.Errorf("saving ingestion state: %w", err)
	}
	return nil
}

func (s *sqlDB) listStates(ctx context.Context) ([]IngestionState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, last_successful_date, last_run_at
		FROM ingestion_state ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("listing ingestion state: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var states []IngestionState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ingestion state: %w", err)
		}
		states = append(states, *st)
	}
	return states, rows.Err()
}

func (s *sqlDB) getToken(ctx context.Context, provider string) (*Token, error) {
	var tok Token
	var expiresRaw any
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT provider, access_token, refresh_token, expires_at
		FROM oauth_tokens WHERE provider = ?`), provider).Scan(
		&tok.Provider, &tok.AccessToken, &tok.RefreshToken, &expiresRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}
	tok.ExpiresAt, err = parseTimestamp(expiresRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing token expiry: %w", err)
	}
	return &tok, nil
}

func (s *sqlDB) saveToken(ctx context.Context, tok Token) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token=excluded.access_token,
			refresh_token=excluded.refresh_token,
			expires_at=excluded.expires_at`),
		tok.Provider, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (*IngestionState, error) {
	var st IngestionState
	var date sql.NullString
	var lastRunRaw any
	if err := row.Scan(&st.Provider, &date, &lastRunRaw); err != nil {
		return nil, err
	}
	if date.Valid {
		st.LastSuccessfulDate = &date.String
	}
	if lastRunRaw != nil {
		ts, err := parseTimestamp(lastRunRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing last_run_at: %w", err)
		}
		st.LastRunAt = &ts
	}
	return &st, nil
}

// parseTimestamp handles both time.Time and string timestamp values from SQLite.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return parseTimestamp(string(t))
	case string:
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02 15:04:05.999999999-07:00",
			"2006-01-02 15:04:05.999999999 -0700 MST",
			"2006-01-02 15:04:05+00:00",
			"2006-01-02 15:04:05",
		} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", t)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type: %T", v)
	}
}

// replacePlaceholders converts ? to $1, $2, $3 etc for postgres.
func replacePlaceholders(query string) string {
	result := make([]byte, 0, len(query))
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, fmt.Sprintf("$%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
