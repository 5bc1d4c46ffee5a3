// Package history keeps a SQLite ledger of generate invocations.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/compgen/migrations"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const table = "invocations"

var columns = []string{
	"id", "prompt", "requested", "model", "provider", "status", "component",
	"attempts", "calls", "warmed_up", "fallback", "repaired", "error",
	"duration_ms", "created_at",
}

// Entry is one recorded invocation.
type Entry struct {
	ID        string
	Prompt    string
	Requested string
	Model     string
	Provider  string
	Status    string
	Component string
	Attempts  int
	Calls     int
	WarmedUp  bool
	Fallback  bool
	Repaired  bool
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store persists entries.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// SQLite serializes writers; one connection keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db, logger), nil
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "history").Logger()}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts e.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := sq.Insert(table).
		Columns(columns...).
		Values(e.ID, e.Prompt, e.Requested, e.Model, e.Provider, e.Status, nullable(e.Component),
			e.Attempts, e.Calls, e.WarmedUp, e.Fallback, e.Repaired, nullable(e.Error),
			e.Duration.Milliseconds(), e.CreatedAt.Unix())

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	s.logger.Debug().Str("invocation_id", e.ID).Str("status", e.Status).Msg("Recorded invocation")
	return nil
}

// Filter narrows List.
type Filter struct {
	Limit  uint64 // Zero means 20
	Status string
	Model  string
	Since  time.Time
}

// List returns the newest entries first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit == 0 {
		limit = 20
	}

	query := sq.Select(columns...).From(table).OrderBy("created_at DESC", "rowid DESC").Limit(limit)
	if f.Status != "" {
		query = query.Where(sq.Eq{"status": f.Status})
	}
	if f.Model != "" {
		query = query.Where(sq.Eq{"model": f.Model})
	}
	if !f.Since.IsZero() {
		query = query.Where(sq.GtOrEq{"created_at": f.Since.Unix()})
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			component, errMsg   sql.NullString
			durationMS, created int64
		)
		if err := rows.Scan(&e.ID, &e.Prompt, &e.Requested, &e.Model, &e.Provider, &e.Status, &component,
			&e.Attempts, &e.Calls, &e.WarmedUp, &e.Fallback, &e.Repaired, &errMsg,
			&durationMS, &created); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		e.Component = component.String
		e.Error = errMsg.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats summarizes recorded invocations.
type Stats struct {
	Total     int
	Succeeded int
	Fallbacks int
	WarmUps   int
}

// Stats aggregates the whole ledger.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	query := sq.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(fallback), 0)",
		"COALESCE(SUM(warmed_up), 0)",
	).From(table)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return Stats{}, fmt.Errorf("build query: %w", err)
	}

	var st Stats
	if err := s.db.QueryRowContext(ctx, queryStr, args...).Scan(&st.Total, &st.Succeeded, &st.Fallbacks, &st.WarmUps); err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
