package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database and exposes the domain repositories.
// Repos bound directly on a Store run each call on a pooled connection;
// Transact rebinds them to a single dedicated transaction.
type Store struct {
	db *sql.DB
	*Repos
}

// Repos bundles the domain repositories over one statement executor
// (either the shared pool or an open transaction).
type Repos struct {
	Feedback  *FeedbackRepo
	Summaries *SummaryCacheRepo
	AgentLog  *AgentLogRepo
}

func newRepos(q Querier) *Repos {
	return &Repos{
		Feedback:  newFeedbackRepo(q),
		Summaries: newSummaryCacheRepo(q),
		AgentLog:  newAgentLogRepo(q),
	}
}

// Open opens (or creates) the SQLite database in dataDir. Pass
// ":memory:" as dataDir for an in-memory database (used by tests).
// Callers must run Migrate before using the repositories against a
// fresh database.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "civicpulse.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	return &Store{db: db, Repos: newRepos(db)}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Transact runs fn inside a single transaction. The repositories passed
// to fn share one dedicated connection for the whole unit of work. On a
// nil return the transaction commits; on error it rolls back and the
// original error is returned. The connection is released back to the
// pool on every exit path, including panics.
func (s *Store) Transact(ctx context.Context, fn func(r *Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Timestamps are stored as RFC3339 text, always UTC.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
