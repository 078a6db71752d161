// Package store implements the local durable store: a transactional SQLite
// table set that is the source of truth for the UI, plus the outbound sync
// queue that shares its transactions. Every local mutation updates the
// entity row and its queue item atomically, so the two can never diverge.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/TheVisher/pawkit-sync/internal/logging"
	"github.com/TheVisher/pawkit-sync/internal/store/migrations"
)

// Store wraps the SQLite connection for the local replica.
type Store struct {
	db     *sql.DB
	clock  func() time.Time
	logger logging.Logger

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// Option customizes a Store.
type Option func(*Store)

// WithClock injects a time source, used by tests for deterministic
// timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger injects a logger. Defaults to a discard logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (and if necessary creates) the local database at dsn and runs
// the embedded migrations. WAL mode keeps readers unblocked during queue
// drains; the busy timeout covers short writer overlap between the UI
// mutation path and the drain loop.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	// The pragmas ride on the DSN so that every connection database/sql
	// opens gets them; executing PRAGMA statements through the pool would
	// configure only the one connection that happened to run them.
	db, err := sql.Open("sqlite", dsn+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		clock:  time.Now,
		logger: logging.NewDiscardLogger(),
		subs:   make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for components that keep their own
// tables in the same database file (device tracker).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) now() time.Time { return s.clock().UTC() }

// Now returns the store's clock reading, UTC. Collaborators share it so
// queue scheduling and entity timestamps agree under an injected clock.
func (s *Store) Now() time.Time { return s.now() }

// formatTime and parseTime fix the TEXT encoding for timestamps. Empty
// strings round-trip to the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
