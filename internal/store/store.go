// Package store implements Obra's durable persistence layer on SQLite.
// It owns the schema and raw row access; invariants and transitions are
// enforced one level up by the StateManager. All writes go through
// transactions; nested transactions map to SQLite savepoints.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"obra/internal/logging"
	"obra/internal/types"
)

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open initializes the SQLite database at the given path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, types.NewError(types.KindStorageUnavailable, "store.Open",
				fmt.Errorf("failed to create directory %s: %w", dir, err))
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, types.NewError(types.KindStorageUnavailable, "store.Open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("busy_timeout pragma failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("journal_mode pragma failed: %v", err)
	}
	// NORMAL is safe under WAL and considerably faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("synchronous pragma failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.Get(logging.CategoryStore).Debug("foreign_keys pragma failed: %v", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Get(logging.CategoryStore).Info("Store ready at %s", path)
	return s, nil
}

// Close shuts down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Tx is one (possibly nested) transaction scope. Nested scopes are SQLite
// savepoints; only the outermost commit makes writes durable.
type Tx struct {
	tx    *sql.Tx
	depth int
}

// WithTx runs fn inside a transaction. Any error rolls back every write
// made inside fn, including nested scopes.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewError(types.KindStorageUnavailable, "store.WithTx", err)
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logging.Get(logging.CategoryStore).Error("rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.NewError(types.KindStorageUnavailable, "store.WithTx", err)
	}
	return nil
}

// Nest opens a savepoint scope inside t. The savepoint is released on
// success and rolled back on error; the outer scope decides durability.
func (t *Tx) Nest(ctx context.Context, fn func(tx *Tx) error) error {
	name := fmt.Sprintf("sp_%d", t.depth+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return types.NewError(types.KindStorageUnavailable, "store.Nest", err)
	}
	inner := &Tx{tx: t.tx, depth: t.depth + 1}
	if err := fn(inner); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			logging.Get(logging.CategoryStore).Error("savepoint rollback failed: %v", rbErr)
		}
		if _, relErr := t.tx.ExecContext(ctx, "RELEASE "+name); relErr != nil {
			logging.Get(logging.CategoryStore).Debug("savepoint release failed: %v", relErr)
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return types.NewError(types.KindStorageUnavailable, "store.Nest", err)
	}
	return nil
}

// Stats returns row counts per table.
func (s *Store) Stats() (map[string]int, error) {
	stats := make(map[string]int)
	for _, table := range []string{
		"projects", "work_items", "milestones", "interactions",
		"checkpoints", "breakpoints", "file_changes",
	} {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, types.NewError(types.KindStorageUnavailable, "store.Stats", err)
		}
		stats[table] = n
	}
	return stats, nil
}

// Vacuum reclaims disk space. Intended for periodic maintenance.
func (s *Store) Vacuum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return types.NewError(types.KindStorageUnavailable, "store.Vacuum", err)
	}
	return nil
}

// Time columns are stored as RFC3339Nano text so round-trips are exact.

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return types.NewError(types.KindNotFound, op, err)
	}
	return types.NewError(types.KindStorageUnavailable, op, err)
}
