// Package store provides the SQLite-backed budget ledgers, cost dictionary
// and lock state.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/theirongolddev/costroll/internal/model"
)

const timeFormat = time.RFC3339Nano

// SQLite primary result codes for lock contention.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// Store is the budget database. Writes run in immediate transactions on db
// so concurrent writers serialize on the database lock. Snapshots use a
// separate deferred pool and never take the write lock.
type Store struct {
	db    *sql.DB
	rdb   *sql.DB
	now   func() time.Time
	newID func() string
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}

	dsn := filepath.Clean(dbPath) +
		"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn+"&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	rdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read pool: %w", err)
	}

	return &Store{
		db:    db,
		rdb:   rdb,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return errors.Join(s.rdb.Close(), s.db.Close())
}

// Tx is a unit of work against the store. Methods must not be used after
// the surrounding Update or Snapshot call returns.
type Tx struct {
	tx *sql.Tx
	s  *Store
}

// Update runs fn in a write transaction. The transaction commits when fn
// returns nil and rolls back otherwise. Lock contention that outlasts the
// busy timeout is reported as model.ErrConcurrentModification.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Tx{tx: tx, s: s}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Snapshot runs fn against a single read transaction so every read it
// issues observes the same database state. The Tx may be shared by
// concurrent goroutines inside fn.
func (s *Store) Snapshot(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.rdb.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin snapshot: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	return fn(&Tx{tx: tx, s: s})
}

// classify maps SQLite lock contention to ErrConcurrentModification.
func classify(err error) error {
	if err == nil || errors.Is(err, model.ErrConcurrentModification) {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return fmt.Errorf("%w: %v", model.ErrConcurrentModification, err)
		}
	}
	return err
}

// Now returns the store clock in UTC.
func (t *Tx) Now() time.Time { return t.s.now() }

func formatTime(ts time.Time) string {
	return ts.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	ts, _ := time.Parse(timeFormat, s)
	return ts
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	ts := parseTime(ns.String)
	return &ts
}

func nullTime(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return formatTime(*ts)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
