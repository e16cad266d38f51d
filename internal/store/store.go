package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/meeteat/pos/internal/apperr"
)

// Querier is the statement surface handed to a unit of work.
// Both *sql.DB and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Access is the store capability consumed by the domain managers.
// Tests substitute their own implementation to simulate a detached store.
type Access interface {
	// Run executes fn against the live connection, outside a transaction.
	Run(ctx context.Context, fn func(q Querier) error) error

	// RunTx executes fn inside a transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	RunTx(ctx context.Context, fn func(q Querier) error) error
}

// Store is the single-connection SQLite store.
type Store struct {
	mu     sync.Mutex // guards db; held for the duration of every unit of work
	swapMu sync.Mutex // serializes Swap calls
	db     *sql.DB    // nil while detached
	path   string
	log    *slog.Logger
}

var _ Access = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open creates or opens the store at path, applies pragmas, migrations and
// settings seeds.
//
// This function is idempotent - safe to call multiple times on the same path.
// Failures are reported as apperr.SchemaError.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.SchemaError, "open store "+path, err)
	}
	s.db = db
	s.log.Info("store opened", "path", path)
	return s, nil
}

// openDB opens a connection and brings the schema up to date.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: it is both the single writer and the unit the mutex
	// protects. Pragmas applied below stay bound to it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// dsn adds connection parameters that go-sqlite3 applies to every new
// connection, so they survive a pool reconnect.
func dsn(path string) string {
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

// Path returns the filesystem path of the live store file.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints and closes the connection. Later calls to Run fail with
// apperr.DatabaseUnavailable. Closing a closed store is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if err := checkpoint(context.Background(), s.db); err != nil {
		s.log.Warn("checkpoint before close failed", "error", err)
	}
	err := s.db.Close()
	s.db = nil
	s.log.Info("store closed", "path", s.path)
	return err
}

// Run executes fn against the live connection while holding the store lock.
func (s *Store) Run(ctx context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errUnavailable()
	}
	return fn(s.db)
}

// RunTx executes fn inside a transaction while holding the store lock.
func (s *Store) RunTx(ctx context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errUnavailable()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FileSize returns the size in bytes of the main store file.
func (s *Store) FileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("stat store file: %w", err)
	}
	return info.Size(), nil
}

// Checkpoint flushes the write-ahead log into the main store file.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errUnavailable()
	}
	return checkpoint(ctx, s.db)
}

// Snapshot checkpoints the log and calls fn with the store path while still
// holding the lock, so no write lands between the checkpoint and fn reading
// the file.
func (s *Store) Snapshot(ctx context.Context, fn func(path string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errUnavailable()
	}
	if err := checkpoint(ctx, s.db); err != nil {
		return err
	}
	return fn(s.path)
}

// Swap replaces the live store file.
//
// The connection is checkpointed, closed and detached; the sidecar files are
// removed and the current file is set aside. fn must then write the
// replacement file at path. The replacement is opened and migrated and
// becomes the live connection.
//
// If fn fails or the replacement cannot be opened, the set-aside file is
// moved back and re-attached, and the returned error describes the failure.
// Concurrent Run calls observe apperr.DatabaseUnavailable while detached.
func (s *Store) Swap(ctx context.Context, fn func(path string) error) error {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	if err := s.detach(ctx); err != nil {
		return err
	}

	rescue := s.path + ".pre-restore"
	if err := removeSidecars(s.path); err != nil {
		return s.reattach(fmt.Errorf("remove sidecars: %w", err), "")
	}
	if err := os.Rename(s.path, rescue); err != nil {
		return s.reattach(fmt.Errorf("set aside live store: %w", err), "")
	}

	if err := fn(s.path); err != nil {
		return s.reattach(fmt.Errorf("replace store file: %w", err), rescue)
	}

	s.mu.Lock()
	db, err := openDB(s.path)
	if err == nil {
		s.db = db
	}
	s.mu.Unlock()
	if err != nil {
		return s.reattach(fmt.Errorf("open replacement store: %w", err), rescue)
	}

	if err := os.Remove(rescue); err != nil {
		s.log.Warn("remove set-aside store failed", "path", rescue, "error", err)
	}
	s.log.Info("store re-attached", "path", s.path)
	return nil
}

// detach checkpoints and closes the live connection.
func (s *Store) detach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errUnavailable()
	}
	if err := checkpoint(ctx, s.db); err != nil {
		return fmt.Errorf("checkpoint before detach: %w", err)
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		// The handle is gone either way; re-open what is on disk.
		return s.reattachLocked(fmt.Errorf("close live store: %w", err), "")
	}
	s.log.Info("store detached", "path", s.path)
	return nil
}

// reattach restores a live connection after a failed swap. When rescue is
// set, the file at rescue is moved back over the live path first. cause is
// always returned, joined with any recovery failure.
func (s *Store) reattach(cause error, rescue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reattachLocked(cause, rescue)
}

func (s *Store) reattachLocked(cause error, rescue string) error {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}

	if rescue != "" {
		if err := removeSidecars(s.path); err != nil {
			s.log.Warn("remove replacement sidecars failed", "error", err)
		}
		if err := os.Rename(rescue, s.path); err != nil {
			s.log.Error("restore of set-aside store failed", "path", rescue, "error", err)
			return errors.Join(cause, fmt.Errorf("move back previous store: %w", err))
		}
	}

	db, err := openDB(s.path)
	if err != nil {
		s.log.Error("store left detached", "path", s.path, "error", err)
		return errors.Join(cause, fmt.Errorf("re-open previous store: %w", err))
	}
	s.db = db
	s.log.Warn("previous store re-attached after failed swap", "path", s.path, "cause", cause)
	return cause
}

// checkpoint runs a TRUNCATE checkpoint and fails if the log could not be
// fully copied into the main file.
func checkpoint(ctx context.Context, db *sql.DB) error {
	var busy, logFrames, checkpointed int
	err := db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if busy != 0 {
		return fmt.Errorf("wal checkpoint: database busy (%d/%d frames)", checkpointed, logFrames)
	}
	return nil
}

// SidecarPaths returns the write-ahead log and shared-memory paths that
// belong to the store file at path.
func SidecarPaths(path string) []string {
	return []string{path + "-wal", path + "-shm"}
}

func removeSidecars(path string) error {
	for _, p := range SidecarPaths(path) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
