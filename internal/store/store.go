// Package store provides SQLite-backed persistence for evaluations and
// tasks, with optimistic version checking on every mutation.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	// ErrVersionConflict indicates a concurrent writer modified the record
	// between read and write. Callers retry through conflict.Executor.
	ErrVersionConflict = errors.New("record modified concurrently")

	// ErrEvaluationNotFound indicates the evaluation id does not exist.
	ErrEvaluationNotFound = errors.New("evaluation not found")

	// ErrTaskNotFound indicates the task id does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEvaluationFinalized indicates a write was refused because the
	// evaluation already reached a terminal status. Terminal statuses are
	// absorbing; the version column orders the competing writes.
	ErrEvaluationFinalized = errors.New("evaluation already finalized")
)

// Store provides access to the benchd SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates a Store at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode so status reads don't block the writer.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite supports one writer at a time; a single connection makes every
	// unit of work an exclusive scope.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		benchmark TEXT NOT NULL,
		benchmark_version TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'QUEUED',
		total_tasks INTEGER NOT NULL DEFAULT 0,
		completed_tasks INTEGER NOT NULL DEFAULT 0,
		successful_tasks INTEGER NOT NULL DEFAULT 0,
		progress_percent INTEGER NOT NULL DEFAULT 0,
		initiator TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '',
		environment TEXT NOT NULL DEFAULT '',
		overall_score REAL NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		evaluation_id TEXT NOT NULL,
		execution_order INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		name TEXT NOT NULL,
		prompt TEXT NOT NULL,
		expected_result TEXT NOT NULL DEFAULT '',
		max_score REAL NOT NULL DEFAULT 1,
		category TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		timeout_seconds INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		result TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		screenshot_refs TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		UNIQUE (evaluation_id, execution_order),
		FOREIGN KEY (evaluation_id) REFERENCES evaluations(id)
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(status);
	CREATE INDEX IF NOT EXISTS idx_evaluations_completed_at ON evaluations(completed_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_evaluation_id ON tasks(evaluation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UnitOfWork is a transaction-scoped handle. A mutating unit of work holds
// the database write lock for its duration, so rows touched inside it are
// effectively locked exclusively until commit.
type UnitOfWork struct {
	ctx context.Context
	tx  *sql.Tx
}

// Update runs fn inside a read-write transaction and commits when fn
// returns nil. Any error from fn rolls the transaction back.
func (s *Store) Update(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&UnitOfWork{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// View runs fn inside a transaction that is always rolled back, giving a
// consistent read scope (the shared-lock counterpart of Update).
func (s *Store) View(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(&UnitOfWork{ctx: ctx, tx: tx})
}
