package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("db")
}

// StateDB holds the bookkeeping that must survive between runs: run history,
// resumable cursors, scan failures and the execution audit log. Writes are
// serialized through a WriteQueue.
type StateDB struct {
	db         *sql.DB
	writeQueue *WriteQueue
}

// Open opens or creates the state database. ":memory:" is accepted for tests.
func Open(path string) (*StateDB, error) {
	log.WithField("path", path).Debug("Opening state database")

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database is private to its connection, and
	// the file database has a single writer anyway.
	db.SetMaxOpenConns(1)

	s := &StateDB{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s.writeQueue = NewWriteQueue(db, nil)
	s.writeQueue.Start()
	return s, nil
}

// Close flushes pending writes and closes the connection
func (s *StateDB) Close() error {
	s.writeQueue.Stop()
	return s.db.Close()
}

// WriteQueue returns the queue used for all writes
func (s *StateDB) WriteQueue() *WriteQueue {
	return s.writeQueue
}

func (s *StateDB) exec(ctx context.Context, query string, args ...interface{}) error {
	return s.writeQueue.Submit(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, query, args...)
		return err
	})
}

// init creates all necessary tables and indexes
func (s *StateDB) init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK(kind IN ('scan', 'review', 'repair', 'execute')),
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'cancelled', 'failed')) DEFAULT 'running',
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			error TEXT,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind, started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			name TEXT PRIMARY KEY,
			run_id TEXT,
			processed INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			cursor TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scan_failures (
			path TEXT PRIMARY KEY,
			run_id TEXT,
			error TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 1,
			failed_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			group_key TEXT NOT NULL,
			action TEXT NOT NULL CHECK(action IN ('delete', 'copy', 'skip')),
			path TEXT NOT NULL,
			method TEXT,
			dry_run INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			executed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(run_id)`,
		`CREATE TABLE IF NOT EXISTS executed_groups (
			group_key TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			executed_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	log.Debug("Database initialization complete")
	return nil
}
