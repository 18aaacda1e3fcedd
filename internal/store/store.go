// Package store is the persistence layer for Intent-Engine: tasks, events,
// sessions, dependencies, and suggestions, plus the schema
// bootstrap and full-text indexes backing SearchService.
//
// Only the local relational backend (modernc.org/sqlite) ships in this
// repository — see DESIGN.md for why no remote property-graph backend is
// wired. The method set below is written so a second backend (a Neo4j-class
// property graph, as in the original implementation) could satisfy the same
// contract: every method takes and returns backend-neutral model types, and
// every multi-statement write happens inside WithTx so the equivalent of a
// Cypher transaction maps directly onto *sql.Tx.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding one project's tasks, events,
// sessions, dependencies, and suggestions; ids come from AUTOINCREMENT
// columns rather than a counters table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the project database at <projectDir>/.intent-engine/project.db
// and runs schema migration.
func Open(projectDir string) (*Store, error) {
	path := filepath.Join(projectDir, ".intent-engine", "project.db")
	return OpenPath(path)
}

// OpenPath opens the database at an explicit path (":memory:" for tests).
func OpenPath(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(5)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewFromDB wraps an already-open *sql.DB (used by tests with an in-memory
// database) and runs migration.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

const schemaVersion = "4"

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_id INTEGER REFERENCES tasks(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			spec TEXT,
			status TEXT NOT NULL DEFAULT 'todo',
			complexity INTEGER,
			priority INTEGER,
			first_todo_at TEXT,
			first_doing_at TEXT,
			first_done_at TEXT,
			active_form TEXT,
			owner TEXT NOT NULL DEFAULT 'human',
			metadata TEXT
		);

		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			timestamp TEXT NOT NULL,
			log_type TEXT NOT NULL,
			discussion_data TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			current_task_id INTEGER REFERENCES tasks(id) ON DELETE SET NULL,
			created_at TEXT NOT NULL,
			last_active_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS dependencies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			blocking_task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			blocked_task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL,
			UNIQUE(blocking_task_id, blocked_task_id),
			CHECK(blocking_task_id != blocked_task_id)
		);

		CREATE TABLE IF NOT EXISTS suggestions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL CHECK(type IN ('task_structure','event_synthesis','error')),
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			dismissed INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS workspace_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS tasks_fts USING fts5(
			name, spec, content='tasks', content_rowid='id', tokenize='trigram'
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
			discussion_data, content='events', content_rowid='id', tokenize='trigram'
		);
	`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`
		CREATE TRIGGER IF NOT EXISTS tasks_ai AFTER INSERT ON tasks BEGIN
			INSERT INTO tasks_fts(rowid, name, spec) VALUES (new.id, new.name, new.spec);
		END;
		CREATE TRIGGER IF NOT EXISTS tasks_ad AFTER DELETE ON tasks BEGIN
			INSERT INTO tasks_fts(tasks_fts, rowid, name, spec) VALUES ('delete', old.id, old.name, old.spec);
		END;
		CREATE TRIGGER IF NOT EXISTS tasks_au AFTER UPDATE ON tasks BEGIN
			INSERT INTO tasks_fts(tasks_fts, rowid, name, spec) VALUES ('delete', old.id, old.name, old.spec);
			INSERT INTO tasks_fts(rowid, name, spec) VALUES (new.id, new.name, new.spec);
		END;

		CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
			INSERT INTO events_fts(rowid, discussion_data) VALUES (new.id, new.discussion_data);
		END;
		CREATE TRIGGER IF NOT EXISTS events_ad AFTER DELETE ON events BEGIN
			INSERT INTO events_fts(events_fts, rowid, discussion_data) VALUES ('delete', old.id, old.discussion_data);
		END;
		CREATE TRIGGER IF NOT EXISTS events_au AFTER UPDATE ON events BEGIN
			INSERT INTO events_fts(events_fts, rowid, discussion_data) VALUES ('delete', old.id, old.discussion_data);
			INSERT INTO events_fts(rowid, discussion_data) VALUES (new.id, new.discussion_data);
		END;
	`); err != nil {
		return err
	}

	for _, q := range []string{
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_parent_priority ON tasks(status, parent_id, priority)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_priority_complexity ON tasks(priority, complexity)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_doing_at ON tasks(first_doing_at) WHERE status = 'doing'`,
		`CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_dependencies_blocked ON dependencies(blocked_task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_dismissed ON suggestions(dismissed, created_at)`,
	} {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO workspace_state(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		schemaVersion,
	)
	return err
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back if fn returns an error or panics. Suspension points (every query
// inside fn) let the caller's context cancellation roll back the
// in-flight transaction, matching the cancellation contract in spec.md §5.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// nowRFC3339 stamps a timestamp the way every writer in this package does.
func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// execer is satisfied by both *sql.DB and *sql.Tx, letting read/write
// helpers run either standalone or inside WithTx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return s.db
}
