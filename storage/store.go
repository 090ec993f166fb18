// Package storage persists units, maps and subprocesses in sqlite. Workflow
// transitions commit the subprocess mutation and its audit appends in one
// transaction; a compare-and-swap on the subprocess version serializes
// concurrent writers.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// ErrNotFound is returned when an entity is not found.
var ErrNotFound = errors.New("entity not found")

// Store is the sqlite-backed record store. It implements workflow.Store,
// workflow.MapAccessor and org.Directory.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at the given path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenInMemory opens an in-memory store, used by tests and the demo CLI.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// The shared-cache in-memory database disappears when the last
	// connection closes.
	db.SetMaxIdleConns(1)
	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS units (
			id TEXT PRIMARY KEY,
			sigil TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			superior_id TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS maps (
			id TEXT PRIMARY KEY,
			unit_id TEXT NOT NULL,
			live INTEGER NOT NULL DEFAULT 0,
			suggestions TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			homologed_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			map_id TEXT NOT NULL,
			description TEXT NOT NULL,
			FOREIGN KEY(map_id) REFERENCES maps(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge (
			id TEXT PRIMARY KEY,
			activity_id TEXT NOT NULL,
			description TEXT NOT NULL,
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS competencies (
			id TEXT PRIMARY KEY,
			map_id TEXT NOT NULL,
			description TEXT NOT NULL,
			FOREIGN KEY(map_id) REFERENCES maps(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS competency_activities (
			competency_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			PRIMARY KEY(competency_id, activity_id),
			FOREIGN KEY(competency_id) REFERENCES competencies(id) ON DELETE CASCADE,
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS subprocesses (
			id TEXT PRIMARY KEY,
			process_id TEXT NOT NULL,
			process_kind TEXT NOT NULL,
			unit_id TEXT NOT NULL,
			map_id TEXT NOT NULL DEFAULT '',
			situation TEXT NOT NULL,
			stage1_done_at TEXT,
			stage2_done_at TEXT,
			suggestions TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS movements (
			id TEXT PRIMARY KEY,
			subprocess_id TEXT NOT NULL,
			description TEXT NOT NULL,
			origin_unit_id TEXT NOT NULL,
			destination_unit_id TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			FOREIGN KEY(subprocess_id) REFERENCES subprocesses(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			subprocess_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			stage TEXT NOT NULL,
			observations TEXT NOT NULL DEFAULT '',
			actor_title TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			FOREIGN KEY(subprocess_id) REFERENCES subprocesses(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_maps_unit_live ON maps(unit_id, live);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_map ON activities(map_id);`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_activity ON knowledge(activity_id);`,
		`CREATE INDEX IF NOT EXISTS idx_competencies_map ON competencies(map_id);`,
		`CREATE INDEX IF NOT EXISTS idx_subprocesses_unit_active ON subprocesses(unit_id, active);`,
		`CREATE INDEX IF NOT EXISTS idx_movements_subprocess_occurred ON movements(subprocess_id, occurred_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_subprocess_occurred ON analyses(subprocess_id, occurred_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
