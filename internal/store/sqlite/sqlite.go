// Package sqlite is the default, single-file event store driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/qaintel/eventmemory/internal/store/sqlstore"
)

// New opens the database file at path and prepares the schema.
func New(ctx context.Context, path string, log zerolog.Logger) (*sqlstore.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	st, err := NewWithDB(ctx, db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// NewWithDB wires an existing connection.
func NewWithDB(ctx context.Context, db *sql.DB, log zerolog.Logger) (*sqlstore.Store, error) {
	return sqlstore.New(ctx, db, Dialect{}, log)
}

// Dialect is the sqlstore.Dialect for SQLite.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Rebind(query string) string { return query }

// TimeArg stores instants as fixed-width text so lexical order is time order.
func (Dialect) TimeArg(t time.Time) any { return t.UTC().Format(sqlstore.TimeLayout) }

// LockSuffix is empty: transactions already hold the database write lock.
func (Dialect) LockSuffix() string { return "" }

func (Dialect) IsUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		code&0xff == sqlite3.SQLITE_CONSTRAINT
}

func (Dialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS events (
            id TEXT PRIMARY KEY,
            checksum TEXT NOT NULL UNIQUE,
            type TEXT NOT NULL,
            timestamp TEXT NOT NULL,
            project TEXT NOT NULL,
            branch TEXT NOT NULL,
            data_json TEXT NOT NULL,
            importance REAL NOT NULL DEFAULT 0,
            tags_json TEXT NOT NULL,
            source TEXT NOT NULL,
            parent_id TEXT,
            related_ids_json TEXT NOT NULL,
            created_at TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_branch ON events(project, branch);`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_events_importance ON events(importance DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_events_checksum ON events(checksum);`,
		`CREATE TABLE IF NOT EXISTS memory_branches (
            name TEXT PRIMARY KEY,
            head_commit TEXT,
            created_at TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS memory_commits (
            commit_id TEXT PRIMARY KEY,
            branch TEXT NOT NULL,
            message TEXT NOT NULL,
            author TEXT NOT NULL,
            timestamp TEXT NOT NULL,
            event_ids_json TEXT NOT NULL,
            parent_commit TEXT,
            tags_json TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS memory_tags (
            tag_name TEXT PRIMARY KEY,
            commit_id TEXT NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL
        );`,
	}
}
