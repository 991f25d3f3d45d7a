// Package postgres runs the event store on PostgreSQL through the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/store/sqlstore"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New connects to dsn and prepares the schema.
func New(ctx context.Context, dsn string, log zerolog.Logger) (*sqlstore.Store, error) {
	db, err := Open(dsn)
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

// Dialect is the sqlstore.Dialect for PostgreSQL.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Rebind(query string) string { return sqlstore.RebindDollar(query) }

func (Dialect) TimeArg(t time.Time) any { return t.UTC() }

func (Dialect) LockSuffix() string { return " FOR UPDATE" }

func (Dialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (Dialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS events (
            id TEXT PRIMARY KEY,
            checksum TEXT NOT NULL UNIQUE,
            type TEXT NOT NULL,
            timestamp TIMESTAMPTZ NOT NULL,
            project TEXT NOT NULL,
            branch TEXT NOT NULL,
            data_json TEXT NOT NULL,
            importance DOUBLE PRECISION NOT NULL DEFAULT 0,
            tags_json TEXT NOT NULL,
            source TEXT NOT NULL,
            parent_id TEXT,
            related_ids_json TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_branch ON events(project, branch)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_importance ON events(importance DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_checksum ON events(checksum)`,
		`CREATE TABLE IF NOT EXISTS memory_branches (
            name TEXT PRIMARY KEY,
            head_commit TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            description TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE TABLE IF NOT EXISTS memory_commits (
            commit_id TEXT PRIMARY KEY,
            branch TEXT NOT NULL,
            message TEXT NOT NULL,
            author TEXT NOT NULL,
            timestamp TIMESTAMPTZ NOT NULL,
            event_ids_json TEXT NOT NULL,
            parent_commit TEXT,
            tags_json TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS memory_tags (
            tag_name TEXT PRIMARY KEY,
            commit_id TEXT NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL
        )`,
	}
}
