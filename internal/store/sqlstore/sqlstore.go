// Package sqlstore implements the event log and memory journal on database/sql.
// Engine specifics (placeholders, DDL, error codes) come from a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/model"
	"github.com/qaintel/eventmemory/internal/store"
)

// Store is a store.Store over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     zerolog.Logger
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// New applies the schema, makes sure the default journal branch exists and
// returns a ready store. The store takes ownership of db.
func New(ctx context.Context, db *sql.DB, d Dialect, log zerolog.Logger) (*Store, error) {
	s := &Store{db: db, dialect: d, log: log, now: func() time.Time { return time.Now().UTC() }}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("%s schema: %w", d.Name(), err)
	}
	if _, err := s.CreateBranch(ctx, model.DefaultBranch, "Default memory branch"); err != nil {
		return nil, fmt.Errorf("create default branch: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

func (s *Store) ts(t time.Time) any { return s.dialect.TimeArg(t.UTC()) }
