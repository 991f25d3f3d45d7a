package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/config"
	storepkg "github.com/qaintel/eventmemory/internal/store"
	storepg "github.com/qaintel/eventmemory/internal/store/postgres"
	storesqlite "github.com/qaintel/eventmemory/internal/store/sqlite"
)

// NewStore returns the event store selected by cfg.DBDriver.
// The schema is applied synchronously so the first request never races it.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	log = log.With().Str("component", "store").Str("driver", cfg.DBDriver).Logger()
	switch cfg.DBDriver {
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
		st, err := storesqlite.New(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return st, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		st, err := storepg.New(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		log.Debug().Msg("postgres store ready")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}

// NewEventCache fronts the store's GetEvent with a bounded in-process cache.
func NewEventCache(st storepkg.EventStore, cfg *config.Config) (*storepkg.CachedEvents, error) {
	return storepkg.NewCachedEvents(st, cfg.EventCacheEntries)
}
