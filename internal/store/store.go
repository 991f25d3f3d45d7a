package store

import (
	"context"
	"time"

	"github.com/qaintel/eventmemory/internal/model"
)

// EventStore is the idempotent event log.
// Implementations live under internal/store/<driver>/ (sqlite, postgres).
type EventStore interface {
	// Ingest persists ev and reports whether it was new. A checksum collision
	// returns false and a nil error.
	Ingest(ctx context.Context, ev *model.Event) (bool, error)
	// GetEvent returns nil, nil when the id is unknown.
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	QueryEvents(ctx context.Context, q model.EventQuery) ([]model.Event, error)
	RecentEvents(ctx context.Context, project string, window time.Duration, limit int) ([]model.Event, error)
	Stats(ctx context.Context) (*model.StoreStats, error)
}

// Journal is the git-like branch/commit/tag overlay.
type Journal interface {
	CreateBranch(ctx context.Context, name, description string) (bool, error)
	ListBranches(ctx context.Context) ([]model.Branch, error)
	CommitEvents(ctx context.Context, req model.CommitRequest) (string, error)
	GetCommit(ctx context.Context, commitID string) (*model.Commit, error)
	Log(ctx context.Context, branch string, limit int) ([]model.Commit, error)
	CreateTag(ctx context.Context, name, commitID, message string) (bool, error)
	ListTags(ctx context.Context) ([]model.Tag, error)
	SnapshotEvents(ctx context.Context, commitID string) ([]model.Event, error)
}

// Store is what a driver provides.
type Store interface {
	EventStore
	Journal
	Close() error
}

// EventGetter is the narrow read used by the retriever.
type EventGetter interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
}
