package storage

import (
	"context"
	"errors"
	"time"

	"crawlerd/internal/models"
)

var ErrNotFound = errors.New("record not found")

// EventStore persists accepted raw events. One call is one batch.
type EventStore interface {
	InsertEvents(ctx context.Context, ownerID, workspaceID string, events []*models.CrawlerEvent) error
}

// RollupStore maintains daily aggregates. Merge adds the delta to whatever is
// stored for the key; implementations never read-modify-write in the caller.
type RollupStore interface {
	Merge(ctx context.Context, key models.DailyKey, delta *models.DailyDelta) error
	Get(ctx context.Context, key models.DailyKey) (*models.DailyStatsRecord, error)
	List(ctx context.Context, ownerID, domain, from, to string) ([]*models.DailyStatsRecord, error)
}

// TenantResolver maps an owner to the workspace raw events are tagged with.
// An empty result means the owner has none.
type TenantResolver interface {
	PrimaryWorkspace(ctx context.Context, ownerID string) (string, error)
}

const snapshotVersion = 1

// Snapshot is the on-disk form of the in-memory rollups.
type Snapshot struct {
	Version int               `json:"version"`
	SavedAt time.Time         `json:"saved_at"`
	Records []*SnapshotRecord `json:"records"`
}

type SnapshotRecord struct {
	Key                 models.DailyKey  `json:"key"`
	CrawlerCompany      string           `json:"crawler_company"`
	CrawlerCategory     models.Category  `json:"crawler_category"`
	VisitCount          int64            `json:"visit_count"`
	Paths               []string         `json:"paths"`
	ResponseTimeSum     int64            `json:"response_time_sum"`
	ResponseTimeSamples int64            `json:"response_time_samples"`
	Countries           map[string]int64 `json:"countries,omitempty"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Snapshotter is implemented by stores whose state lives in process memory.
type Snapshotter interface {
	Snapshot() *Snapshot
	Restore(s *Snapshot) error
	Len() int
}
