package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/model"
)

// ErrNotFound is returned by mutations that target a missing record.
// Lookups return nil, nil instead.
var ErrNotFound = eris.New("not found")

// ErrStaleStatus is returned when a guarded snapshot status update matched
// no row because the snapshot already left the expected status.
var ErrStaleStatus = eris.New("snapshot status changed concurrently")

// QueueStats is a point-in-time summary of the pricing pipeline.
type QueueStats struct {
	SnapshotsByStatus map[model.PricingStatus]int  `json:"snapshotsByStatus"`
	JobsByStatus      map[model.JobStatus]int      `json:"jobsByStatus"`
	InsightsBySource  map[model.StrategySource]int `json:"insightsBySource"`
	OldestPendingAt   *time.Time                   `json:"oldestPendingAt,omitempty"`
	Products          int                          `json:"products"`
}

// Store defines the persistence interface for the pricing pipeline.
type Store interface {
	// Products
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	UpsertProducts(ctx context.Context, products []model.Product) (int, error)
	UpdateProductPrice(ctx context.Context, productID string, price float64) error

	// Scrape jobs
	CreateScrapeJob(ctx context.Context, job *model.ScrapeJob) error
	GetScrapeJob(ctx context.Context, jobID string) (*model.ScrapeJob, error)

	// Snapshots
	CreateSnapshot(ctx context.Context, snap *model.CompetitorSnapshot) error
	GetSnapshot(ctx context.Context, snapshotID string) (*model.CompetitorSnapshot, error)
	GetLatestSnapshot(ctx context.Context, productID string) (*model.CompetitorSnapshot, error)
	ClaimNextPendingSnapshot(ctx context.Context) (*model.CompetitorSnapshot, error)
	FailSnapshot(ctx context.Context, snapshotID, reason string) error
	CompleteSnapshot(ctx context.Context, insight *model.PricingInsight) error

	// Insights
	GetLatestInsight(ctx context.Context, productID string) (*model.PricingInsight, error)
	ListInsightsBySnapshot(ctx context.Context, snapshotID string) ([]model.PricingInsight, error)

	// Monitoring
	QueueStats(ctx context.Context) (*QueueStats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func newQueueStats() *QueueStats {
	return &QueueStats{
		SnapshotsByStatus: make(map[model.PricingStatus]int),
		JobsByStatus:      make(map[model.JobStatus]int),
		InsightsBySource:  make(map[model.StrategySource]int),
	}
}
