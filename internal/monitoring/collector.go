package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/metrics"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/resilience"
	"github.com/sells-group/pricing-cli/internal/store"
)

// Health holds a point-in-time view of the pricing pipeline.
type Health struct {
	// Snapshot queue.
	SnapshotsPending    int `json:"snapshots_pending"`
	SnapshotsProcessing int `json:"snapshots_processing"`
	SnapshotsCompleted  int `json:"snapshots_completed"`
	SnapshotsFailed     int `json:"snapshots_failed"`

	// FailureRate is failed / (completed + failed).
	FailureRate float64 `json:"failure_rate"`

	// Scrape jobs waiting on the external scraper.
	JobsQueued  int `json:"jobs_queued"`
	JobsRunning int `json:"jobs_running"`
	JobsFailed  int `json:"jobs_failed"`

	// Insights by strategy source. FallbackRate is rule_based / total.
	InsightsAI        int     `json:"insights_ai"`
	InsightsRuleBased int     `json:"insights_rule_based"`
	FallbackRate      float64 `json:"fallback_rate"`

	OldestPendingAt      *time.Time `json:"oldest_pending_at,omitempty"`
	OldestPendingAgeSecs float64    `json:"oldest_pending_age_secs"`

	Products     int    `json:"products"`
	CircuitState string `json:"ai_circuit_state,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers pipeline health from the store and mirrors it into the
// Prometheus gauges.
type Collector struct {
	store   store.Store
	metrics *metrics.Metrics
	breaker *resilience.CircuitBreaker
	now     func() time.Time
}

// NewCollector creates a collector. m and breaker are optional.
func NewCollector(st store.Store, m *metrics.Metrics, breaker *resilience.CircuitBreaker) *Collector {
	return &Collector{
		store:   st,
		metrics: m,
		breaker: breaker,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Collect reads queue stats and derives rates and ages.
func (c *Collector) Collect(ctx context.Context) (*Health, error) {
	stats, err := c.store.QueueStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: queue stats")
	}

	now := c.now()
	h := &Health{
		SnapshotsPending:    stats.SnapshotsByStatus[model.PricingStatusPending],
		SnapshotsProcessing: stats.SnapshotsByStatus[model.PricingStatusProcessing],
		SnapshotsCompleted:  stats.SnapshotsByStatus[model.PricingStatusCompleted],
		SnapshotsFailed:     stats.SnapshotsByStatus[model.PricingStatusFailed],
		JobsQueued:          stats.JobsByStatus[model.JobStatusQueued],
		JobsRunning:         stats.JobsByStatus[model.JobStatusRunning],
		JobsFailed:          stats.JobsByStatus[model.JobStatusFailed],
		InsightsAI:          stats.InsightsBySource[model.StrategySourceAI],
		InsightsRuleBased:   stats.InsightsBySource[model.StrategySourceRuleBased],
		OldestPendingAt:     stats.OldestPendingAt,
		Products:            stats.Products,
		CollectedAt:         now,
	}

	if finished := h.SnapshotsCompleted + h.SnapshotsFailed; finished > 0 {
		h.FailureRate = float64(h.SnapshotsFailed) / float64(finished)
	}
	if total := h.InsightsAI + h.InsightsRuleBased; total > 0 {
		h.FallbackRate = float64(h.InsightsRuleBased) / float64(total)
	}
	if h.OldestPendingAt != nil {
		h.OldestPendingAgeSecs = now.Sub(*h.OldestPendingAt).Seconds()
	}
	if c.breaker != nil {
		h.CircuitState = c.breaker.State().String()
	}

	c.publish(stats, h)
	return h, nil
}

func (c *Collector) publish(stats *store.QueueStats, h *Health) {
	if c.metrics == nil {
		return
	}
	for _, status := range []model.PricingStatus{
		model.PricingStatusPending,
		model.PricingStatusProcessing,
		model.PricingStatusCompleted,
		model.PricingStatusFailed,
	} {
		c.metrics.SnapshotQueue.WithLabelValues(string(status)).Set(float64(stats.SnapshotsByStatus[status]))
	}
	c.metrics.OldestPending.Set(h.OldestPendingAgeSecs)
	if c.breaker != nil {
		c.metrics.CircuitState.Set(float64(c.breaker.State()))
	}
}
