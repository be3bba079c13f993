// Package worker runs the pricing loop: claim a pending competitor snapshot,
// ask the AI advisor for a price, fall back to the quantile rule on any AI
// failure, and record the insight.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/metrics"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/pricing"
	"github.com/sells-group/pricing-cli/internal/store"
)

// ReasonProductNotFound is the lastError recorded on a snapshot whose
// product does not exist.
const ReasonProductNotFound = "product_not_found"

// Config holds the worker's immutable settings. Fallback margins are used
// as given, zero included.
type Config struct {
	PollInterval time.Duration
	Fallback     pricing.FallbackConfig
}

// DefaultConfig returns a 5s poll and the standard fallback margins.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		Fallback:     pricing.DefaultFallbackConfig(),
	}
}

// Worker processes pending snapshots one at a time. Several workers may share
// a store; the store's atomic claim keeps them from processing the same
// snapshot.
type Worker struct {
	store   store.Store
	advisor Advisor
	cfg     Config
	metrics metrics.Sink
	now     func() time.Time
}

// New creates a Worker. A non-positive poll interval defaults to 5s.
func New(st store.Store, advisor Advisor, cfg Config, sink metrics.Sink) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Worker{
		store:   st,
		advisor: advisor,
		cfg:     cfg,
		metrics: sink,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ClaimNextPending claims the oldest pending snapshot. Returns nil, nil when
// there is no work or another worker won the claim.
func (w *Worker) ClaimNextPending(ctx context.Context) (*model.CompetitorSnapshot, error) {
	snap, err := w.store.ClaimNextPendingSnapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "worker: claim snapshot")
	}
	return snap, nil
}

// ProcessSnapshotOnce prices one claimed snapshot. A missing product fails
// the snapshot. Otherwise exactly one insight is written, from the AI path
// or from the fallback rule, and the snapshot is completed.
//
// Once the snapshot is claimed its outcome is written even if ctx is
// cancelled mid-call; a cancelled AI call ends in a rule-based insight.
func (w *Worker) ProcessSnapshotOnce(ctx context.Context, snap *model.CompetitorSnapshot) error {
	log := zap.L().With(
		zap.String("component", "worker"),
		zap.String("snapshot_id", snap.ID),
		zap.String("product_id", snap.ProductID),
	)

	product, err := w.store.GetProduct(ctx, snap.ProductID)
	if err != nil {
		return eris.Wrapf(err, "worker: load product %s", snap.ProductID)
	}
	if product == nil {
		log.Warn("product missing for snapshot")
		w.metrics.ProductNotFound()
		if err := w.store.FailSnapshot(context.WithoutCancel(ctx), snap.ID, ReasonProductNotFound); err != nil {
			return eris.Wrapf(err, "worker: fail snapshot %s", snap.ID)
		}
		return nil
	}

	payload := pricing.BuildPayload(*product, *snap)

	rec, aiErr := w.advisor.Recommend(ctx, payload)
	if aiErr != nil {
		log.Warn("ai pricing failed, falling back", zap.Error(aiErr))
		w.metrics.AIErrorFallback()
		rec = pricing.Fallback(*product, *snap, w.cfg.Fallback)
		rec.FallbackReason = aiErr.Error()
	}

	insight, err := rec.Insight(*snap, w.advisor.Model(), w.now())
	if err != nil {
		return eris.Wrap(err, "worker: build insight")
	}
	if err := w.store.CompleteSnapshot(context.WithoutCancel(ctx), &insight); err != nil {
		return eris.Wrapf(err, "worker: complete snapshot %s", snap.ID)
	}
	w.metrics.InsightWritten(string(insight.StrategySource))

	log.Info("pricing insight written",
		zap.String("insight_id", insight.ID),
		zap.String("strategy_source", string(insight.StrategySource)),
		zap.Float64("recommended_price", insight.RecommendedPrice),
	)
	return nil
}

// RunOnce claims and processes at most one snapshot. It reports whether a
// snapshot was claimed. A claimed snapshot whose processing errors is moved
// to failed so it does not sit in processing forever.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	snap, err := w.ClaimNextPending(ctx)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}

	zap.L().Info("processing snapshot",
		zap.String("snapshot_id", snap.ID),
		zap.String("product_id", snap.ProductID),
	)

	if err := w.processRecovered(ctx, snap); err != nil {
		reason := fmt.Sprintf("worker_error: %v", err)
		if failErr := w.store.FailSnapshot(context.WithoutCancel(ctx), snap.ID, reason); failErr != nil {
			zap.L().Error("worker: mark snapshot failed",
				zap.String("snapshot_id", snap.ID),
				zap.Error(failErr),
			)
		}
		return true, err
	}
	return true, nil
}

// processRecovered turns a panic during processing into an error so the
// claimed snapshot can still be failed.
func (w *Worker) processRecovered(ctx context.Context, snap *model.CompetitorSnapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("worker: panic: %v", r)
			zap.L().Error("worker: recovered panic",
				zap.String("snapshot_id", snap.ID),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	return w.ProcessSnapshotOnce(ctx, snap)
}

// Run loops until ctx is cancelled. After an idle poll or a failed
// iteration it sleeps for the poll interval; after a processed snapshot it
// immediately looks for the next one.
func (w *Worker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "worker"))
	log.Info("starting pricing worker",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.String("model", w.advisor.Model()),
	)

	for {
		if ctx.Err() != nil {
			log.Info("pricing worker stopped")
			return
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			log.Error("worker iteration failed", zap.Error(err))
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			log.Info("pricing worker stopped")
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}
