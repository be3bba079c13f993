package main

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/api"
	"github.com/sells-group/pricing-cli/internal/config"
	"github.com/sells-group/pricing-cli/internal/jobs"
	"github.com/sells-group/pricing-cli/internal/metrics"
	"github.com/sells-group/pricing-cli/internal/monitoring"
	"github.com/sells-group/pricing-cli/internal/pricing"
	"github.com/sells-group/pricing-cli/internal/resilience"
	"github.com/sells-group/pricing-cli/internal/store"
	"github.com/sells-group/pricing-cli/internal/worker"
	anthropicpkg "github.com/sells-group/pricing-cli/pkg/anthropic"
)

// appEnv holds the store and services shared by the commands.
type appEnv struct {
	Store     store.Store
	Metrics   *metrics.Metrics
	Breaker   *resilience.CircuitBreaker
	Jobs      *jobs.Service
	Collector *monitoring.Collector
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "pricing.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates config for mode, opens and migrates the store, and
// builds the shared services. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	m := metrics.New()
	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		"anthropic", cfg.Resilience.CircuitThreshold, cfg.Resilience.CircuitResetSecs,
	))

	jobSvc := jobs.NewService(st)
	jobSvc.RequireProduct = true

	return &appEnv{
		Store:     st,
		Metrics:   m,
		Breaker:   breaker,
		Jobs:      jobSvc,
		Collector: monitoring.NewCollector(st, m, breaker),
	}, nil
}

// newAdvisor builds the AI advisor from config. With pricing.fallback_only
// every snapshot is priced by the rule.
func (e *appEnv) newAdvisor() worker.Advisor {
	if cfg.Pricing.FallbackOnly {
		zap.L().Warn("ai pricing disabled, using fallback rule only")
		return worker.DisabledAdvisor(cfg.Anthropic.Model)
	}

	var opts []option.RequestOption
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	client := anthropicpkg.NewClient(cfg.Anthropic.Key, opts...)

	policy := resilience.NewPolicy(resilience.FromRetryConfig(
		cfg.Resilience.RetryAttempts,
		cfg.Resilience.RetryInitialBackoffMs,
		cfg.Resilience.RetryMaxBackoffMs,
	), e.Breaker)

	return worker.NewAIAdvisor(client, worker.AdvisorConfig{
		Model:        cfg.Anthropic.Model,
		MaxTokens:    cfg.Anthropic.MaxTokens,
		Temperature:  cfg.Anthropic.Temperature,
		Timeout:      cfg.Pricing.AITimeout(),
		BandClamp:    cfg.Pricing.AIBandClamp,
		RateLimitRPS: cfg.Anthropic.RateLimitRPS,
		RateBurst:    cfg.Anthropic.RateBurst,
	}, policy, e.Metrics)
}

// newWorker builds the pricing worker.
func (e *appEnv) newWorker() *worker.Worker {
	return worker.New(e.Store, e.newAdvisor(), worker.Config{
		PollInterval: cfg.Pricing.PollInterval(),
		Fallback: pricing.FallbackConfig{
			DesiredMargin: cfg.Pricing.FallbackTargetMargin,
			MinMargin:     cfg.Pricing.FallbackMinMargin,
		},
	}, e.Metrics)
}

// apiDeps wires the HTTP and MCP surfaces.
func (e *appEnv) apiDeps() api.Deps {
	return api.Deps{
		Store:       e.Store,
		Jobs:        e.Jobs,
		Collector:   e.Collector,
		Metrics:     e.Metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
	}
}

// newChecker builds the background health checker.
func (e *appEnv) newChecker(mc config.MonitoringConfig) *monitoring.Checker {
	return monitoring.NewChecker(e.Collector, monitoring.NewAlerter(mc), mc)
}
