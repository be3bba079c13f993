package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/pricing-cli/internal/metrics"
	"github.com/sells-group/pricing-cli/internal/pricing"
	"github.com/sells-group/pricing-cli/internal/resilience"
	"github.com/sells-group/pricing-cli/pkg/anthropic"
)

// ErrAIDisabled is the fallback reason recorded when the worker runs
// without an AI advisor.
var ErrAIDisabled = eris.New("ai pricing disabled")

// Advisor produces an AI pricing recommendation for a payload. Any error
// sends the worker down the rule-based path.
type Advisor interface {
	Recommend(ctx context.Context, payload pricing.Payload) (pricing.Recommendation, error)
	// Model names the model recorded in insight metadata.
	Model() string
}

// AdvisorConfig configures the AI pricing call.
type AdvisorConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	// Timeout bounds the whole AI step including retries and rate-limit
	// waits. It must stay below the worker poll interval.
	Timeout time.Duration
	// BandClamp widens the returned band to contain the recommended price.
	BandClamp    bool
	RateLimitRPS float64
	RateBurst    int
}

// AIAdvisor calls Claude through the Anthropic client.
type AIAdvisor struct {
	client  anthropic.Client
	cfg     AdvisorConfig
	limiter *rate.Limiter
	policy  *resilience.Policy
	metrics metrics.Sink
}

// NewAIAdvisor wires an advisor. A nil policy disables retries and circuit
// breaking; a nil sink discards metrics.
func NewAIAdvisor(client anthropic.Client, cfg AdvisorConfig, policy *resilience.Policy, sink metrics.Sink) *AIAdvisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if policy == nil {
		policy = resilience.NewPolicy(resilience.RetryConfig{MaxAttempts: 1}, nil)
	}
	if policy.Retry.ShouldRetry == nil {
		policy.Retry.ShouldRetry = resilience.RetryOnStatus(anthropic.StatusCode)
	}
	if policy.Retry.OnRetry == nil {
		policy.Retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}
	if sink == nil {
		sink = metrics.Nop{}
	}

	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &AIAdvisor{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		policy:  policy,
		metrics: sink,
	}
}

// Model returns the configured model name.
func (a *AIAdvisor) Model() string { return a.cfg.Model }

// Recommend sends the payload to the model and validates the response.
// Latency is recorded for every call; success and failure are counted.
func (a *AIAdvisor) Recommend(ctx context.Context, payload pricing.Payload) (pricing.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	rec, err := a.recommend(ctx, payload)
	a.metrics.ObserveAILatency(time.Since(start))
	if err != nil {
		a.metrics.AIFailure(failureReason(err))
		return pricing.Recommendation{}, err
	}
	a.metrics.AISuccess()
	return rec, nil
}

func (a *AIAdvisor) recommend(ctx context.Context, payload pricing.Payload) (pricing.Recommendation, error) {
	prompt, err := pricing.UserPrompt(payload)
	if err != nil {
		return pricing.Recommendation{}, err
	}

	temp := a.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      pricing.SystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}

	resp, err := resilience.Call(ctx, a.policy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "advisor: rate limit wait")
		}
		return a.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return pricing.Recommendation{}, err
	}

	resp.Usage.LogCost(a.cfg.Model, "pricing")

	parsed, err := pricing.ParseAIResponse(resp.Text())
	if err != nil {
		return pricing.Recommendation{}, err
	}

	rec := pricing.FromAI(parsed, a.cfg.BandClamp)
	rec.InputTokens = resp.Usage.InputTokens
	rec.OutputTokens = resp.Usage.OutputTokens
	return rec, nil
}

// failureReason buckets an AI error for the failure counter label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, pricing.ErrInvalidAIResponse):
		return "invalid_response"
	case anthropic.StatusCode(err) != 0:
		return "api_error"
	default:
		return "transport"
	}
}

// disabledAdvisor always declines, so every snapshot is priced by the
// fallback rule.
type disabledAdvisor struct {
	model string
}

// DisabledAdvisor returns an Advisor that always fails with ErrAIDisabled.
func DisabledAdvisor(model string) Advisor { return disabledAdvisor{model: model} }

func (d disabledAdvisor) Recommend(context.Context, pricing.Payload) (pricing.Recommendation, error) {
	return pricing.Recommendation{}, ErrAIDisabled
}

func (d disabledAdvisor) Model() string { return d.model }
