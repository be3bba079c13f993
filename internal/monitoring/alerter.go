package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFallbackRate AlertType = "fallback_rate"
	AlertFailureRate  AlertType = "snapshot_failure_rate"
	AlertStalePending AlertType = "stale_pending_snapshot"
	AlertCircuitOpen  AlertType = "ai_circuit_open"
)

// Rate alerts need at least this many samples.
const minRateSampleCount = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Health snapshot against configured thresholds and
// sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(h *Health) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	insights := h.InsightsAI + h.InsightsRuleBased
	if a.cfg.FallbackRateThreshold > 0 && insights >= minRateSampleCount && h.FallbackRate > a.cfg.FallbackRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFallbackRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Rule-based fallback rate %.1f%% exceeds threshold %.1f%% (%d of %d insights)",
				h.FallbackRate*100, a.cfg.FallbackRateThreshold*100, h.InsightsRuleBased, insights,
			),
			Details: map[string]any{
				"fallback_rate": h.FallbackRate,
				"threshold":     a.cfg.FallbackRateThreshold,
				"rule_based":    h.InsightsRuleBased,
				"insights":      insights,
			},
			Timestamp: now,
		})
	}

	finished := h.SnapshotsCompleted + h.SnapshotsFailed
	if a.cfg.FailureRateThreshold > 0 && finished >= minRateSampleCount && h.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Snapshot failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				h.FailureRate*100, a.cfg.FailureRateThreshold*100, h.SnapshotsFailed, finished,
			),
			Details: map[string]any{
				"failure_rate": h.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       h.SnapshotsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	maxAge := time.Duration(a.cfg.MaxPendingAgeMins) * time.Minute
	if maxAge > 0 && h.OldestPendingAt != nil && h.OldestPendingAgeSecs > maxAge.Seconds() {
		alerts = append(alerts, Alert{
			Type:     AlertStalePending,
			Severity: "high",
			Message: fmt.Sprintf(
				"Oldest pending snapshot is %s old (limit %s, %d pending)",
				(time.Duration(h.OldestPendingAgeSecs) * time.Second).Round(time.Second), maxAge, h.SnapshotsPending,
			),
			Details: map[string]any{
				"oldest_pending_at": h.OldestPendingAt,
				"pending":           h.SnapshotsPending,
			},
			Timestamp: now,
		})
	}

	if h.CircuitState == "open" {
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "medium",
			Message:   "AI circuit breaker is open; new snapshots are priced by the fallback rule",
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
