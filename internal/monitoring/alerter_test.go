package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/config"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		FallbackRateThreshold: 0.5,
		FailureRateThreshold:  0.2,
		MaxPendingAgeMins:     15,
	}
}

func TestAlerter_Evaluate(t *testing.T) {
	stale := time.Now().UTC().Add(-time.Hour)

	tests := []struct {
		name   string
		health Health
		want   []AlertType
	}{
		{
			name: "healthy",
			health: Health{
				SnapshotsCompleted: 20, SnapshotsFailed: 1, FailureRate: 1.0 / 21,
				InsightsAI: 18, InsightsRuleBased: 2, FallbackRate: 0.1,
			},
		},
		{
			name: "fallback rate",
			health: Health{
				InsightsAI: 2, InsightsRuleBased: 8, FallbackRate: 0.8,
			},
			want: []AlertType{AlertFallbackRate},
		},
		{
			name: "failure rate",
			health: Health{
				SnapshotsCompleted: 6, SnapshotsFailed: 4, FailureRate: 0.4,
			},
			want: []AlertType{AlertFailureRate},
		},
		{
			name: "below sample minimum",
			health: Health{
				SnapshotsCompleted: 1, SnapshotsFailed: 2, FailureRate: 0.66,
				InsightsRuleBased: 3, FallbackRate: 1,
			},
		},
		{
			name: "stale pending",
			health: Health{
				SnapshotsPending: 7, OldestPendingAt: &stale, OldestPendingAgeSecs: 3600,
			},
			want: []AlertType{AlertStalePending},
		},
		{
			name:   "circuit open",
			health: Health{CircuitState: "open"},
			want:   []AlertType{AlertCircuitOpen},
		},
		{
			name: "everything",
			health: Health{
				SnapshotsCompleted: 5, SnapshotsFailed: 5, FailureRate: 0.5,
				InsightsRuleBased: 5, FallbackRate: 1,
				SnapshotsPending: 1, OldestPendingAt: &stale, OldestPendingAgeSecs: 3600,
				CircuitState: "open",
			},
			want: []AlertType{AlertFallbackRate, AlertFailureRate, AlertStalePending, AlertCircuitOpen},
		},
	}

	a := NewAlerter(testMonitoringConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := a.Evaluate(&tt.health)
			var got []AlertType
			for _, al := range alerts {
				got = append(got, al.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlerter_Evaluate_Message(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&Health{InsightsAI: 2, InsightsRuleBased: 8, FallbackRate: 0.8})
	require.Len(t, alerts, 1)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "80.0%")
	assert.Contains(t, alerts[0].Message, "8 of 10 insights")
}

func TestAlerter_Evaluate_ZeroThresholdsDisable(t *testing.T) {
	stale := time.Now().UTC().Add(-24 * time.Hour)
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&Health{
		SnapshotsCompleted: 1, SnapshotsFailed: 9, FailureRate: 0.9,
		InsightsRuleBased: 10, FallbackRate: 1,
		OldestPendingAt: &stale, OldestPendingAgeSecs: 86400,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertFallbackRate, Severity: "medium", Message: "fallback"},
		{Type: AlertStalePending, Severity: "high", Message: "stale"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen}}))

	a = NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}}))
}
