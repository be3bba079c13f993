package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/jobs"
	"github.com/sells-group/pricing-cli/internal/metrics"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/monitoring"
	"github.com/sells-group/pricing-cli/internal/store"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	m := metrics.New()
	return Deps{
		Store:     st,
		Jobs:      jobs.NewService(st),
		Collector: monitoring.NewCollector(st, m, nil),
		Metrics:   m,
	}
}

func seedProduct(t *testing.T, st store.Store, id string) {
	t.Helper()
	price := 29.99
	_, err := st.UpsertProducts(context.Background(), []model.Product{{
		ID:            id,
		BasicInfo:     model.BasicInfo{Name: "Trail Bottle", Category: "Outdoor"},
		CostStructure: map[string]float64{"manufacturing": 10},
		Pricing:       model.ProductPricing{SellingPrice: &price},
	}})
	require.NoError(t, err)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	rec, body := doRequest(t, NewRouter(newTestDeps(t)), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestSync(t *testing.T) {
	deps := newTestDeps(t)
	seedProduct(t, deps.Store, "p1")
	h := NewRouter(deps)

	tests := []struct {
		name    string
		product string
		body    string
		code    int
		errMsg  string
	}{
		{"accepted", "p1", `{"urls":["https://a.com/x","https://a.com/x","https://b.com"],"fx":{"EUR":1.1}}`, http.StatusAccepted, ""},
		{"empty urls", "p1", `{"urls":[]}`, http.StatusBadRequest, "Invalid payload"},
		{"missing urls", "p1", `{}`, http.StatusBadRequest, "Invalid payload"},
		{"invalid url", "p1", `{"urls":["not a url"]}`, http.StatusBadRequest, "Invalid payload"},
		{"bad json", "p1", `{"urls":`, http.StatusBadRequest, "Invalid payload"},
		{"unknown product", "ghost", `{"urls":["https://a.com/x"]}`, http.StatusNotFound, "Product not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := doRequest(t, h, http.MethodPost, "/api/products/"+tt.product+"/sync", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			if tt.errMsg != "" {
				assert.Equal(t, tt.errMsg, body["error"])
				return
			}
			assert.Equal(t, "queued", body["status"])
			jobID, _ := body["jobId"].(string)
			require.NotEmpty(t, jobID)

			job, err := deps.Store.GetScrapeJob(context.Background(), jobID)
			require.NoError(t, err)
			assert.Equal(t, []string{"https://a.com/x", "https://b.com"}, job.URLs)
			assert.Equal(t, map[string]float64{"EUR": 1.1}, job.FXRates)
		})
	}
}

func TestStatus(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()
	h := NewRouter(deps)

	rec, body := doRequest(t, h, http.MethodGet, "/api/products/p1/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No competitor snapshot found", body["error"])

	snap := &model.CompetitorSnapshot{ProductID: "p1", JobID: uuid.NewString(), ScrapedAt: time.Now().UTC()}
	require.NoError(t, deps.Store.CreateSnapshot(ctx, snap))

	rec, body = doRequest(t, h, http.MethodGet, "/api/products/p1/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, body["snapshot"])
	assert.Equal(t, snap.ID, body["snapshot"].(map[string]any)["snapshotId"])
	assert.Nil(t, body["insight"])
}

func TestApplyPrice(t *testing.T) {
	deps := newTestDeps(t)
	seedProduct(t, deps.Store, "p1")
	h := NewRouter(deps)

	rec, body := doRequest(t, h, http.MethodPost, "/api/products/p1/price", `{"price": 24.5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	p, err := deps.Store.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, p.Pricing.SellingPrice)
	assert.InDelta(t, 24.5, *p.Pricing.SellingPrice, 0.0001)

	rec, _ = doRequest(t, h, http.MethodPost, "/api/products/p1/price", `{"price": -1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, h, http.MethodPost, "/api/products/p1/price", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = doRequest(t, h, http.MethodPost, "/api/products/ghost/price", `{"price": 10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product not found", body["error"])
}

func TestStats(t *testing.T) {
	deps := newTestDeps(t)
	require.NoError(t, deps.Store.CreateSnapshot(context.Background(),
		&model.CompetitorSnapshot{ProductID: "p1", JobID: uuid.NewString(), ScrapedAt: time.Now().UTC()}))

	rec, body := doRequest(t, NewRouter(deps), http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1, body["snapshots_pending"], 0)
}

func TestMetricsEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	deps.Metrics.ProductNotFound()

	rec, _ := doRequest(t, NewRouter(deps), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pricing_product_not_found_total 1")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	deps := newTestDeps(t)
	deps.Metrics = nil

	rec, _ := doRequest(t, NewRouter(deps), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMCPMount(t *testing.T) {
	deps := newTestDeps(t)

	rec, _ := doRequest(t, NewRouter(deps), http.MethodPost, "/mcp", "{}")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	deps.MCP = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec, _ = doRequest(t, NewRouter(deps), http.MethodPost, "/mcp", "{}")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCORS(t *testing.T) {
	deps := newTestDeps(t)
	deps.CORSOrigins = []string{"https://app.example.com"}
	h := NewRouter(deps)

	req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
