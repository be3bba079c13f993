// Package api exposes the pricing pipeline over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/jobs"
	"github.com/sells-group/pricing-cli/internal/metrics"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/monitoring"
	"github.com/sells-group/pricing-cli/internal/store"
)

const maxBodySize = 1 << 20

// Deps holds the collaborators behind the HTTP API.
type Deps struct {
	Store     store.Store
	Jobs      *jobs.Service
	Collector *monitoring.Collector
	// Metrics is optional; when nil /metrics is not mounted.
	Metrics     *metrics.Metrics
	CORSOrigins []string
	// MCP, when set, is mounted at /mcp (streamable HTTP transport).
	MCP http.Handler
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/products/{productID}/sync", handleSync(deps))
		r.Get("/products/{productID}/status", handleStatus(deps))
		r.Post("/products/{productID}/price", handleApplyPrice(deps))
		r.Get("/stats", handleStats(deps))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.MCP != nil {
		r.Handle("/mcp", deps.MCP)
	}

	return r
}

// SyncRequest asks for a competitor scrape of the given URLs.
type SyncRequest struct {
	URLs []string           `json:"urls"`
	FX   map[string]float64 `json:"fx,omitempty"`
}

// ApplyPriceRequest sets a product's selling price.
type ApplyPriceRequest struct {
	Price *float64 `json:"price"`
}

// StatusResponse is the latest snapshot and insight for a product.
type StatusResponse struct {
	Snapshot *model.CompetitorSnapshot `json:"snapshot"`
	Insight  *model.PricingInsight     `json:"insight"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")

		var req SyncRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "Invalid payload", err.Error())
			return
		}
		if issues := validateSync(req); len(issues) > 0 {
			httpError(w, http.StatusBadRequest, "Invalid payload", issues...)
			return
		}

		product, err := deps.Store.GetProduct(r.Context(), productID)
		if err != nil {
			internalError(w, "api: load product", err)
			return
		}
		if product == nil {
			httpError(w, http.StatusNotFound, "Product not found")
			return
		}

		res, err := deps.Jobs.Enqueue(r.Context(), jobs.EnqueueRequest{
			ProductID: productID,
			URLs:      req.URLs,
			FXRates:   req.FX,
		})
		if errors.Is(err, jobs.ErrNoValidURLs) {
			httpError(w, http.StatusBadRequest, "Invalid payload", err.Error())
			return
		}
		if err != nil {
			internalError(w, "api: enqueue scrape job", err)
			return
		}

		zap.L().Info("scrape job enqueued from sync",
			zap.String("product_id", productID),
			zap.String("job_id", res.JobID),
		)
		writeJSON(w, http.StatusAccepted, res)
	}
}

func validateSync(req SyncRequest) []string {
	if len(req.URLs) == 0 {
		return []string{"urls: at least one URL is required"}
	}
	var issues []string
	for i, raw := range req.URLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, fmt.Sprintf("urls[%d]: invalid url", i))
		}
	}
	return issues
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")

		snap, err := deps.Store.GetLatestSnapshot(r.Context(), productID)
		if err != nil {
			internalError(w, "api: latest snapshot", err)
			return
		}
		if snap == nil {
			httpError(w, http.StatusNotFound, "No competitor snapshot found")
			return
		}

		insight, err := deps.Store.GetLatestInsight(r.Context(), productID)
		if err != nil {
			internalError(w, "api: latest insight", err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{Snapshot: snap, Insight: insight})
	}
}

func handleApplyPrice(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")

		var req ApplyPriceRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "Invalid payload", err.Error())
			return
		}
		if req.Price == nil || *req.Price < 0 {
			httpError(w, http.StatusBadRequest, "Invalid payload", "price: must be a number >= 0")
			return
		}

		err := deps.Store.UpdateProductPrice(r.Context(), productID, *req.Price)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Product not found")
			return
		}
		if err != nil {
			internalError(w, "api: apply price", err)
			return
		}

		zap.L().Info("selling price applied",
			zap.String("product_id", productID),
			zap.Float64("price", *req.Price),
		)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := deps.Collector.Collect(r.Context())
		if err != nil {
			internalError(w, "api: collect stats", err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close() //nolint:errcheck
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string, issues ...string) {
	body := map[string]any{"error": msg}
	if len(issues) > 0 {
		body["issues"] = issues
	}
	writeJSON(w, code, body)
}

func internalError(w http.ResponseWriter, action string, err error) {
	zap.L().Error(action, zap.Error(err))
	httpError(w, http.StatusInternalServerError, err.Error())
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
