// Package jobs creates scrape jobs for the external competitor scraper.
package jobs

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/store"
)

// ErrNoValidURLs is returned when none of the requested URLs survive
// sanitization. No job is created.
var ErrNoValidURLs = eris.New("at least one valid URL is required")

// ErrProductNotFound is returned when the job targets an unknown product.
var ErrProductNotFound = eris.New("product not found")

// EnqueueRequest describes a competitor scrape to queue.
type EnqueueRequest struct {
	ProductID string
	URLs      []string
	FXRates   map[string]float64
	Priority  int
}

// EnqueueResult identifies the queued job.
type EnqueueResult struct {
	JobID  string          `json:"jobId"`
	Status model.JobStatus `json:"status"`
}

// Service queues scrape jobs.
type Service struct {
	store store.Store
	// RequireProduct rejects jobs for products missing from the store.
	RequireProduct bool
}

// NewService creates a Service backed by st.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Enqueue sanitizes the URLs and creates a queued scrape job.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	urls := SanitizeURLs(req.URLs)
	if len(urls) == 0 {
		return nil, ErrNoValidURLs
	}

	if s.RequireProduct {
		product, err := s.store.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, eris.Wrapf(err, "jobs: load product %s", req.ProductID)
		}
		if product == nil {
			return nil, ErrProductNotFound
		}
	}

	fx := req.FXRates
	if fx == nil {
		fx = map[string]float64{}
	}

	job := &model.ScrapeJob{
		ProductID: req.ProductID,
		URLs:      urls,
		FXRates:   fx,
		Status:    model.JobStatusQueued,
		Attempts:  0,
		Priority:  req.Priority,
	}
	if err := s.store.CreateScrapeJob(ctx, job); err != nil {
		return nil, eris.Wrapf(err, "jobs: create scrape job for %s", req.ProductID)
	}

	zap.L().Info("scrape job enqueued",
		zap.String("component", "jobs"),
		zap.String("job_id", job.ID),
		zap.String("product_id", req.ProductID),
		zap.Int("url_count", len(urls)),
	)

	return &EnqueueResult{JobID: job.ID, Status: job.Status}, nil
}

// SanitizeURLs trims, validates and dedupes raw URLs, keeping first-seen
// order. Only absolute URLs with a scheme and host are kept. Scheme and host
// are lowercased and fragments dropped.
func SanitizeURLs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	valid := make([]string, 0, len(raw))

	for _, r := range raw {
		trimmed := strings.TrimSpace(r)
		if trimmed == "" {
			continue
		}

		u, err := url.Parse(trimmed)
		if err != nil || u.Scheme == "" || u.Host == "" {
			zap.L().Warn("invalid URL skipped",
				zap.String("component", "jobs"),
				zap.String("url", trimmed),
			)
			continue
		}

		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		u.RawFragment = ""

		stored := u.String()
		key := dedupeKey(*u)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		valid = append(valid, stored)
	}

	return valid
}

// dedupeKey treats "https://a.com" and "https://a.com/" as the same page.
func dedupeKey(u url.URL) string {
	if u.Path == "" && u.RawPath == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u.String()
}
