package model

import (
	"math"
	"time"
)

// PricingStatus tracks a snapshot through the pricing worker.
type PricingStatus string

const (
	PricingStatusPending    PricingStatus = "pending"
	PricingStatusProcessing PricingStatus = "processing"
	PricingStatusCompleted  PricingStatus = "completed"
	PricingStatusFailed     PricingStatus = "failed"
)

// CanTransition reports whether moving from s to next keeps the status
// monotonic: pending -> processing -> {completed, failed}.
func (s PricingStatus) CanTransition(next PricingStatus) bool {
	switch s {
	case PricingStatusPending:
		return next == PricingStatusProcessing
	case PricingStatusProcessing:
		return next == PricingStatusCompleted || next == PricingStatusFailed
	default:
		return false
	}
}

// CompetitorStatus is the outcome of scraping a single competitor page.
type CompetitorStatus string

const (
	CompetitorStatusSucceeded CompetitorStatus = "succeeded"
	CompetitorStatusFailed    CompetitorStatus = "failed"
)

// CompetitorEntry is one scraped competitor page.
type CompetitorEntry struct {
	Hostname       string           `json:"hostname" yaml:"hostname"`
	URL            string           `json:"url" yaml:"url"`
	RawPriceText   *string          `json:"rawPriceText" yaml:"rawPriceText"`
	ParsedPriceUSD *float64         `json:"parsedPriceUsd" yaml:"parsedPriceUsd"`
	Currency       *string          `json:"currency" yaml:"currency"`
	Status         CompetitorStatus `json:"status" yaml:"status"`
	ErrorReason    string           `json:"errorReason,omitempty" yaml:"errorReason,omitempty"`
	Notes          string           `json:"notes,omitempty" yaml:"notes,omitempty"`
	ScrapedAt      time.Time        `json:"scrapedAt" yaml:"scrapedAt"`
}

// Price returns the parsed USD price when it is present and a real number.
func (e CompetitorEntry) Price() (float64, bool) {
	if e.ParsedPriceUSD == nil || math.IsNaN(*e.ParsedPriceUSD) {
		return 0, false
	}
	return *e.ParsedPriceUSD, true
}

// SnapshotStats aggregates scrape outcomes for a snapshot.
type SnapshotStats struct {
	SuccessCount int            `json:"successCount" yaml:"successCount"`
	FailureCount int            `json:"failureCount" yaml:"failureCount"`
	Domains      map[string]int `json:"domains" yaml:"domains"`
}

// CompetitorSnapshot is the result of one scrape job. The pricing worker is
// the only writer of PricingStatus once the snapshot leaves pending.
type CompetitorSnapshot struct {
	ID               string            `json:"snapshotId" yaml:"snapshotId"`
	ProductID        string            `json:"productId" yaml:"productId"`
	JobID            string            `json:"jobId" yaml:"jobId"`
	ScrapedAt        time.Time         `json:"scrapedAt" yaml:"scrapedAt"`
	ScrapeLatencyMs  int64             `json:"scrapeLatencyMs" yaml:"scrapeLatencyMs"`
	Competitors      []CompetitorEntry `json:"competitors" yaml:"competitors"`
	Stats            SnapshotStats     `json:"stats" yaml:"stats"`
	PricingStatus    PricingStatus     `json:"pricingStatus" yaml:"pricingStatus"`
	PricingInsightID *string           `json:"pricingInsightId,omitempty" yaml:"pricingInsightId,omitempty"`
	LastError        *string           `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	CreatedAt        time.Time         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt" yaml:"updatedAt"`
}

// ComputeStats derives success/failure counts and per-domain counts from the
// competitor entries.
func (s *CompetitorSnapshot) ComputeStats() SnapshotStats {
	stats := SnapshotStats{Domains: make(map[string]int)}
	for _, c := range s.Competitors {
		if c.Status == CompetitorStatusSucceeded {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		if c.Hostname != "" {
			stats.Domains[c.Hostname]++
		}
	}
	return stats
}
