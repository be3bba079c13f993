package model

import "time"

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the job has finished.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// ScrapeJob is a requested unit of competitor data collection. Jobs are
// created queued and advanced by the external scraper.
type ScrapeJob struct {
	ID         string             `json:"jobId" yaml:"jobId"`
	ProductID  string             `json:"productId" yaml:"productId"`
	URLs       []string           `json:"urls" yaml:"urls"`
	FXRates    map[string]float64 `json:"fxRates,omitempty" yaml:"fxRates,omitempty"`
	Status     JobStatus          `json:"status" yaml:"status"`
	Attempts   int                `json:"attempts" yaml:"attempts"`
	Priority   int                `json:"priority" yaml:"priority"`
	RetryAt    *time.Time         `json:"retryAt,omitempty" yaml:"retryAt,omitempty"`
	LastError  *string            `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	SnapshotID *string            `json:"snapshotId,omitempty" yaml:"snapshotId,omitempty"`
	CreatedAt  time.Time          `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt" yaml:"updatedAt"`
}
