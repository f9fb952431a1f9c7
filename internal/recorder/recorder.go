package recorder

import (
	"context"
	"time"

	"ForecastMailer/internal/model"
)

// RunSummary is one row of digest_runs.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	RecordedAt time.Time `json:"recorded_at"`
	RunDate    string    `json:"run_date"`
	RunTime    string    `json:"run_time"`
	Results    int       `json:"results"`
	Degraded   int       `json:"degraded"`
	Delivered  bool      `json:"delivered"`
}

// Recorder persists digest history for analysis.
type Recorder interface {
	RecordDigest(d *model.Digest) error
	MarkDelivered(runID string, deliveryErr error) error
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}
