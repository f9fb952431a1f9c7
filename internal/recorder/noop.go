package recorder

import (
	"context"

	"ForecastMailer/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordDigest(_ *model.Digest) error { return nil }
func (n *NoopRecorder) MarkDelivered(_ string, _ error) error { return nil }
func (n *NoopRecorder) Close() error { return nil }
func (n *NoopRecorder) RecentRuns(_ context.Context, _ int) ([]RunSummary, error) {
	return nil, nil
}
