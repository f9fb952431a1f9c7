package pipeline

import (
	"time"

	"github.com/google/uuid"

	"ForecastMailer/internal/model"
)

const (
	RunDateLayout = "Monday, January 2, 2006"
	RunTimeLayout = "3:04:05 PM"
)

// Assemble wraps results into a Digest stamped with now. now should already be
// in the display timezone. The results slice is copied.
func Assemble(results []model.TickerResult, now time.Time, marketOpen string) *model.Digest {
	out := make([]model.TickerResult, len(results))
	copy(out, results)
	return &model.Digest{
		RunID:          uuid.NewString(),
		RunDate:        now.Format(RunDateLayout),
		RunTime:        now.Format(RunTimeLayout),
		MarketOpenTime: marketOpen,
		GeneratedAt:    now,
		Results:        out,
	}
}
