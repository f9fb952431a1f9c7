package forecast

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ForecastMailer/internal/model"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 5 * time.Second

	// DegradedInsight is the key insight of every fallback assessment.
	DegradedInsight = "AI forecast unavailable at this time; showing a neutral placeholder. Please review this ticker manually."
)

var fallbackBand = decimal.NewFromInt(5)

// SleepFunc waits for d. It returns early with ctx.Err() when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AttemptObserver receives the result of every provider attempt ("ok", "rate_limited", "other").
type AttemptObserver interface {
	ObserveAttempt(result string)
}

// Outcome is the tagged result of a policy run. Assessment is always set.
type Outcome struct {
	Assessment model.Assessment
	Attempts   int
	Retried    bool
	Degraded   bool
	LastErr    error
}

// AssessFunc performs one provider attempt.
type AssessFunc func(ctx context.Context) (model.Assessment, error)

// Policy retries rate-limited attempts with linear backoff and otherwise
// falls back to a neutral assessment.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       SleepFunc
	Observer    AttemptObserver
	Log         zerolog.Logger
}

// NewPolicy returns a policy with real-time sleeping and a no-op logger.
func NewPolicy(maxAttempts int, baseDelay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Sleep:       Sleep,
		Log:         zerolog.Nop(),
	}
}

// Run never fails: it returns the first real assessment, or a fallback after
// a non-rate-limit error, exhausted attempts, or a cancelled wait.
func (p Policy) Run(ctx context.Context, quote model.QuoteSnapshot, assess AssessFunc) Outcome {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		a, err := assess(ctx)
		if err == nil {
			p.observe("ok")
			return Outcome{Assessment: a, Attempts: attempt, Retried: attempt > 1}
		}
		lastErr = err
		kind := KindOf(err)
		p.observe(string(kind))

		if kind != KindRateLimited || attempt == maxAttempts {
			break
		}
		delay := time.Duration(attempt) * p.BaseDelay
		p.Log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("forecast rate limited, backing off")
		if err := sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	if attempt > maxAttempts {
		attempt = maxAttempts
	}

	p.Log.Warn().Err(lastErr).Int("attempts", attempt).Msg("forecast unavailable, using fallback")
	return Outcome{
		Assessment: Fallback(quote),
		Attempts:   attempt,
		Retried:    attempt > 1,
		Degraded:   true,
		LastErr:    lastErr,
	}
}

func (p Policy) observe(result string) {
	if p.Observer != nil {
		p.Observer.ObserveAttempt(result)
	}
}

// Fallback synthesizes a HOLD assessment spanning the current price +/- 5, floored at zero.
func Fallback(quote model.QuoteSnapshot) model.Assessment {
	low := quote.CurrentPrice.Sub(fallbackBand)
	if low.IsNegative() {
		low = decimal.Zero
	}
	return model.Assessment{
		Recommendation: model.Hold,
		PriceTarget:    model.PriceTarget{Low: low, High: quote.CurrentPrice.Add(fallbackBand)},
		KeyInsight:     DegradedInsight,
	}
}
