package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"ForecastMailer/internal/model"
)

// Breaker guards a QuoteSource with a circuit breaker. An open circuit fails
// fast with ErrQuoteUnavailable instead of calling upstream.
type Breaker struct {
	src QuoteSource
	cb  *gobreaker.CircuitBreaker
}

// NewBreaker trips after maxFailures consecutive failures and probes again after cooldown.
func NewBreaker(src QuoteSource, maxFailures uint32, cooldown time.Duration) *Breaker {
	st := gobreaker.Settings{Name: src.Name()}
	st.Interval = 0
	st.Timeout = cooldown
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= maxFailures
	}
	return &Breaker{src: src, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *Breaker) Name() string { return b.src.Name() }

// State reports the current circuit state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) FetchQuote(ctx context.Context, symbol string) (model.QuoteSnapshot, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		q, err := b.src.FetchQuote(ctx, symbol)
		return q, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return model.QuoteSnapshot{}, fmt.Errorf("%w: %s: %w", ErrQuoteUnavailable, symbol, err)
		}
		return model.QuoteSnapshot{}, err
	}
	return v.(model.QuoteSnapshot), nil
}
