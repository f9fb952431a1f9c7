package collector

import (
	"context"
	"errors"
	"fmt"

	"ForecastMailer/internal/model"
)

// ErrQuoteUnavailable wraps every quote failure. Callers skip the ticker; they never retry.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// QuoteSource returns a point-in-time price snapshot for a symbol.
type QuoteSource interface {
	FetchQuote(ctx context.Context, symbol string) (model.QuoteSnapshot, error)
	Name() string
}

func unavailable(symbol, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrQuoteUnavailable, symbol, fmt.Sprintf(format, args...))
}
