package collector

import (
	"context"

	"github.com/shopspring/decimal"

	"ForecastMailer/internal/model"
)

// StaticSource returns controllable fixed data for development and testing.
type StaticSource struct {
	Quotes map[string]model.QuoteSnapshot
	// Price is served, unchanged from the previous close, for symbols missing from Quotes.
	// Zero means such symbols are unavailable.
	Price decimal.Decimal
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) FetchQuote(_ context.Context, symbol string) (model.QuoteSnapshot, error) {
	if q, ok := s.Quotes[symbol]; ok {
		return q, nil
	}
	if s.Price.IsPositive() {
		return model.NewQuoteSnapshot(s.Price, s.Price, decimal.NullDecimal{}, decimal.NullDecimal{}), nil
	}
	return model.QuoteSnapshot{}, unavailable(symbol, "no static quote")
}
