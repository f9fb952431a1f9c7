package model

import "github.com/shopspring/decimal"

// Unavailable is displayed in place of an optional figure the upstream omitted.
const Unavailable = "N/A"

var hundred = decimal.NewFromInt(100)

// Ticker identifies a tradable asset. Symbol is its identity.
type Ticker struct {
	Symbol string `yaml:"symbol" json:"symbol" validate:"required"`
	Name   string `yaml:"name" json:"name"`
}

// DisplayName returns Name, falling back to Symbol.
func (t Ticker) DisplayName() string {
	if t.Name == "" {
		return t.Symbol
	}
	return t.Name
}

// QuoteSnapshot is a point-in-time price read for a ticker.
type QuoteSnapshot struct {
	CurrentPrice     decimal.Decimal     `json:"current_price"`
	PreviousClose    decimal.Decimal     `json:"previous_close"`
	PercentChange    decimal.Decimal     `json:"percent_change"`
	FiftyTwoWeekHigh decimal.NullDecimal `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  decimal.NullDecimal `json:"fifty_two_week_low"`
}

// NewQuoteSnapshot derives the percent change from current and previous.
func NewQuoteSnapshot(current, previous decimal.Decimal, high52w, low52w decimal.NullDecimal) QuoteSnapshot {
	return QuoteSnapshot{
		CurrentPrice:     current,
		PreviousClose:    previous,
		PercentChange:    PercentChange(current, previous),
		FiftyTwoWeekHigh: high52w,
		FiftyTwoWeekLow:  low52w,
	}
}

// PercentChange returns (current-previous)/previous*100 rounded to 2 places.
// A zero previous close yields zero.
func PercentChange(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(2)
}

func (q QuoteSnapshot) PriceText() string         { return q.CurrentPrice.StringFixed(2) }
func (q QuoteSnapshot) PreviousCloseText() string { return q.PreviousClose.StringFixed(2) }
func (q QuoteSnapshot) ChangeText() string        { return q.PercentChange.StringFixed(2) }
func (q QuoteSnapshot) High52wText() string       { return FormatOptional(q.FiftyTwoWeekHigh) }
func (q QuoteSnapshot) Low52wText() string        { return FormatOptional(q.FiftyTwoWeekLow) }

// FormatOptional renders a two-decimal figure or the Unavailable placeholder.
func FormatOptional(d decimal.NullDecimal) string {
	if !d.Valid {
		return Unavailable
	}
	return d.Decimal.StringFixed(2)
}
