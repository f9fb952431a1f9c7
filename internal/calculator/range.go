package calculator

import "github.com/shopspring/decimal"

// TradingDaysPerYear is the bar window scanned for a 52-week range.
const TradingDaysPerYear = 252

// Bar is one daily high/low pair. Either side may be missing.
type Bar struct {
	High decimal.NullDecimal
	Low  decimal.NullDecimal
}

// FiftyTwoWeekRange scans the most recent 252 bars and returns the high and low.
func FiftyTwoWeekRange(bars []Bar) (high, low decimal.NullDecimal) {
	return Range(bars, TradingDaysPerYear)
}

// Range returns the extreme high and low over the last window bars.
// Missing values are skipped; a side with no usable value comes back invalid.
func Range(bars []Bar, window int) (high, low decimal.NullDecimal) {
	start := len(bars) - window
	if start < 0 {
		start = 0
	}
	for _, b := range bars[start:] {
		if b.High.Valid && (!high.Valid || b.High.Decimal.GreaterThan(high.Decimal)) {
			high = b.High
		}
		if b.Low.Valid && (!low.Valid || b.Low.Decimal.LessThan(low.Decimal)) {
			low = b.Low
		}
	}
	return high, low
}
