package model

import "time"

// TickerResult is one entry of a digest. Assessment is always set; Degraded
// marks a locally synthesized fallback.
type TickerResult struct {
	Ticker     Ticker        `json:"ticker"`
	Quote      QuoteSnapshot `json:"quote"`
	Assessment Assessment    `json:"assessment"`
	Attempts   int           `json:"attempts"`
	Degraded   bool          `json:"degraded"`
}

// Digest is the complete output of one pipeline run.
type Digest struct {
	RunID          string         `json:"run_id"`
	RunDate        string         `json:"run_date"`
	RunTime        string         `json:"run_time"`
	MarketOpenTime string         `json:"market_open_time"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Results        []TickerResult `json:"results"`
}

// DegradedCount returns how many results carry a fallback assessment.
func (d *Digest) DegradedCount() int {
	n := 0
	for _, r := range d.Results {
		if r.Degraded {
			n++
		}
	}
	return n
}
