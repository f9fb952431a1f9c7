package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Recommendation is the action suggested by an assessment.
type Recommendation string

const (
	Buy  Recommendation = "BUY"
	Sell Recommendation = "SELL"
	Hold Recommendation = "HOLD"
)

// ParseRecommendation accepts BUY, SELL or HOLD in any case.
func ParseRecommendation(s string) (Recommendation, error) {
	switch r := Recommendation(strings.ToUpper(strings.TrimSpace(s))); r {
	case Buy, Sell, Hold:
		return r, nil
	default:
		return "", fmt.Errorf("unknown recommendation %q", s)
	}
}

// PriceTarget is an expected trading range. Low <= High.
type PriceTarget struct {
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`
}

func (p PriceTarget) String() string {
	return fmt.Sprintf("%s - %s", p.Low.StringFixed(2), p.High.StringFixed(2))
}

// Assessment is a structured recommendation for one ticker.
type Assessment struct {
	Recommendation Recommendation `json:"recommendation"`
	PriceTarget    PriceTarget    `json:"price_target"`
	KeyInsight     string         `json:"key_insight"`
}
