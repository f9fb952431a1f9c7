package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ForecastMailer/internal/model"
)

var (
	validate = validator.New()
	fenceRe  = regexp.MustCompile("(?m)^\\s*```[A-Za-z]*\\s*$")
)

// wireAssessment is the JSON object the model is asked to return.
type wireAssessment struct {
	Recommendation string `json:"recommendation" validate:"required,oneof=BUY SELL HOLD"`
	PriceTarget    struct {
		Low  *float64 `json:"low" validate:"required,gte=0"`
		High *float64 `json:"high" validate:"required,gte=0"`
	} `json:"price_target"`
	KeyInsight string `json:"key_insight" validate:"required"`
}

// CleanJSON strips code fences and any prose around the first JSON object in text.
func CleanJSON(text string) (string, error) {
	s := fenceRe.ReplaceAllString(text, "")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return s[start : end+1], nil
}

// ParseAssessment decodes and validates a model response. Every failure is KindOther.
func ParseAssessment(text string) (model.Assessment, error) {
	raw, err := CleanJSON(text)
	if err != nil {
		return model.Assessment{}, NewOtherError("parse response", err)
	}

	var w wireAssessment
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return model.Assessment{}, NewOtherError("decode assessment", err)
	}
	w.Recommendation = strings.ToUpper(strings.TrimSpace(w.Recommendation))
	w.KeyInsight = strings.TrimSpace(w.KeyInsight)
	if err := validate.Struct(&w); err != nil {
		return model.Assessment{}, NewOtherError("validate assessment", err)
	}

	low := decimal.NewFromFloat(*w.PriceTarget.Low)
	high := decimal.NewFromFloat(*w.PriceTarget.High)
	if low.GreaterThan(high) {
		return model.Assessment{}, NewOtherError("validate assessment",
			fmt.Errorf("price_target.low %s > high %s", low, high))
	}

	rec, err := model.ParseRecommendation(w.Recommendation)
	if err != nil {
		return model.Assessment{}, NewOtherError("validate assessment", err)
	}
	return model.Assessment{
		Recommendation: rec,
		PriceTarget:    model.PriceTarget{Low: low, High: high},
		KeyInsight:     w.KeyInsight,
	}, nil
}

// BuildPrompt asks for exactly the three assessment fields as bare JSON.
func BuildPrompt(t model.Ticker, q model.QuoteSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an equity analyst preparing a pre-market briefing for %s (%s).\n\n", t.DisplayName(), t.Symbol)
	fmt.Fprintf(&b, "Current price: $%s\n", q.PriceText())
	fmt.Fprintf(&b, "Previous close: $%s\n", q.PreviousCloseText())
	fmt.Fprintf(&b, "Change: %s%%\n", q.ChangeText())
	fmt.Fprintf(&b, "52-week high: %s\n", q.High52wText())
	fmt.Fprintf(&b, "52-week low: %s\n\n", q.Low52wText())
	b.WriteString(`Give today's outlook for this ticker.

Output as JSON only, no other text:
{
  "recommendation": "BUY" | "SELL" | "HOLD",
  "price_target": {"low": number, "high": number},
  "key_insight": "one sentence"
}`)
	return b.String()
}
