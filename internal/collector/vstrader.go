package collector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"ForecastMailer/internal/calculator"
	"ForecastMailer/internal/model"
)

// VsTraderSource implements QuoteSource using the vstrader REST API.
type VsTraderSource struct {
	client *resty.Client
}

// NewVsTraderSource creates a new source with optional proxy support.
func NewVsTraderSource(baseURL, apiKey, proxyURL string, timeout time.Duration) *VsTraderSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &VsTraderSource{client: client}
}

func (f *VsTraderSource) Name() string { return "vstrader" }

func (f *VsTraderSource) Close() error { return f.client.Close() }

// vsQuote is the JSON shape of /api/v1/quote.
type vsQuote struct {
	Price *float64 `json:"price"`
}

// vsBar is the JSON shape of one /api/v1/bars/daily entry.
type vsBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// FetchQuote reads the live price, then a year of daily bars. The previous
// close is the second-to-last bar's close; the bars also give the 52-week range.
func (f *VsTraderSource) FetchQuote(ctx context.Context, symbol string) (model.QuoteSnapshot, error) {
	var q vsQuote
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&q).
		Get("/api/v1/quote")
	if err != nil {
		return model.QuoteSnapshot{}, fmt.Errorf("%w: %s: vstrader fetch: %w", ErrQuoteUnavailable, symbol, err)
	}
	if !resp.IsSuccess() {
		return model.QuoteSnapshot{}, unavailable(symbol, "vstrader: status %d", resp.StatusCode())
	}
	if q.Price == nil {
		return model.QuoteSnapshot{}, unavailable(symbol, "vstrader: missing price")
	}

	bars, err := f.dailyBars(ctx, symbol, calculator.TradingDaysPerYear)
	if err != nil {
		return model.QuoteSnapshot{}, err
	}
	if len(bars) < 2 {
		return model.QuoteSnapshot{}, unavailable(symbol, "vstrader: need 2 daily bars, got %d", len(bars))
	}
	prev := bars[len(bars)-2].Close
	if prev <= 0 {
		return model.QuoteSnapshot{}, unavailable(symbol, "vstrader: non-positive previous close %v", prev)
	}

	ranged := make([]calculator.Bar, len(bars))
	for i, b := range bars {
		ranged[i] = calculator.Bar{
			High: decimal.NewNullDecimal(decimal.NewFromFloat(b.High)),
			Low:  decimal.NewNullDecimal(decimal.NewFromFloat(b.Low)),
		}
	}
	high, low := calculator.FiftyTwoWeekRange(ranged)
	return model.NewQuoteSnapshot(decimal.NewFromFloat(*q.Price), decimal.NewFromFloat(prev), high, low), nil
}

// dailyBars returns up to limit daily bars in chronological order.
func (f *VsTraderSource) dailyBars(ctx context.Context, symbol string, limit int) ([]vsBar, error) {
	var bars []vsBar
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "limit": strconv.Itoa(limit)}).
		SetResult(&bars).
		Get("/api/v1/bars/daily")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: vstrader bars: %w", ErrQuoteUnavailable, symbol, err)
	}
	if !resp.IsSuccess() {
		return nil, unavailable(symbol, "vstrader bars: status %d", resp.StatusCode())
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	return bars, nil
}
