package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"ForecastMailer/internal/calculator"
	"ForecastMailer/internal/model"
)

const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource implements QuoteSource using the Yahoo Finance chart API.
type YahooSource struct {
	client    *resty.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooSource creates a Yahoo quote source with optional proxy support.
func NewYahooSource(baseURL, proxyURL string, timeout time.Duration) *YahooSource {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Mozilla/5.0")
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &YahooSource{
		client: client,
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
			"NDX":    "^NDX",
			"DJI":    "^DJI",
		},
	}
}

func (f *YahooSource) Name() string { return "yahoo" }

// Close releases the underlying HTTP client.
func (f *YahooSource) Close() error { return f.client.Close() }

func (f *YahooSource) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from the chart API.
type yahooChart struct {
	Chart struct {
		Result []yahooResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooMeta struct {
	Symbol             string   `json:"symbol"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	PreviousClose      *float64 `json:"previousClose"`
	ChartPreviousClose *float64 `json:"chartPreviousClose"`
	FiftyTwoWeekHigh   *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow    *float64 `json:"fiftyTwoWeekLow"`
}

type yahooResult struct {
	Meta       yahooMeta `json:"meta"`
	Indicators struct {
		Quote []struct {
			High []*float64 `json:"high"`
			Low  []*float64 `json:"low"`
		} `json:"quote"`
	} `json:"indicators"`
}

// FetchQuote reads the one-day chart meta for symbol. previousClose there is
// the prior session's close. When the 52-week bounds are missing they are
// derived from a year of daily bars; a failure there leaves them unavailable.
func (f *YahooSource) FetchQuote(ctx context.Context, symbol string) (model.QuoteSnapshot, error) {
	result, err := f.chart(ctx, symbol, "1d")
	if err != nil {
		return model.QuoteSnapshot{}, err
	}
	q, err := snapshotFromMeta(symbol, result.Meta)
	if err != nil {
		return q, err
	}
	if q.FiftyTwoWeekHigh.Valid && q.FiftyTwoWeekLow.Valid {
		return q, nil
	}

	// chartPreviousClose of a 1y range is a year old; only the bars are read here.
	year, err := f.chart(ctx, symbol, "1y")
	if err != nil || len(year.Indicators.Quote) == 0 {
		return q, nil
	}
	bars := year.Indicators.Quote[0]
	high, low := calculator.FiftyTwoWeekRange(dailyBars(bars.High, bars.Low))
	if !q.FiftyTwoWeekHigh.Valid {
		q.FiftyTwoWeekHigh = high
	}
	if !q.FiftyTwoWeekLow.Valid {
		q.FiftyTwoWeekLow = low
	}
	return q, nil
}

func (f *YahooSource) chart(ctx context.Context, symbol, rng string) (yahooResult, error) {
	var chart yahooChart
	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("symbol", f.yahooSymbol(symbol)).
		SetQueryParams(map[string]string{"range": rng, "interval": "1d"}).
		SetResult(&chart).
		SetError(&chart).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return yahooResult{}, fmt.Errorf("%w: %s: yahoo fetch: %w", ErrQuoteUnavailable, symbol, err)
	}
	if chart.Chart.Error != nil {
		return yahooResult{}, unavailable(symbol, "yahoo api error: %s", chart.Chart.Error.Description)
	}
	if !resp.IsSuccess() {
		return yahooResult{}, unavailable(symbol, "yahoo: status %d", resp.StatusCode())
	}
	if len(chart.Chart.Result) == 0 {
		return yahooResult{}, unavailable(symbol, "yahoo: no data returned")
	}
	return chart.Chart.Result[0], nil
}

func dailyBars(highs, lows []*float64) []calculator.Bar {
	n := min(len(highs), len(lows))
	bars := make([]calculator.Bar, n)
	for i := range n {
		bars[i] = calculator.Bar{High: optional(highs[i]), Low: optional(lows[i])}
	}
	return bars
}

func snapshotFromMeta(symbol string, meta yahooMeta) (model.QuoteSnapshot, error) {
	if meta.RegularMarketPrice == nil {
		return model.QuoteSnapshot{}, unavailable(symbol, "yahoo: missing regularMarketPrice")
	}
	prev := meta.PreviousClose
	if prev == nil {
		prev = meta.ChartPreviousClose
	}
	if prev == nil {
		return model.QuoteSnapshot{}, unavailable(symbol, "yahoo: missing previousClose")
	}
	if *prev <= 0 {
		return model.QuoteSnapshot{}, unavailable(symbol, "yahoo: non-positive previousClose %v", *prev)
	}
	return model.NewQuoteSnapshot(
		decimal.NewFromFloat(*meta.RegularMarketPrice),
		decimal.NewFromFloat(*prev),
		optional(meta.FiftyTwoWeekHigh),
		optional(meta.FiftyTwoWeekLow),
	), nil
}

func optional(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}
