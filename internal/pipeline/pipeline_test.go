package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"ForecastMailer/internal/collector"
	"ForecastMailer/internal/forecast"
	"ForecastMailer/internal/metrics"
	"ForecastMailer/internal/model"
	"ForecastMailer/internal/pipeline"
)

var (
	aapl = model.Ticker{Symbol: "AAPL", Name: "Apple"}
	msft = model.Ticker{Symbol: "MSFT", Name: "Microsoft"}
	nvda = model.Ticker{Symbol: "NVDA", Name: "NVIDIA"}

	buy = model.Assessment{
		Recommendation: model.Buy,
		PriceTarget:    model.PriceTarget{Low: decimal.NewFromInt(225), High: decimal.NewFromInt(240)},
		KeyInsight:     "strong momentum",
	}

	fixedNow = time.Date(2026, time.March, 2, 13, 30, 5, 0, time.UTC)
)

type recordingSleeper struct {
	waits []time.Duration
	fail  error
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return r.fail
}

func snapshot(price, prev int64) model.QuoteSnapshot {
	return model.NewQuoteSnapshot(decimal.NewFromInt(price), decimal.NewFromInt(prev), decimal.NullDecimal{}, decimal.NullDecimal{})
}

func newPipeline(qs pipeline.QuoteSource, fc pipeline.Forecaster, s *recordingSleeper) *pipeline.Pipeline {
	return pipeline.New(qs, fc, pipeline.Options{
		MarketOpen: "9:30 AM EST",
		Location:   time.UTC,
		Sleep:      s.Sleep,
		Now:        func() time.Time { return fixedNow },
	})
}

func TestRun_SingleTickerFirstTry(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)
	s := &recordingSleeper{}

	qs.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(snapshot(230, 228), nil).Times(1)
	fc.EXPECT().Assess(gomock.Any(), aapl, gomock.Any()).Return(buy, nil).Times(1)

	d, err := newPipeline(qs, fc, s).Run(context.Background(), []model.Ticker{aapl})
	require.NoError(t, err)
	require.Len(t, d.Results, 1)

	r := d.Results[0]
	assert.Equal(t, model.Buy, r.Assessment.Recommendation)
	assert.Equal(t, "225.00 - 240.00", r.Assessment.PriceTarget.String())
	assert.Equal(t, 1, r.Attempts)
	assert.False(t, r.Degraded)
	assert.Equal(t, "0.88", r.Quote.ChangeText())
	assert.Empty(t, s.waits, "no delay after the last ticker")
}

func TestRun_SkipsTickerWithoutQuote(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)
	s := &recordingSleeper{}

	gomock.InOrder(
		qs.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(model.QuoteSnapshot{}, fmt.Errorf("%w: boom", collector.ErrQuoteUnavailable)),
		qs.EXPECT().FetchQuote(gomock.Any(), "MSFT").Return(snapshot(410, 400), nil),
	)
	fc.EXPECT().Assess(gomock.Any(), msft, gomock.Any()).Return(buy, nil).Times(1)

	d, err := newPipeline(qs, fc, s).Run(context.Background(), []model.Ticker{aapl, msft})
	require.NoError(t, err)
	require.Len(t, d.Results, 1)
	assert.Equal(t, "MSFT", d.Results[0].Ticker.Symbol)
	assert.Empty(t, s.waits)
}

func TestRun_ResultCountAndOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		missing map[string]bool
		want    []string
	}{
		{"all quotes", nil, []string{"AAPL", "MSFT", "NVDA"}},
		{"middle missing", map[string]bool{"MSFT": true}, []string{"AAPL", "NVDA"}},
		{"first and last missing", map[string]bool{"AAPL": true, "NVDA": true}, []string{"MSFT"}},
		{"none", map[string]bool{"AAPL": true, "MSFT": true, "NVDA": true}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			qs := NewMockQuoteSource(ctrl)
			fc := NewMockForecaster(ctrl)

			qs.EXPECT().FetchQuote(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, symbol string) (model.QuoteSnapshot, error) {
					if tt.missing[symbol] {
						return model.QuoteSnapshot{}, collector.ErrQuoteUnavailable
					}
					return snapshot(100, 99), nil
				}).Times(3)
			fc.EXPECT().Assess(gomock.Any(), gomock.Any(), gomock.Any()).Return(buy, nil).Times(len(tt.want))

			d, err := newPipeline(qs, fc, &recordingSleeper{}).Run(context.Background(), []model.Ticker{aapl, msft, nvda})
			require.NoError(t, err)

			got := make([]string, 0, len(d.Results))
			for _, r := range d.Results {
				got = append(got, r.Ticker.Symbol)
				assert.NotEmpty(t, r.Assessment.Recommendation)
			}
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(d.Results), 3)
		})
	}
}

func TestRun_InterItemDelay(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)
	s := &recordingSleeper{}

	qs.EXPECT().FetchQuote(gomock.Any(), gomock.Any()).Return(snapshot(100, 99), nil).Times(3)
	fc.EXPECT().Assess(gomock.Any(), gomock.Any(), gomock.Any()).Return(buy, nil).Times(3)

	_, err := newPipeline(qs, fc, s).Run(context.Background(), []model.Ticker{aapl, msft, nvda})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{pipeline.DefaultItemDelay, pipeline.DefaultItemDelay}, s.waits)
}

func TestRun_RateLimitedThenSuccess(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)
	s := &recordingSleeper{}

	qs.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(snapshot(230, 228), nil)
	gomock.InOrder(
		fc.EXPECT().Assess(gomock.Any(), aapl, gomock.Any()).Return(model.Assessment{}, forecast.NewRateLimitError(429)),
		fc.EXPECT().Assess(gomock.Any(), aapl, gomock.Any()).Return(model.Assessment{}, forecast.NewRateLimitError(429)),
		fc.EXPECT().Assess(gomock.Any(), aapl, gomock.Any()).Return(buy, nil),
	)

	d, err := newPipeline(qs, fc, s).Run(context.Background(), []model.Ticker{aapl})
	require.NoError(t, err)
	require.Len(t, d.Results, 1)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, s.waits)
	assert.Equal(t, buy, d.Results[0].Assessment)
	assert.Equal(t, 3, d.Results[0].Attempts)
	assert.False(t, d.Results[0].Degraded)
}

func TestRun_RateLimitedExhaustedFallsBack(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)
	s := &recordingSleeper{}

	qs.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(snapshot(230, 228), nil)
	fc.EXPECT().Assess(gomock.Any(), aapl, gomock.Any()).Return(model.Assessment{}, forecast.NewRateLimitError(429)).Times(3)

	d, err := newPipeline(qs, fc, s).Run(context.Background(), []model.Ticker{aapl})
	require.NoError(t, err)
	require.Len(t, d.Results, 1)

	r := d.Results[0]
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, s.waits)
	assert.True(t, r.Degraded)
	assert.Equal(t, model.Hold, r.Assessment.Recommendation)
	assert.Equal(t, "225.00 - 235.00", r.Assessment.PriceTarget.String())
	assert.Equal(t, forecast.DegradedInsight, r.Assessment.KeyInsight)
	assert.Equal(t, 1, d.DegradedCount())
}

func TestRun_OtherErrorNoRetry(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)
	s := &recordingSleeper{}

	qs.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(snapshot(230, 228), nil)
	fc.EXPECT().Assess(gomock.Any(), aapl, gomock.Any()).Return(model.Assessment{}, forecast.NewOtherError("bad json", nil)).Times(1)

	d, err := newPipeline(qs, fc, s).Run(context.Background(), []model.Ticker{aapl})
	require.NoError(t, err)
	assert.Empty(t, s.waits)
	assert.True(t, d.Results[0].Degraded)
	assert.Equal(t, 1, d.Results[0].Attempts)
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline(qs, fc, &recordingSleeper{}).Run(ctx, []model.Ticker{aapl, msft})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)
	s := &recordingSleeper{fail: context.DeadlineExceeded}

	qs.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(snapshot(230, 228), nil)
	fc.EXPECT().Assess(gomock.Any(), aapl, gomock.Any()).Return(buy, nil)

	_, err := newPipeline(qs, fc, s).Run(context.Background(), []model.Ticker{aapl, msft})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, s.waits, 1)
}

func TestRun_EmptyTickerList(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	d, err := newPipeline(NewMockQuoteSource(ctrl), NewMockForecaster(ctrl), &recordingSleeper{}).
		Run(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Empty(t, d.Results)
	assert.Equal(t, "9:30 AM EST", d.MarketOpenTime)
}

func TestRun_WithMetrics(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	qs := NewMockQuoteSource(ctrl)
	fc := NewMockForecaster(ctrl)

	qs.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(model.QuoteSnapshot{}, collector.ErrQuoteUnavailable)
	qs.EXPECT().FetchQuote(gomock.Any(), "MSFT").Return(snapshot(410, 400), nil)
	fc.EXPECT().Assess(gomock.Any(), msft, gomock.Any()).Return(buy, nil)

	reg := prometheus.NewRegistry()
	p := pipeline.New(qs, fc, pipeline.Options{
		Location: time.UTC,
		Sleep:    (&recordingSleeper{}).Sleep,
		Now:      func() time.Time { return fixedNow },
		Metrics:  metrics.New(reg),
	})
	_, err := p.Run(context.Background(), []model.Ticker{aapl, msft})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "forecastmailer_quotes_unavailable_total")
	assert.Contains(t, names, "forecastmailer_provider_attempts_total")
}
