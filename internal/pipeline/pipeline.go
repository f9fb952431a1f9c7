package pipeline

//go:generate mockgen -source=pipeline.go -destination=mock_pipeline_test.go -package=pipeline_test

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ForecastMailer/internal/forecast"
	"ForecastMailer/internal/metrics"
	"ForecastMailer/internal/model"
)

const DefaultItemDelay = 5 * time.Second

// QuoteSource is the quote dependency of the pipeline.
type QuoteSource interface {
	FetchQuote(ctx context.Context, symbol string) (model.QuoteSnapshot, error)
}

// Forecaster produces one assessment per call. Retries are handled by the pipeline's policy.
type Forecaster interface {
	Assess(ctx context.Context, t model.Ticker, q model.QuoteSnapshot) (model.Assessment, error)
}

// Options carries the injected run parameters. Zero values fall back to production defaults.
type Options struct {
	Policy     forecast.Policy
	ItemDelay  time.Duration
	MarketOpen string
	Location   *time.Location
	Sleep      forecast.SleepFunc
	Now        func() time.Time
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Pipeline processes a ticker list strictly one item at a time.
type Pipeline struct {
	quotes     QuoteSource
	forecaster Forecaster
	policy     forecast.Policy
	itemDelay  time.Duration
	marketOpen string
	loc        *time.Location
	sleep      forecast.SleepFunc
	now        func() time.Time
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// New creates a Pipeline. A negative ItemDelay disables the inter-item pause.
func New(quotes QuoteSource, forecaster Forecaster, opts Options) *Pipeline {
	p := &Pipeline{
		quotes:     quotes,
		forecaster: forecaster,
		policy:     opts.Policy,
		itemDelay:  opts.ItemDelay,
		marketOpen: opts.MarketOpen,
		loc:        opts.Location,
		sleep:      opts.Sleep,
		now:        opts.Now,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
	if p.policy.MaxAttempts == 0 {
		p.policy.MaxAttempts = forecast.DefaultMaxAttempts
	}
	if p.policy.BaseDelay == 0 {
		p.policy.BaseDelay = forecast.DefaultBaseDelay
	}
	if p.itemDelay == 0 {
		p.itemDelay = DefaultItemDelay
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	if p.sleep == nil {
		p.sleep = forecast.Sleep
	}
	if p.policy.Sleep == nil {
		p.policy.Sleep = p.sleep
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.metrics != nil && p.policy.Observer == nil {
		p.policy.Observer = p.metrics
	}
	return p
}

// Run produces a digest for tickers in order. Tickers without a quote are
// skipped; every produced result carries an assessment. The only error is a
// done ctx observed between items.
func (p *Pipeline) Run(ctx context.Context, tickers []model.Ticker) (*model.Digest, error) {
	start := p.now()
	p.metrics.RunStarted()
	p.log.Info().Int("tickers", len(tickers)).Msg("pipeline run started")

	results := make([]model.TickerResult, 0, len(tickers))
	for i, t := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run aborted at %s: %w", t.Symbol, err)
		}

		res, ok := p.process(ctx, t)
		if !ok {
			continue
		}
		results = append(results, res)

		if i < len(tickers)-1 && p.itemDelay > 0 {
			p.log.Debug().Dur("delay", p.itemDelay).Msg("throttling before next ticker")
			if err := p.sleep(ctx, p.itemDelay); err != nil {
				return nil, fmt.Errorf("run aborted after %s: %w", t.Symbol, err)
			}
		}
	}

	now := p.now()
	digest := Assemble(results, now.In(p.loc), p.marketOpen)
	p.metrics.RunFinished(now.Sub(start), len(digest.Results))
	p.log.Info().
		Str("run_id", digest.RunID).
		Int("results", len(digest.Results)).
		Int("skipped", len(tickers)-len(digest.Results)).
		Int("degraded", digest.DegradedCount()).
		Msg("pipeline run finished")
	return digest, nil
}

func (p *Pipeline) process(ctx context.Context, t model.Ticker) (model.TickerResult, bool) {
	log := p.log.With().Str("symbol", t.Symbol).Logger()

	quote, err := p.quotes.FetchQuote(ctx, t.Symbol)
	if err != nil {
		log.Warn().Err(err).Msg("quote unavailable, skipping ticker")
		p.metrics.QuoteUnavailable(t.Symbol)
		return model.TickerResult{}, false
	}

	policy := p.policy
	policy.Log = log
	out := policy.Run(ctx, quote, func(ctx context.Context) (model.Assessment, error) {
		return p.forecaster.Assess(ctx, t, quote)
	})
	p.metrics.Assessment(out.Degraded)

	log.Info().
		Str("price", quote.PriceText()).
		Str("recommendation", string(out.Assessment.Recommendation)).
		Int("attempts", out.Attempts).
		Bool("degraded", out.Degraded).
		Msg("ticker processed")

	return model.TickerResult{
		Ticker:     t,
		Quote:      quote,
		Assessment: out.Assessment,
		Attempts:   out.Attempts,
		Degraded:   out.Degraded,
	}, true
}
