package main

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ForecastMailer/internal/collector"
	"ForecastMailer/internal/config"
	"ForecastMailer/internal/forecast"
	"ForecastMailer/internal/logger"
	"ForecastMailer/internal/metrics"
	"ForecastMailer/internal/notifier"
	"ForecastMailer/internal/pipeline"
	"ForecastMailer/internal/recorder"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	closers  []io.Closer
}

// newApp loads config and builds the pipeline. requireDelivery selects full validation.
func newApp(path string, requireDelivery bool) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	validate := cfg.ValidatePipeline
	if requireDelivery {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, err
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &app{cfg: cfg, log: log, registry: reg, metrics: m}

	quotes := a.quoteSource()
	log.Info().Str("source", quotes.Name()).Int("tickers", len(cfg.Tickers)).Msg("quote source ready")

	gemini := forecast.NewGeminiProvider(cfg.Forecast.BaseURL, cfg.Forecast.APIKey, cfg.Forecast.Model, cfg.Proxy, cfg.Forecast.Timeout)
	a.closers = append(a.closers, gemini)
	log.Info().Str("provider", gemini.Name()).Msg("forecast provider ready")

	policy := forecast.NewPolicy(cfg.Forecast.MaxAttempts, cfg.Forecast.BaseDelay)
	itemDelay := cfg.Pipeline.ItemDelay
	if itemDelay == 0 {
		itemDelay = -1
	}
	a.pipeline = pipeline.New(quotes, gemini, pipeline.Options{
		Policy:     policy,
		ItemDelay:  itemDelay,
		MarketOpen: cfg.Schedule.MarketOpen,
		Location:   loc,
		Logger:     logger.Component(log, "pipeline"),
		Metrics:    m,
	})
	return a, nil
}

func (a *app) quoteSource() collector.QuoteSource {
	qc := a.cfg.QuoteSource
	var src collector.QuoteSource
	switch qc.Provider {
	case "vstrader":
		vs := collector.NewVsTraderSource(qc.BaseURL, qc.APIKey, a.cfg.Proxy, qc.Timeout)
		a.closers = append(a.closers, vs)
		src = vs
	case "static":
		return &collector.StaticSource{Price: decimal.NewFromFloat(qc.StaticPrice)}
	default:
		y := collector.NewYahooSource(qc.BaseURL, a.cfg.Proxy, qc.Timeout)
		a.closers = append(a.closers, y)
		src = y
	}
	if qc.Breaker.Enabled {
		src = collector.NewBreaker(src, qc.Breaker.MaxFailures, qc.Breaker.Cooldown)
	}
	return src
}

// notifiers builds every configured delivery channel. The Telegram notifier is
// also returned on its own for command polling.
func (a *app) notifiers() (*notifier.Multi, *notifier.TelegramNotifier) {
	var list []notifier.Notifier
	if ec := a.cfg.Email; ec.Enabled() {
		list = append(list, notifier.NewEmailNotifier(ec.SMTPHost, ec.SMTPPort, ec.Username, ec.Password, ec.Sender(), ec.To,
			logger.Component(a.log, "email")))
	}
	var tg *notifier.TelegramNotifier
	if tc := a.cfg.Telegram; tc.Enabled() {
		tg = notifier.NewTelegramNotifier(tc.BaseURL, tc.BotToken, tc.ChatID, a.cfg.Proxy, logger.Component(a.log, "telegram"))
		a.closers = append(a.closers, tg)
		list = append(list, tg)
	}
	return notifier.NewMulti(a.metrics, list...), tg
}

func (a *app) recorder() recorder.Recorder {
	path := a.cfg.Database.SQLitePath
	if path == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(path, logger.Component(a.log, "recorder"))
	if err != nil {
		a.log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	a.closers = append(a.closers, sr)
	return sr
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
}
