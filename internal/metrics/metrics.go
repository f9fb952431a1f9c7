package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "forecastmailer"

// Metrics records pipeline activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs              prometheus.Counter
	quotesUnavailable *prometheus.CounterVec
	assessments       *prometheus.CounterVec
	providerAttempts  *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	runDuration       prometheus.Histogram
	lastRunResults    prometheus.Gauge
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs started",
		}),
		quotesUnavailable: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_unavailable_total",
			Help:      "Tickers skipped because no quote could be obtained",
		}, []string{"symbol"}),
		assessments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Assessments produced, by outcome",
		}, []string{"outcome"}),
		providerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Forecast provider calls, by result",
		}, []string{"result"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Digest deliveries, by channel and status",
		}, []string{"channel", "status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastRunResults: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_results",
			Help:      "Ticker results in the most recent digest",
		}),
	}
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runs.Inc()
}

func (m *Metrics) QuoteUnavailable(symbol string) {
	if m == nil {
		return
	}
	m.quotesUnavailable.WithLabelValues(symbol).Inc()
}

// Assessment counts one per-ticker outcome: "real" or "fallback".
func (m *Metrics) Assessment(degraded bool) {
	if m == nil {
		return
	}
	outcome := "real"
	if degraded {
		outcome = "fallback"
	}
	m.assessments.WithLabelValues(outcome).Inc()
}

// ObserveAttempt satisfies forecast.AttemptObserver.
func (m *Metrics) ObserveAttempt(result string) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Delivery(channel string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.deliveries.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) RunFinished(d time.Duration, results int) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.lastRunResults.Set(float64(results))
}
