package completeness

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wonny/spxlab/internal/contracts"
)

// Metrics tracks completeness decisions. A nil *Metrics records nothing.
type Metrics struct {
	Checks        *prometheus.CounterVec
	MissingDays   *prometheus.CounterVec
	Errors        prometheus.Counter
	Fallbacks     *prometheus.CounterVec
	BatchDuration prometheus.Histogram
	BatchTickers  prometheus.Gauge
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spxlab_completeness_checks_total",
			Help: "Completeness checks by frequency and overall status",
		}, []string{"frequency", "status"}),
		MissingDays: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spxlab_completeness_missing_days_total",
			Help: "Days recommended for fetching, by frequency",
		}, []string{"frequency"}),
		Errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "spxlab_completeness_errors_total",
			Help: "Per-ticker completeness check failures",
		}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spxlab_completeness_fallbacks_total",
			Help: "Checks answered through a fallback path",
		}, []string{"kind"}), // membership_unknown | identity
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "spxlab_completeness_batch_duration_seconds",
			Help:    "Wall time of batch completeness runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		BatchTickers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spxlab_completeness_batch_tickers",
			Help: "Tickers in the last batch run",
		}),
	}
}

// ObserveResult records one finished check
func (m *Metrics) ObserveResult(freq contracts.Frequency, res contracts.CompletenessResult) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(string(freq), string(res.OverallStatus())).Inc()
	m.MissingDays.WithLabelValues(string(freq)).Add(float64(res.TotalMissingDays()))

	if single, ok := res.(*contracts.SinglePeriodResult); ok && single.Reason == contracts.ReasonMembershipUnknown {
		m.Fallbacks.WithLabelValues(string(contracts.ReasonMembershipUnknown)).Inc()
	}
}

// ObserveIdentityFallback records a check answered under a resolved symbol
func (m *Metrics) ObserveIdentityFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues("identity").Inc()
}

// ObserveError records one per-ticker failure
func (m *Metrics) ObserveError() {
	if m == nil {
		return
	}
	m.Errors.Inc()
}

// ObserveBatch records one batch run
func (m *Metrics) ObserveBatch(tickers int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BatchTickers.Set(float64(tickers))
	m.BatchDuration.Observe(elapsed.Seconds())
}
