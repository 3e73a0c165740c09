package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agromet"

// Metrics holds the Prometheus collectors for the sync engine and rule engine.
type Metrics struct {
	// Cache and storage.
	CacheLookups *prometheus.CounterVec // labels: tier, result={hit,miss,forced}
	StoreWrites  *prometheus.CounterVec // labels: tier, outcome={inserted,existing,latest,unpersisted}
	Degraded     *prometheus.CounterVec // labels: tier

	// Upstream provider.
	ProviderRequests *prometheus.CounterVec   // labels: endpoint, outcome={success,error}
	ProviderDuration *prometheus.HistogramVec // labels: endpoint

	// Alerts.
	AlertsRaised        *prometheus.CounterVec // labels: outcome={created,duplicate}
	RulesSkipped        prometheus.Counter
	NotificationsFailed prometheus.Counter

	// Scheduler.
	SyncPassDuration  *prometheus.HistogramVec // labels: pass
	SyncFieldFailures *prometheus.CounterVec   // labels: pass
	FetchIntervalMin  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache decisions by tier and result.",
		}, []string{"tier", "result"}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Record persistence outcomes by tier.",
		}, []string{"tier", "outcome"}),
		Degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_responses_total",
			Help:      "Stale cache served after a provider failure.",
		}, []string{"tier"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Upstream provider requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Upstream provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Matched alert rules by outcome.",
		}, []string{"outcome"}),
		RulesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_skipped_total",
			Help:      "Rules skipped because of invalid configuration.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Alert notifications that could not be delivered.",
		}),
		SyncPassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_pass_duration_seconds",
			Help:      "Duration of a scheduled pass over all fields.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"pass"}),
		SyncFieldFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_field_failures_total",
			Help:      "Per-field failures during scheduled passes.",
		}, []string{"pass"}),
		FetchIntervalMin: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_interval_minutes",
			Help:      "Current-weather fetch interval in effect.",
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CacheLookups,
		m.StoreWrites,
		m.Degraded,
		m.ProviderRequests,
		m.ProviderDuration,
		m.AlertsRaised,
		m.RulesSkipped,
		m.NotificationsFailed,
		m.SyncPassDuration,
		m.SyncFieldFailures,
		m.FetchIntervalMin,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
