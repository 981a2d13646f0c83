package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Feed metrics
	fetchAttempts   *prometheus.CounterVec
	refreshCycles   prometheus.Counter
	cycleDuration   prometheus.Histogram
	providerHealthy *prometheus.GaugeVec
	healthScore     prometheus.Gauge
	snapshotStale   prometheus.Gauge
	snapshotAssets  prometheus.Gauge
	subscribers     prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Feed metrics
	r.fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedd_fetch_attempts_total",
			Help: "Total number of provider fetch attempts",
		},
		[]string{"provider", "outcome"},
	)
	r.refreshCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedd_refresh_cycles_total",
			Help: "Total number of refresh cycles completed",
		},
	)
	r.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedd_refresh_cycle_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	r.providerHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedd_provider_healthy",
			Help: "Whether a provider is currently considered healthy (1 or 0)",
		},
		[]string{"provider"},
	)
	r.healthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedd_health_score",
			Help: "Percentage of providers currently healthy",
		},
	)
	r.snapshotStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedd_snapshot_stale",
			Help: "Whether the published snapshot is stale (1 or 0)",
		},
	)
	r.snapshotAssets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedd_snapshot_assets",
			Help: "Number of assets in the published snapshot",
		},
	)
	r.subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedd_subscribers",
			Help: "Number of active snapshot subscribers",
		},
	)

	reg.MustRegister(r.fetchAttempts)
	reg.MustRegister(r.refreshCycles)
	reg.MustRegister(r.cycleDuration)
	reg.MustRegister(r.providerHealthy)
	reg.MustRegister(r.healthScore)
	reg.MustRegister(r.snapshotStale)
	reg.MustRegister(r.snapshotAssets)
	reg.MustRegister(r.subscribers)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordFetchAttempt records one provider fetch attempt and its outcome.
func (r *Registry) RecordFetchAttempt(provider, outcome string) {
	r.fetchAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordRefreshCycle records a completed refresh cycle.
func (r *Registry) RecordRefreshCycle(duration float64) {
	r.refreshCycles.Inc()
	r.cycleDuration.Observe(duration)
}

// SetProviderHealthy sets the health gauge for one provider.
func (r *Registry) SetProviderHealthy(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	r.providerHealthy.WithLabelValues(provider).Set(v)
}

// SetHealthScore sets the aggregate health score gauge.
func (r *Registry) SetHealthScore(score int) {
	r.healthScore.Set(float64(score))
}

// SetSnapshotState records stale flag and asset count of the published
// snapshot.
func (r *Registry) SetSnapshotState(stale bool, assets int) {
	v := 0.0
	if stale {
		v = 1.0
	}
	r.snapshotStale.Set(v)
	r.snapshotAssets.Set(float64(assets))
}

// SetSubscribers sets the active subscriber count.
func (r *Registry) SetSubscribers(count int) {
	r.subscribers.Set(float64(count))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
