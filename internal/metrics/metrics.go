package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric exported on /metrics.
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Licensing Metrics
	LicenseOutcomesTotal *prometheus.CounterVec
	LicensesIssuedTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewRegistry creates a registry with all metrics initialized, plus the
// standard Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{registry: reg}
	r.initHTTPMetrics()
	r.initLicensingMetrics()
	return r
}

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensed_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "licensed_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	r.HTTPRequestsInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "licensed_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
}

func (r *Registry) initLicensingMetrics() {
	r.LicenseOutcomesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensed_license_operations_total",
			Help: "Licensing calls by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: success, error code, or error
	)

	r.LicensesIssuedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensed_licenses_issued_total",
			Help: "Licenses created, by source",
		},
		[]string{"source"}, // admin, purchase
	)
}

// RecordHTTPRequest records a served request. route is the router pattern,
// not the raw path, to keep label cardinality bounded.
func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLicenseOutcome counts one licensing call: a client activate, validate,
// or deactivate, or a staff force_deactivate.
func (r *Registry) RecordLicenseOutcome(op, outcome string) {
	r.LicenseOutcomesTotal.WithLabelValues(op, outcome).Inc()
}

// RecordLicenseIssued counts a newly created license.
func (r *Registry) RecordLicenseIssued(source string) {
	r.LicensesIssuedTotal.WithLabelValues(source).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
