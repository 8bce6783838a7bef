// v1
// internal/observability/metrics.go
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ingestAccepted    prometheus.Counter
	ingestRejected    prometheus.Counter
	anomaliesFound    *prometheus.CounterVec
	correctionsOK     prometheus.Counter
	correctionsStale  prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ingestAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_readings_accepted_total",
			Help: "Meter readings accepted from Kafka.",
		}),
		ingestRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_readings_rejected_total",
			Help: "Meter readings rejected during decode or validation.",
		}),
		anomaliesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anomalies_reported_total",
			Help: "Anomalies reported by kind across rollup computations.",
		}, []string{"kind"}),
		correctionsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corrections_applied_total",
			Help: "Shift aggregate corrections persisted.",
		}),
		correctionsStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corrections_stale_total",
			Help: "Correction applies rejected by the optimistic check.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits observed.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses observed.",
		}),
	}
	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.ingestAccepted,
		m.ingestRejected,
		m.anomaliesFound,
		m.correctionsOK,
		m.correctionsStale,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

func (m *Metrics) ObserveHTTP(route string, status int, dur time.Duration) {
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

func (m *Metrics) IngestAccepted()             { m.ingestAccepted.Inc() }
func (m *Metrics) IngestRejected()             { m.ingestRejected.Inc() }
func (m *Metrics) AnomalyReported(kind string) { m.anomaliesFound.WithLabelValues(kind).Inc() }
func (m *Metrics) CorrectionApplied()          { m.correctionsOK.Inc() }
func (m *Metrics) CorrectionStale()            { m.correctionsStale.Inc() }
func (m *Metrics) CacheHit()                   { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss()                  { m.cacheMisses.Inc() }

// Handler exposes the registry for the /metrics route.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
