// Package metrics holds the Prometheus collectors exposed at GET /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPRequests counts HTTP requests by method, route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reelstream_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "route", "status"})

// HTTPDuration tracks HTTP request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "reelstream_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// PlaybackEvents counts history writes by kind (progress, like, reset).
var PlaybackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reelstream_playback_events_total",
	Help: "Watch-history writes by kind.",
}, []string{"kind"})

// EnrichmentJobs counts rating enrichment outcomes.
// result is one of: rated, not_found, error, panic, dropped.
var EnrichmentJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reelstream_enrichment_jobs_total",
	Help: "Rating enrichment jobs by result.",
}, []string{"result"})

// EnrichmentQueueDepth is the number of jobs waiting for a worker.
var EnrichmentQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reelstream_enrichment_queue_depth",
	Help: "Rating enrichment jobs waiting in the queue.",
})

// AuthEvents counts login and registration attempts.
var AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reelstream_auth_events_total",
	Help: "Auth events by type and result.",
}, []string{"event", "result"})

// PoolStats is a snapshot of database pool usage.
type PoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
}

var poolOnce sync.Once

// WatchPool exposes database pool gauges read from stats at scrape time.
// Only the first call registers; later pools are ignored.
func WatchPool(stats func() PoolStats) {
	poolOnce.Do(func() {
		gauge := func(name, help string, pick func(PoolStats) int32) {
			promauto.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
				return float64(pick(stats()))
			})
		}
		gauge("reelstream_db_pool_conns", "Open database connections.", func(s PoolStats) int32 { return s.Total })
		gauge("reelstream_db_pool_idle_conns", "Idle database connections.", func(s PoolStats) int32 { return s.Idle })
		gauge("reelstream_db_pool_acquired_conns", "Database connections in use.", func(s PoolStats) int32 { return s.Acquired })
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
