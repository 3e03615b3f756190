package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/quarter-scheduler/internal/models"
)

// AllocationOutcome is what one engine run reports to metrics.
type AllocationOutcome struct {
	Quarter     string
	Duration    time.Duration
	Sessions    int
	Attempts    int
	Placements  int
	Rollbacks   int
	Utilization float64
}

// MetricsService owns the Prometheus registry and a few atomic totals for
// the JSON summary endpoint. A nil *MetricsService is a valid no-op.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Histogram
	cacheWrite         prometheus.Histogram
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheHitRatio      prometheus.Gauge
	allocationDuration *prometheus.HistogramVec
	sessionsBooked     *prometheus.CounterVec
	placementAttempts  *prometheus.CounterVec
	placementRollbacks *prometheus.CounterVec
	utilization        *prometheus.GaugeVec
	exportJobs         *prometheus.CounterVec
	dbQueryDuration    *prometheus.HistogramVec

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	allocationRuns       uint64
	sessionCount         uint64
	rollbackCount        uint64
}

// NewMetricsService registers all collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	m.cacheLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})
	m.cacheWrite = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})
	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})
	m.cacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})
	m.allocationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_allocation_duration_seconds",
		Help:    "Wall time of one quarter allocation run",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"quarter"})
	m.sessionsBooked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_sessions_booked_total",
		Help: "Sessions placed by the allocation engine",
	}, []string{"quarter"})
	m.placementAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_placement_attempts_total",
		Help: "Instance placement attempts, successful or rolled back",
	}, []string{"quarter"})
	m.placementRollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_placement_rollbacks_total",
		Help: "Instance placements undone because a later session could not be booked",
	}, []string{"quarter"})
	m.utilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_last_utilization_percent",
		Help: "Grid utilization of the most recent run per quarter",
	}, []string{"quarter"})
	m.exportJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_export_jobs_total",
		Help: "Schedule export jobs by format and final status",
	}, []string{"format", "status"})
	m.dbQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})
	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHits, m.cacheMisses, m.cacheHitRatio,
		m.allocationDuration, m.sessionsBooked, m.placementAttempts, m.placementRollbacks, m.utilization,
		m.exportJobs, m.dbQueryDuration, goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request duration and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveAllocation records one engine run.
func (m *MetricsService) ObserveAllocation(out AllocationOutcome) {
	if m == nil {
		return
	}
	m.allocationDuration.WithLabelValues(out.Quarter).Observe(out.Duration.Seconds())
	m.sessionsBooked.WithLabelValues(out.Quarter).Add(float64(out.Sessions))
	m.placementAttempts.WithLabelValues(out.Quarter).Add(float64(out.Attempts))
	m.placementRollbacks.WithLabelValues(out.Quarter).Add(float64(out.Rollbacks))
	m.utilization.WithLabelValues(out.Quarter).Set(out.Utilization)
	atomic.AddUint64(&m.allocationRuns, 1)
	atomic.AddUint64(&m.sessionCount, uint64(out.Sessions))
	atomic.AddUint64(&m.rollbackCount, uint64(out.Rollbacks))
}

// RecordExportJob counts an export job reaching a terminal status.
func (m *MetricsService) RecordExportJob(format models.ExportFormat, status models.ExportStatus) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(string(format), string(status)).Inc()
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// Snapshot aggregates the atomic totals.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	snapshot := models.SystemMetrics{
		RequestsTotal:  requests,
		CacheHits:      hits,
		CacheMisses:    misses,
		AllocationRuns: atomic.LoadUint64(&m.allocationRuns),
		SessionsBooked: atomic.LoadUint64(&m.sessionCount),
		Rollbacks:      atomic.LoadUint64(&m.rollbackCount),
		Goroutines:     runtime.NumGoroutine(),
		GeneratedAt:    time.Now().UTC(),
	}
	if requests > 0 {
		snapshot.AverageRequestDurationMs = float64(atomic.LoadUint64(&m.requestDurationTotal)) / float64(requests) / float64(time.Millisecond)
	}
	if hits+misses > 0 {
		snapshot.CacheHitRatio = float64(hits) / float64(hits+misses)
	}
	return snapshot
}
