package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/remote"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	campus          string
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	remoteTotal     *prometheus.CounterVec
	federationParts *prometheus.CounterVec
	cascadePasses   prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	stageDuration   *prometheus.HistogramVec

	requestCount         uint64
	requestDurationTotal uint64
	remoteCount          uint64
	remoteFailureCount   uint64
	partialCount         uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
}

// NewMetricsService registers core Prometheus collectors. campus is attached
// to snapshots so federated dashboards can tell nodes apart.
func NewMetricsService(campus string) *MetricsService {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"campus": campus}

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "http_request_duration_seconds",
		Help:        "Duration of HTTP requests in seconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests",
		ConstLabels: constLabels,
	}, []string{"method", "path", "status"})

	remoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "remote_call_duration_seconds",
		Help:        "Duration of delegate calls to peer campuses",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"peer", "outcome"})

	remoteTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "remote_calls_total",
		Help:        "Total delegate calls to peer campuses",
		ConstLabels: constLabels,
	}, []string{"peer", "outcome"})

	federationParts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "federation_partial_results_total",
		Help:        "Federated listings answered without one of the requested campuses",
		ConstLabels: constLabels,
	}, []string{"peer"})

	cascadePasses := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "enrollment_cascade_passes",
		Help:        "Passes needed to clear the enrollments of a deleted student",
		Buckets:     []float64{1, 2, 3, 4, 8, 16, 32},
		ConstLabels: constLabels,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "teacher_name_cache_hits_total",
		Help:        "Teacher names served from cache",
		ConstLabels: constLabels,
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "teacher_name_cache_misses_total",
		Help:        "Teacher names resolved from the directory",
		ConstLabels: constLabels,
	})

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "store_stage_duration_seconds",
		Help:        "Duration of store interactions by stage",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"stage"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "goroutines_total",
		Help:        "Total number of goroutines",
		ConstLabels: constLabels,
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, remoteDuration, remoteTotal, federationParts,
		cascadePasses, cacheHits, cacheMisses, stageDuration, goroutines)

	return &MetricsService{
		campus:          campus,
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		remoteDuration:  remoteDuration,
		remoteTotal:     remoteTotal,
		federationParts: federationParts,
		cascadePasses:   cascadePasses,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		stageDuration:   stageDuration,
	}
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveRemoteCall records one delegate call.
func (m *MetricsService) ObserveRemoteCall(peer, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.remoteDuration.WithLabelValues(peer, outcome).Observe(duration.Seconds())
	m.remoteTotal.WithLabelValues(peer, outcome).Inc()
	atomic.AddUint64(&m.remoteCount, 1)
	if outcome != remote.OutcomeOK {
		atomic.AddUint64(&m.remoteFailureCount, 1)
	}
}

// RecordFederationPartial counts a listing that dropped a peer's rows.
func (m *MetricsService) RecordFederationPartial(peer string) {
	if m == nil {
		return
	}
	m.federationParts.WithLabelValues(peer).Inc()
	atomic.AddUint64(&m.partialCount, 1)
}

// ObserveCascadePasses records how many passes a student cleanup took.
func (m *MetricsService) ObserveCascadePasses(passes int) {
	if m == nil {
		return
	}
	m.cascadePasses.Observe(float64(passes))
}

// RecordTeacherCache records teacher-name cache hits and misses of one lookup.
func (m *MetricsService) RecordTeacherCache(hits, misses int) {
	if m == nil {
		return
	}
	m.cacheHits.Add(float64(hits))
	m.cacheMisses.Add(float64(misses))
	atomic.AddUint64(&m.cacheHitCount, uint64(hits))
	atomic.AddUint64(&m.cacheMissCount, uint64(misses))
}

// ObserveStage records store timing for a named stage.
func (m *MetricsService) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.NodeMetrics {
	if m == nil {
		return models.NodeMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var hitRatio float64
	if hits+misses > 0 {
		hitRatio = float64(hits) / float64(hits+misses)
	}

	return models.NodeMetrics{
		Campus:                   m.campus,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		RemoteCalls:              atomic.LoadUint64(&m.remoteCount),
		RemoteFailures:           atomic.LoadUint64(&m.remoteFailureCount),
		FederationPartials:       atomic.LoadUint64(&m.partialCount),
		TeacherCacheHitRatio:     hitRatio,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
