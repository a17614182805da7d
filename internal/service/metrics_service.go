package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidkeep/storage-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for the ops endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheHitRatio   prometheus.Gauge
	sweepDuration   prometheus.Observer
	sweepsTotal     prometheus.Counter
	sweepErrors     prometheus.Counter
	overageAccounts prometheus.Gauge
	assetsArchived  prometheus.Counter
	assetsDeleted   prometheus.Counter
	chunksReceived  prometheus.Counter
	bytesUploaded   prometheus.Counter
	uploadsDone     prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	sweepCount           uint64
	archivedCount        uint64
	deletedCount         uint64
	uploadCount          uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usage_cache_hits_total",
		Help: "Total usage snapshot cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usage_cache_misses_total",
		Help: "Total usage snapshot cache misses",
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "usage_cache_hit_ratio",
		Help: "Ratio of usage cache hits to total lookups",
	})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quota_sweep_duration_seconds",
		Help:    "Duration of quota maintenance sweeps",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	sweepsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quota_sweeps_total",
		Help: "Total quota maintenance sweeps run",
	})

	sweepErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quota_sweep_errors_total",
		Help: "Total per-account errors recorded during sweeps",
	})

	overageAccounts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quota_overage_accounts",
		Help: "Accounts over quota as of the last sweep",
	})

	assetsArchived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assets_archived_total",
		Help: "Total assets moved to the archive tier",
	})

	assetsDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assets_deleted_total",
		Help: "Total archived assets permanently deleted",
	})

	chunksReceived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upload_chunks_received_total",
		Help: "Total upload chunks accepted",
	})

	bytesUploaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upload_bytes_total",
		Help: "Total bytes accepted across upload chunks",
	})

	uploadsDone := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uploads_completed_total",
		Help: "Total upload sessions assembled into assets",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, cacheHitRatio,
		sweepDuration, sweepsTotal, sweepErrors, overageAccounts,
		assetsArchived, assetsDeleted, chunksReceived, bytesUploaded, uploadsDone, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheHitRatio:   cacheHitRatio,
		sweepDuration:   sweepDuration,
		sweepsTotal:     sweepsTotal,
		sweepErrors:     sweepErrors,
		overageAccounts: overageAccounts,
		assetsArchived:  assetsArchived,
		assetsDeleted:   assetsDeleted,
		chunksReceived:  chunksReceived,
		bytesUploaded:   bytesUploaded,
		uploadsDone:     uploadsDone,
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

// RecordCacheLookup records a usage cache hit or miss and updates the ratio.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordSweep folds one maintenance report into the sweep metrics.
func (m *MetricsService) RecordSweep(report *models.MaintenanceReport, duration time.Duration) {
	if m == nil || report == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	m.sweepsTotal.Inc()
	m.sweepErrors.Add(float64(len(report.Errors)))
	m.overageAccounts.Set(float64(report.OverageDetected))
	m.assetsArchived.Add(float64(report.AssetsArchived))
	m.assetsDeleted.Add(float64(report.AssetsDeleted))
	atomic.AddUint64(&m.sweepCount, 1)
	atomic.AddUint64(&m.archivedCount, uint64(report.AssetsArchived))
	atomic.AddUint64(&m.deletedCount, uint64(report.AssetsDeleted))
}

// RecordChunk counts one accepted upload chunk.
func (m *MetricsService) RecordChunk(sizeBytes int64) {
	if m == nil {
		return
	}
	m.chunksReceived.Inc()
	m.bytesUploaded.Add(float64(sizeBytes))
}

// RecordUploadCompleted counts one assembled upload session.
func (m *MetricsService) RecordUploadCompleted() {
	if m == nil {
		return
	}
	m.uploadsDone.Inc()
	atomic.AddUint64(&m.uploadCount, 1)
}

// Snapshot returns aggregated metrics for the ops stats endpoint.
func (m *MetricsService) Snapshot() models.SystemMetricsSnapshot {
	if m == nil {
		return models.SystemMetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		SweepsRun:                atomic.LoadUint64(&m.sweepCount),
		AssetsArchived:           atomic.LoadUint64(&m.archivedCount),
		AssetsDeleted:            atomic.LoadUint64(&m.deletedCount),
		UploadsCompleted:         atomic.LoadUint64(&m.uploadCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
