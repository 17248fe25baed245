package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// ingestion pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	artifactsProcessed prometheus.Counter
	artifactsFailed    prometheus.Counter
	analysisDuration   prometheus.Histogram
	eventsPublished    *prometheus.CounterVec
	subscribers        prometheus.Gauge
}

// NewMetricsService registers the collectors on a private registry.
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
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	artifactsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_artifacts_processed_total",
		Help: "Artifacts that completed analysis successfully",
	})

	artifactsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_artifacts_failed_total",
		Help: "Artifacts whose analysis terminated in failure",
	})

	analysisDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_analysis_duration_seconds",
		Help:    "Wall time of a single artifact analysis",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_published_total",
		Help: "Realtime events fanned out, by event type",
	}, []string{"type"})

	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_subscribers",
		Help: "Currently connected realtime subscribers",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		artifactsProcessed, artifactsFailed, analysisDuration, eventsPublished, subscribers, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		artifactsProcessed: artifactsProcessed,
		artifactsFailed:    artifactsFailed,
		analysisDuration:   analysisDuration,
		eventsPublished:    eventsPublished,
		subscribers:        subscribers,
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

// ObserveHTTPRequest records request duration and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup tracks listing cache hits and misses.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordArtifactOutcome counts a finished pipeline run.
func (m *MetricsService) RecordArtifactOutcome(succeeded bool, analysisTime time.Duration) {
	if m == nil {
		return
	}
	if succeeded {
		m.artifactsProcessed.Inc()
	} else {
		m.artifactsFailed.Inc()
	}
	m.analysisDuration.Observe(analysisTime.Seconds())
}

// RecordEventPublished counts one realtime fan-out.
func (m *MetricsService) RecordEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// SubscriberConnected adjusts the live subscriber gauge.
func (m *MetricsService) SubscriberConnected(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}
