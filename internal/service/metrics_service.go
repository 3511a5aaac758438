package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the email delivery pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	deliveryTotal   *prometheus.CounterVec
	drainBatchSize  prometheus.Histogram
	drainDuration   prometheus.Histogram
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

	deliveryTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "email_deliveries_total",
		Help: "Email delivery attempts by outcome",
	}, []string{"outcome"})

	drainBatchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatcher_drain_batch_size",
		Help:    "Number of deliveries claimed per drain",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	})

	drainDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatcher_drain_duration_seconds",
		Help:    "Duration of one dispatcher drain",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, deliveryTotal, drainBatchSize, drainDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		deliveryTotal:   deliveryTotal,
		drainBatchSize:  drainBatchSize,
		drainDuration:   drainDuration,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordDelivery counts one email delivery attempt by outcome.
func (m *MetricsService) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveryTotal.WithLabelValues(outcome).Inc()
}

// ObserveDrain records the size and duration of one dispatcher drain.
func (m *MetricsService) ObserveDrain(batch int, duration time.Duration) {
	if m == nil {
		return
	}
	m.drainBatchSize.Observe(float64(batch))
	m.drainDuration.Observe(duration.Seconds())
}
