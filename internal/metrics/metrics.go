// Package metrics provides Prometheus metrics for the certificate mailer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "certmailer"

// Collector holds all Prometheus metrics. It satisfies dispatch.Observer.
type Collector struct {
	// Dispatch metrics
	SendsTotal      *prometheus.CounterVec
	SendDuration    *prometheus.HistogramVec
	BatchSize       prometheus.Histogram
	RecordingErrors prometheus.Counter

	// Transport metrics
	TransportFallbacks prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the metrics, plus Go runtime and process collectors, with a
// fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the metrics with reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		SendsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sends_total",
				Help:      "Send attempts by result",
			},
			[]string{"result"},
		),
		SendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_duration_seconds",
				Help:      "Time from job start to outcome, including rendering",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		),
		BatchSize: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Recipients per bulk send",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		RecordingErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recording_errors_total",
				Help:      "Delivery records that could not be written",
			},
		),
		TransportFallbacks: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_fallbacks_total",
				Help:      "Switches to the disposable test transport after failed verification",
			},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120},
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}
}

// ObserveBatch records the size of a bulk send.
func (c *Collector) ObserveBatch(size int) {
	c.BatchSize.Observe(float64(size))
}

// ObserveSend records one job outcome.
func (c *Collector) ObserveSend(result string, elapsed time.Duration) {
	c.SendsTotal.WithLabelValues(result).Inc()
	c.SendDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// RecordingFailed counts a swallowed recorder error.
func (c *Collector) RecordingFailed() {
	c.RecordingErrors.Inc()
}

// TransportFellBack counts a switch to the test transport.
func (c *Collector) TransportFellBack() {
	c.TransportFallbacks.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
