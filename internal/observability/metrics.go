package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks message outcomes on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	messages   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	upstream   *prometheus.CounterVec
	inProgress prometheus.Gauge

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_messages_total",
			Help: "Processed bus messages by handler and outcome code.",
		}, []string{"handler", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provenance_message_duration_seconds",
			Help:    "Time spent processing one bus message.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_upstream_calls_total",
			Help: "Calls to build-system and release-tool APIs by method and status.",
		}, []string{"service", "method", "status"}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "provenance_messages_in_progress",
			Help: "Messages currently being processed.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_http_requests_total",
			Help: "Admin HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provenance_http_request_duration_seconds",
			Help:    "Admin HTTP request latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages,
		m.latency,
		m.upstream,
		m.inProgress,
		m.apiRequests,
		m.apiLatency,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// ObserveMessage records one processed message. code is empty on success.
func (m *Metrics) ObserveMessage(handler, code string, dur time.Duration) {
	if m == nil {
		return
	}
	if handler == "" {
		handler = "none"
	}
	if code == "" {
		code = "ok"
	}
	m.messages.WithLabelValues(handler, code).Inc()
	m.latency.WithLabelValues(handler).Observe(dur.Seconds())
}

func (m *Metrics) ObserveUpstream(service, method, status string) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(service, method, status).Inc()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(route).Observe(dur.Seconds())
}

func (m *Metrics) InProgressInc() {
	if m == nil {
		return
	}
	m.inProgress.Inc()
}

func (m *Metrics) InProgressDec() {
	if m == nil {
		return
	}
	m.inProgress.Dec()
}

// WriteHTTP serves the registry in the Prometheus exposition format.
func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	m.handler.ServeHTTP(w, r)
}
