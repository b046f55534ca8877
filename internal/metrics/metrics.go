// Package metrics exposes Prometheus collectors for the authorization flows.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oauth_demo"

// Flow outcomes used as the "outcome" label
const (
	OutcomeToken         = "token"
	OutcomeNoToken       = "no_token"
	OutcomeUpstreamError = "upstream_error"
	OutcomeStateMismatch = "state_mismatch"
	OutcomeUnknownState  = "unknown_state"
	OutcomeError         = "error"
)

// Metrics holds the collectors, registered on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	flowsStarted     prometheus.Counter
	flowsCompleted   *prometheus.CounterVec
	flowsExpired     prometheus.Counter
	exchangeDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		flowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_started_total",
			Help:      "Authorization flows started from the start page.",
		}),
		flowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_completed_total",
			Help:      "Callbacks handled, by outcome.",
		}, []string{"outcome"}),
		flowsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_expired_total",
			Help:      "Pending flows removed by the cleanup sweep.",
		}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_exchange_duration_seconds",
			Help:      "Latency of token endpoint calls, by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.flowsStarted,
		m.flowsCompleted,
		m.flowsExpired,
		m.exchangeDuration,
		m.httpRequests,
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FlowStarted() {
	if m == nil {
		return
	}
	m.flowsStarted.Inc()
}

func (m *Metrics) FlowCompleted(outcome string) {
	if m == nil {
		return
	}
	m.flowsCompleted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FlowsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.flowsExpired.Add(float64(n))
}

func (m *Metrics) ObserveExchange(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.exchangeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
