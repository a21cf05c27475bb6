// Package observability wires Prometheus metrics into the HTTP layer,
// the node supervisor, and the worker runtime.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	apiInflight  prometheus.Gauge

	jobsTotal    *prometheus.CounterVec
	nodeCapacity *prometheus.GaugeVec
	nodePinned   *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netpulse_api_requests_total",
			Help: "Total HTTP requests handled by the API process.",
		}, []string{"method", "route", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "netpulse_api_request_duration_seconds",
			Help: "HTTP request latency.",
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netpulse_api_inflight_requests",
			Help: "In-flight HTTP requests.",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netpulse_jobs_total",
			Help: "Jobs processed by worker runtime, by driver and terminal status.",
		}, []string{"driver", "status"}),
		nodeCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netpulse_node_capacity",
			Help: "Configured pinned-worker capacity per node.",
		}, []string{"node_id"}),
		nodePinned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netpulse_node_pinned_count",
			Help: "Current pinned-worker count per node.",
		}, []string{"node_id"}),
	}
	reg.MustRegister(m.apiRequests, m.apiDuration, m.apiInflight, m.jobsTotal, m.nodeCapacity, m.nodePinned)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, seconds float64) {
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiDuration.WithLabelValues(method, route, status).Observe(seconds)
}

func (m *Metrics) ApiInflightInc() { m.apiInflight.Inc() }
func (m *Metrics) ApiInflightDec() { m.apiInflight.Dec() }

func (m *Metrics) ObserveJob(driverName, status string) {
	m.jobsTotal.WithLabelValues(driverName, status).Inc()
}

func (m *Metrics) ObserveNode(nodeID string, capacity, pinned int) {
	m.nodeCapacity.WithLabelValues(nodeID).Set(float64(capacity))
	m.nodePinned.WithLabelValues(nodeID).Set(float64(pinned))
}
