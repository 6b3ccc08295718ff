// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private prometheus.Registry so tests can build as many as they like.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	QuickBooksRequests  *prometheus.CounterVec
	QuickBooksRefreshes *prometheus.CounterVec
	AIToolCalls         *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route"},
		),
		QuickBooksRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickbooks_api_requests_total",
				Help: "QuickBooks API calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		QuickBooksRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickbooks_token_refresh_total",
				Help: "QuickBooks OAuth token refreshes by outcome",
			},
			[]string{"outcome"},
		),
		AIToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_tool_calls_total",
				Help: "AI tool invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.HTTPRequestsTotal,
		r.HTTPRequestDuration,
		r.QuickBooksRequests,
		r.QuickBooksRefreshes,
		r.AIToolCalls,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Outcome maps an error to the "outcome" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveQuickBooks records one QuickBooks API call. A nil Registry is a no-op.
func (r *Registry) ObserveQuickBooks(operation string, err error) {
	if r == nil {
		return
	}
	r.QuickBooksRequests.WithLabelValues(operation, Outcome(err)).Inc()
}

// ObserveRefresh records one token refresh attempt. A nil Registry is a no-op.
func (r *Registry) ObserveRefresh(err error) {
	if r == nil {
		return
	}
	r.QuickBooksRefreshes.WithLabelValues(Outcome(err)).Inc()
}

// ObserveTool records one AI tool invocation. A nil Registry is a no-op.
func (r *Registry) ObserveTool(tool string, ok bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	r.AIToolCalls.WithLabelValues(tool, outcome).Inc()
}
