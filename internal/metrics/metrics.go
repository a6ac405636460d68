// Package metrics exposes Prometheus collectors fed from the event bus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/apqgate/internal/eventbus"
	events "github.com/hanpama/apqgate/internal/events"
)

const namespace = "apqgate"

// Metrics holds the collectors registered by Register.
type Metrics struct {
	PersistedQueries *prometheus.CounterVec
	CacheErrors      *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     prometheus.Histogram
	GraphQLDuration  *prometheus.HistogramVec
	GraphQLErrors    *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
}

func newCounterVec(component, name, help string, labelNames ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	}, labelNames)
}

func newHistogramVec(component, name, help string, labelNames ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labelNames)
}

// Register creates the collectors, registers them with reg and subscribes
// them to bus. The returned function detaches the subscriptions.
func Register(reg prometheus.Registerer, bus *eventbus.Bus) (*Metrics, func(), error) {
	m := &Metrics{
		PersistedQueries: newCounterVec("apq", "requests_total",
			"Persisted query decisions by outcome and error kind.", "outcome", "error"),
		CacheErrors: newCounterVec("apq", "cache_errors_total",
			"Cache provider failures by operation.", "op"),
		HTTPRequests: newCounterVec("http", "requests_total",
			"HTTP requests by method and status code.", "method", "status"),
		HTTPDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		GraphQLDuration: newHistogramVec("graphql", "operation_duration_seconds",
			"GraphQL execution latency by operation type.", "type"),
		GraphQLErrors: newCounterVec("graphql", "errors_total",
			"GraphQL errors returned by operation type.", "type"),
		UpstreamRequests: newCounterVec("upstream", "requests_total",
			"Upstream forwards by status code.", "status"),
	}
	for _, c := range []prometheus.Collector{
		m.PersistedQueries, m.CacheErrors, m.HTTPRequests, m.HTTPDuration,
		m.GraphQLDuration, m.GraphQLErrors, m.UpstreamRequests,
	} {
		if err := reg.Register(c); err != nil {
			return nil, nil, err
		}
	}

	unsubs := []func(){
		eventbus.On(bus, func(_ context.Context, e events.PersistedQuery) {
			m.PersistedQueries.WithLabelValues(e.Outcome, e.Error).Inc()
			if e.CacheErr != nil {
				m.CacheErrors.WithLabelValues(e.CacheOp).Inc()
			}
		}),
		eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) {
			m.HTTPRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.HTTPDuration.Observe(e.Duration.Seconds())
		}),
		eventbus.On(bus, func(_ context.Context, e events.GraphQLFinish) {
			typ := opLabel(e.OperationType)
			m.GraphQLDuration.WithLabelValues(typ).Observe(e.Duration.Seconds())
			if n := len(e.Errors); n > 0 {
				m.GraphQLErrors.WithLabelValues(typ).Add(float64(n))
			}
		}),
		eventbus.On(bus, func(_ context.Context, e events.UpstreamFinish) {
			status := "error"
			if e.Err == nil {
				status = strconv.Itoa(e.Status)
			}
			m.UpstreamRequests.WithLabelValues(status).Inc()
		}),
	}
	return m, func() {
		for _, u := range unsubs {
			u()
		}
	}, nil
}

func opLabel(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
