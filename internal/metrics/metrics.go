// Package metrics exposes Prometheus counters for the hubs, the event
// dispatcher, the REST client and the stores. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sipdash"

// Metrics holds all collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	hubEvents     *prometheus.CounterVec
	hubReconnects *prometheus.CounterVec
	hubState      *prometheus.GaugeVec
	hubInvokes    *prometheus.CounterVec

	dispatchFailures *prometheus.CounterVec

	restRequests *prometheus.CounterVec
	restDuration *prometheus.HistogramVec

	storeErrors *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		hubEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_events_total",
			Help:      "Push events received per hub and event name",
		}, []string{"hub", "event"}),
		hubReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_reconnects_total",
			Help:      "Reconnect attempts per hub and outcome",
		}, []string{"hub", "result"}),
		hubState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_connected",
			Help:      "1 when the hub connection is established",
		}, []string{"hub"}),
		hubInvokes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_invocations_total",
			Help:      "Client to server invocations per method and outcome",
		}, []string{"hub", "method", "result"}),
		dispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_handler_failures_total",
			Help:      "Event handlers that returned an error or panicked",
		}, []string{"event"}),
		restRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rest_requests_total",
			Help:      "REST calls per method and status",
		}, []string{"method", "status"}),
		restDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rest_request_duration_seconds",
			Help:      "REST call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store operations that ended with an error",
		}, []string{"store", "op"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HubEvent counts a received push event.
func (m *Metrics) HubEvent(hub, event string) {
	if m == nil {
		return
	}
	m.hubEvents.WithLabelValues(hub, event).Inc()
}

// HubReconnect counts a reconnect attempt.
func (m *Metrics) HubReconnect(hub string, err error) {
	if m == nil {
		return
	}
	m.hubReconnects.WithLabelValues(hub, result(err)).Inc()
}

// SetHubConnected records the hub's connection state.
func (m *Metrics) SetHubConnected(hub string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.hubState.WithLabelValues(hub).Set(v)
}

// HubInvoke counts an invocation.
func (m *Metrics) HubInvoke(hub, method string, err error) {
	if m == nil {
		return
	}
	m.hubInvokes.WithLabelValues(hub, method, result(err)).Inc()
}

// DispatchFailure counts a failed event handler.
func (m *Metrics) DispatchFailure(event string) {
	if m == nil {
		return
	}
	m.dispatchFailures.WithLabelValues(event).Inc()
}

// RESTRequest records a REST call. Status 0 means no response arrived.
func (m *Metrics) RESTRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.restRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.restDuration.WithLabelValues(method).Observe(d.Seconds())
}

// StoreError counts a store operation that failed.
func (m *Metrics) StoreError(store, op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(store, op).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
