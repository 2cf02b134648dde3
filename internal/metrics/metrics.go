package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"qrmenu-be/internal/order"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qrmenu"

// Metrics holds the service collectors on a private registry.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	ordersCreated *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	updates       prometheus.Counter
	deliveries    *prometheus.CounterVec
	connections   prometheus.Gauge
	httpDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "Orders placed, by delivery type",
			},
			[]string{"delivery_type"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_status_transitions_total",
				Help:      "Applied order status transitions",
			},
			[]string{"from", "to"},
		),
		updates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_updates_total",
				Help:      "Order updates that did not change the status",
			},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_deliveries_total",
				Help:      "Realtime message deliveries, by result",
			},
			[]string{"result"},
		),
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connections",
				Help:      "Registered realtime connections",
			},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.ordersCreated,
		m.transitions,
		m.updates,
		m.deliveries,
		m.connections,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OrderChanged makes Metrics an order.Notifier.
func (m *Metrics) OrderChanged(_ context.Context, ev order.Event) {
	if m == nil || ev.Order == nil {
		return
	}
	switch ev.Kind {
	case order.EventCreated:
		m.ordersCreated.WithLabelValues(string(ev.Order.DeliveryType)).Inc()
	case order.EventStatusChanged:
		m.transitions.WithLabelValues(string(ev.PreviousStatus), string(ev.Order.Status)).Inc()
	case order.EventUpdated:
		m.updates.Inc()
	}
}

func (m *Metrics) DeliveryResult(delivered, dropped int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	}
	if dropped > 0 {
		m.deliveries.WithLabelValues("dropped").Add(float64(dropped))
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
