package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jayjaytrn/freshflow/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "freshflow"

type Registry struct {
	reg *prometheus.Registry

	Requests       *prometheus.CounterVec
	LatencyMS      *prometheus.HistogramVec
	GatewayCalls   *prometheus.CounterVec
	GatewayLatency *prometheus.HistogramVec
	Webhooks       *prometheus.CounterVec
	OrderChanges   *prometheus.CounterVec
	Events         *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	gatewayCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_calls_total",
		Help:      "Payment gateway calls by operation and outcome.",
	}, []string{"op", "outcome"})
	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_call_duration_seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_total",
		Help:      "Gateway notifications by outcome.",
	}, []string{"outcome"})
	orderChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_changes_total",
		Help:      "Committed order mutations.",
	}, []string{"type", "status"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
	}, []string{"type", "outcome"})

	r.MustRegister(requests, latency, gatewayCalls, gatewayLatency, webhooks, orderChanges, events)
	return &Registry{
		reg:            r,
		Requests:       requests,
		LatencyMS:      latency,
		GatewayCalls:   gatewayCalls,
		GatewayLatency: gatewayLatency,
		Webhooks:       webhooks,
		OrderChanges:   orderChanges,
		Events:         events,
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (r *Registry) ObserveRequest(handler string, status int, elapsed time.Duration) {
	r.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	r.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
}

func (r *Registry) ObserveGateway(op string, elapsed time.Duration, err error) {
	r.GatewayCalls.WithLabelValues(op, outcome(err)).Inc()
	r.GatewayLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (r *Registry) ObserveWebhook(result string) {
	r.Webhooks.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveEvent(eventType string, err error) {
	r.Events.WithLabelValues(eventType, outcome(err)).Inc()
}

// OrderChanged counts committed mutations; it is wired as a store notifier.
func (r *Registry) OrderChanged(_ context.Context, eventType string, order models.Order) {
	r.OrderChanges.WithLabelValues(eventType, string(order.Status)).Inc()
}

// TrackSubscribers exports the live subscription count read from fn.
func (r *Registry) TrackSubscribers(fn func() int) {
	r.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_subscriptions",
		Help:      "Open order status streams.",
	}, func() float64 { return float64(fn()) }))
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
