package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WebhooksTotal       *prometheus.CounterVec
	InvoicesPaidTotal   *prometheus.CounterVec
	SweepTransitions    *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
	CheckoutsTotal      *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
	TierPromotionsTotal *prometheus.CounterVec
	PolicyVersion       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acueducto_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acueducto_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acueducto_gateway_notifications_total",
				Help: "Gateway notifications by outcome",
			},
			[]string{"gateway", "outcome"},
		),
		InvoicesPaidTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acueducto_invoices_paid_total",
				Help: "Invoices moved to paid",
			},
			[]string{"channel", "on_time"},
		),
		SweepTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acueducto_sweep_invoices_total",
				Help: "Invoices processed by the aging sweep",
			},
			[]string{"result"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "acueducto_sweep_duration_seconds",
				Help:    "Aging sweep duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		CheckoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acueducto_checkouts_total",
				Help: "Payment transactions created",
			},
			[]string{"kind", "result"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acueducto_notifications_total",
				Help: "Customer notifications by delivery result",
			},
			[]string{"kind", "result"},
		),
		TierPromotionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acueducto_tier_promotions_total",
				Help: "Loyalty tier promotions",
			},
			[]string{"tier"},
		),
		PolicyVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "acueducto_policy_version",
				Help: "Version of the billing policy in use",
			},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhooksTotal,
		m.InvoicesPaidTotal,
		m.SweepTransitions,
		m.SweepDuration,
		m.CheckoutsTotal,
		m.NotificationsTotal,
		m.TierPromotionsTotal,
		m.PolicyVersion,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) InvoicePaid(channel string, onTime bool) {
	m.InvoicesPaidTotal.WithLabelValues(channel, strconv.FormatBool(onTime)).Inc()
}
