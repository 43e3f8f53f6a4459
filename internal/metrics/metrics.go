package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	itemsConsumed   prometheus.Counter
	itemsFiltered   *prometheus.CounterVec
	forwards        *prometheus.CounterVec
	recencySkips    prometheus.Counter
	reconnects      *prometheus.CounterVec
	forwardDuration prometheus.Histogram
	auditSinkErrors prometheus.Counter
	auditDropped    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	itemsConsumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_items_consumed_total",
		Help: "Total number of items pulled from the submission stream",
	})

	itemsFiltered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_items_filtered_total",
		Help: "Total number of items rejected by the global filter, by reason",
	}, []string{"reason"})

	forwards := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_forwards_total",
		Help: "Total number of forward attempts by outcome",
	}, []string{"outcome"})

	recencySkips := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_recency_skips_total",
		Help: "Total number of forwards suppressed by the recency cache",
	})

	reconnects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_stream_reconnects_total",
		Help: "Total number of stream reconnects by cause",
	}, []string{"cause"})

	forwardDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_forward_duration_seconds",
		Help:    "Duration of submit-plus-annotate per forward in seconds",
		Buckets: prometheus.DefBuckets,
	})

	auditSinkErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_audit_sink_error_total",
		Help: "Total number of audit sink write failures",
	})

	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_audit_dropped_total",
		Help: "Total number of audit records dropped due to a full queue",
	})

	reg.MustRegister(itemsConsumed, itemsFiltered, forwards, recencySkips,
		reconnects, forwardDuration, auditSinkErrors, auditDropped)

	return &Metrics{
		registry:        reg,
		itemsConsumed:   itemsConsumed,
		itemsFiltered:   itemsFiltered,
		forwards:        forwards,
		recencySkips:    recencySkips,
		reconnects:      reconnects,
		forwardDuration: forwardDuration,
		auditSinkErrors: auditSinkErrors,
		auditDropped:    auditDropped,
	}
}

func (m *Metrics) RecordItemConsumed() {
	m.itemsConsumed.Inc()
}

func (m *Metrics) RecordItemFiltered(reason string) {
	m.itemsFiltered.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordForward(outcome string) {
	m.forwards.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRecencySkip() {
	m.recencySkips.Inc()
}

func (m *Metrics) RecordReconnect(cause string) {
	m.reconnects.WithLabelValues(cause).Inc()
}

func (m *Metrics) RecordForwardDuration(seconds float64) {
	m.forwardDuration.Observe(seconds)
}

func (m *Metrics) RecordAuditSinkError() {
	m.auditSinkErrors.Inc()
}

func (m *Metrics) RecordAuditDropped() {
	m.auditDropped.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
