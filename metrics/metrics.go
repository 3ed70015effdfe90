// Package metrics provides Prometheus collectors for the attachment and consensus engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors and the registry they are registered in
type Metrics struct {
	registry *prometheus.Registry

	AttachedTotal     prometheus.Counter
	AttachFailures    *prometheus.CounterVec // by error kind
	TipPoolSize       prometheus.Gauge
	UnconfirmedSize   prometheus.Gauge
	TCCCyclesTotal    prometheus.Counter
	TCCCycleFaults    prometheus.Counter
	TCCCycleDuration  prometheus.Histogram
	ConfirmedTotal    prometheus.Counter
	BalanceQueueDepth prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.AttachedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attached_transactions_total",
		Help:      "Transactions attached to the cluster",
	})
	m.AttachFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attach_failures_total",
		Help:      "Rejected attachments by reason",
	}, []string{"reason"})
	m.TipPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tip_pool_size",
		Help:      "Transactions currently attachable as sources",
	})
	m.UnconfirmedSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unconfirmed_transactions",
		Help:      "Transactions without trust chain consensus",
	})
	m.TCCCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tcc_cycles_total",
		Help:      "Completed trust chain consensus cycles",
	})
	m.TCCCycleFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tcc_cycle_faults_total",
		Help:      "Trust chain consensus cycles aborted by a data integrity fault",
	})
	m.TCCCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tcc_cycle_duration_seconds",
		Help:      "Duration of a trust chain consensus cycle",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
	})
	m.ConfirmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confirmed_transactions_total",
		Help:      "Transactions which reached trust chain consensus",
	})
	m.BalanceQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "balance_update_queue_depth",
		Help:      "Confirmed transactions waiting for balance settlement",
	})

	m.registry.MustRegister(
		m.AttachedTotal,
		m.AttachFailures,
		m.TipPoolSize,
		m.UnconfirmedSize,
		m.TCCCyclesTotal,
		m.TCCCycleFaults,
		m.TCCCycleDuration,
		m.ConfirmedTotal,
		m.BalanceQueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
