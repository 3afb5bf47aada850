// Package metrics records ledger activity as Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so the engine can run without
// a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "settleup"

// Metrics holds the collectors for one engine.
type Metrics struct {
	postings        *prometheus.CounterVec
	postFailures    *prometheus.CounterVec
	lockWait        prometheus.Histogram
	lockTimeouts    prometheus.Counter
	transfers       prometheus.Histogram
	haltedGroups    prometheus.Gauge
	publishFailures prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		postings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "postings_total",
			Help:      "Postings committed to group logs, by kind.",
		}, []string{"kind"}),
		postFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_failures_total",
			Help:      "Rejected or failed postings, by reason.",
		}, []string{"reason"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a group's writer lock.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2, 5},
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_timeouts_total",
			Help:      "Writer lock acquisitions that hit the lock timeout.",
		}),
		transfers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_transfers",
			Help:      "Number of transfers in each proposed settlement plan.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		haltedGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "halted_groups",
			Help:      "Groups refusing operations until reconciled.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Committed postings whose event could not be published.",
		}),
	}
	reg.MustRegister(
		m.postings,
		m.postFailures,
		m.lockWait,
		m.lockTimeouts,
		m.transfers,
		m.haltedGroups,
		m.publishFailures,
	)
	return m
}

func (m *Metrics) PostingCommitted(kind string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(kind).Inc()
}

func (m *Metrics) PostFailed(reason string) {
	if m == nil {
		return
	}
	m.postFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) LockWaited(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) LockTimedOut() {
	if m == nil {
		return
	}
	m.lockTimeouts.Inc()
}

func (m *Metrics) SettlementPlanned(transfers int) {
	if m == nil {
		return
	}
	m.transfers.Observe(float64(transfers))
}

// GroupHalted and GroupRecovered move the halted gauge.
func (m *Metrics) GroupHalted() {
	if m == nil {
		return
	}
	m.haltedGroups.Inc()
}

func (m *Metrics) GroupRecovered() {
	if m == nil {
		return
	}
	m.haltedGroups.Dec()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}
