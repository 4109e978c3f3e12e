// Package metrics exposes settlement counters and latencies to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wagering"

// Settlement results.
const (
	ResultAccepted  = "accepted"
	ResultRejected  = "rejected"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)

type Metrics struct {
	settlementsTotal     *prometheus.CounterVec
	settlementDuration   *prometheus.HistogramVec
	commitRetriesTotal   *prometheus.CounterVec
	wageredCentsTotal    prometheus.Counter
	wonCentsTotal        prometheus.Counter
	jackpotCentsTotal    prometheus.Counter
	vipPointsTotal       prometheus.Counter
	statsFallbacksTotal  *prometheus.CounterVec
	platformLiability    prometheus.Gauge
	notificationsDropped prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		settlementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Settlement operations partitioned by operation and result.",
			},
			[]string{"operation", "result"},
		),
		settlementDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "duration_seconds",
				Help:      "End-to-end settlement latency including lock wait and retries.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 3},
			},
			[]string{"operation"},
		),
		commitRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "commit_retries_total",
				Help:      "Commits retried after a concurrent modification.",
			},
			[]string{"operation"},
		),
		wageredCentsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "wagered_cents_total",
				Help:      "Money staked on accepted bets, in cents.",
			},
		),
		wonCentsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "won_cents_total",
				Help:      "Money paid out on accepted wins, in cents.",
			},
		),
		jackpotCentsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "jackpot_contribution_cents_total",
				Help:      "Wager share routed to the jackpot pool, in cents.",
			},
		),
		vipPointsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "vip_points_total",
				Help:      "VIP points earned by players.",
			},
		),
		statsFallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stats",
				Name:      "fallbacks_total",
				Help:      "Statistics queries answered with defaults, by query.",
			},
			[]string{"query"},
		),
		platformLiability: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stats",
				Name:      "platform_liability_cents",
				Help:      "Most recently computed platform liability, in cents.",
			},
		),
		notificationsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "dropped_total",
				Help:      "Balance notifications dropped because a subscriber was full.",
			},
		),
	}
}

func (m *Metrics) ObserveSettlement(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(operation, result).Inc()
	m.settlementDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCommitRetry(operation string) {
	if m == nil {
		return
	}
	m.commitRetriesTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveMoney(wagered, won, jackpot, vipPoints int64) {
	if m == nil {
		return
	}
	if wagered > 0 {
		m.wageredCentsTotal.Add(float64(wagered))
	}
	if won > 0 {
		m.wonCentsTotal.Add(float64(won))
	}
	if jackpot > 0 {
		m.jackpotCentsTotal.Add(float64(jackpot))
	}
	if vipPoints > 0 {
		m.vipPointsTotal.Add(float64(vipPoints))
	}
}

func (m *Metrics) ObserveStatsFallback(query string) {
	if m == nil {
		return
	}
	m.statsFallbacksTotal.WithLabelValues(query).Inc()
}

func (m *Metrics) SetPlatformLiability(cents int64) {
	if m == nil {
		return
	}
	m.platformLiability.Set(float64(cents))
}

func (m *Metrics) ObserveNotificationDropped() {
	if m == nil {
		return
	}
	m.notificationsDropped.Inc()
}
