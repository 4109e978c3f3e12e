package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricLabelsMatch(m *dto.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func find(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if metricLabelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func TestObserveSettlement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSettlement("bet", ResultAccepted, 5*time.Millisecond)
	m.ObserveSettlement("bet", ResultAccepted, 7*time.Millisecond)
	m.ObserveSettlement("bet", ResultRejected, time.Millisecond)

	accepted := find(t, reg, "wagering_settlement_operations_total", map[string]string{"operation": "bet", "result": "accepted"})
	require.NotNil(t, accepted)
	assert.Equal(t, 2.0, accepted.GetCounter().GetValue())

	hist := find(t, reg, "wagering_settlement_duration_seconds", map[string]string{"operation": "bet"})
	require.NotNil(t, hist)
	assert.Equal(t, uint64(3), hist.GetHistogram().GetSampleCount())
}

func TestObserveMoneySkipsNonPositive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveMoney(100, 0, 1, 2)
	m.ObserveMoney(0, 250, 0, 0)

	assert.Equal(t, 100.0, find(t, reg, "wagering_ledger_wagered_cents_total", nil).GetCounter().GetValue())
	assert.Equal(t, 250.0, find(t, reg, "wagering_ledger_won_cents_total", nil).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "wagering_ledger_jackpot_contribution_cents_total", nil).GetCounter().GetValue())
}

func TestLiabilityGaugeAndFallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetPlatformLiability(700)
	m.ObserveStatsFallback("bet_processing")

	assert.Equal(t, 700.0, find(t, reg, "wagering_stats_platform_liability_cents", nil).GetGauge().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "wagering_stats_fallbacks_total", map[string]string{"query": "bet_processing"}).GetCounter().GetValue())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSettlement("bet", ResultError, time.Second)
		m.ObserveCommitRetry("bet")
		m.ObserveMoney(1, 1, 1, 1)
		m.ObserveStatsFallback("x")
		m.SetPlatformLiability(1)
		m.ObserveNotificationDropped()
	})
}
