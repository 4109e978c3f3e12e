// Package stats rolls up the ledger into operational statistics. Statistics
// are advisory: a failing source yields documented defaults, never an error.
package stats

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"wagering_service/internal/metrics"
	"wagering_service/internal/wagering"
	"wagering_service/internal/wallet"
)

// Source is the read side of the ledger the aggregator needs.
type Source interface {
	AggregateBets(ctx context.Context, from, to *time.Time) (wallet.BetAggregate, error)
	SumExposure(ctx context.Context) (wallet.Exposure, error)
}

type SettingsSource interface {
	Get(ctx context.Context) (wagering.Settings, error)
}

// Window bounds the records by creation time, From inclusive and To
// exclusive. A nil bound is open.
type Window struct {
	From *time.Time
	To   *time.Time
}

type BetProcessingStats struct {
	TotalBets int64 `json:"total_bets"`
	// AverageProcessingTime is in milliseconds.
	AverageProcessingTime float64 `json:"average_processing_time"`
	SuccessRate           float64 `json:"success_rate"`
	TotalWagered          int64   `json:"total_wagered"`
	TotalGGR              int64   `json:"total_ggr"`
}

// Liability is the platform's outstanding payout exposure in cents.
type Liability struct {
	BonusBalance  int64 `json:"bonus_balance"`
	FreeSpins     int64 `json:"free_spins"`
	FreeSpinValue int64 `json:"free_spin_value"`
	Total         int64 `json:"total"`
}

func emptyStats() BetProcessingStats {
	return BetProcessingStats{SuccessRate: 100}
}

type Aggregator struct {
	source   Source
	settings SettingsSource
	metrics  *metrics.Metrics
}

func NewAggregator(source Source, settings SettingsSource, m *metrics.Metrics) *Aggregator {
	return &Aggregator{source: source, settings: settings, metrics: m}
}

func (a *Aggregator) GetBetProcessingStats(ctx context.Context, window *Window) BetProcessingStats {
	var from, to *time.Time
	if window != nil {
		from, to = window.From, window.To
	}
	agg, err := a.source.AggregateBets(ctx, from, to)
	if err != nil {
		log.Error().Err(err).Msg("failed to aggregate bet statistics")
		a.metrics.ObserveStatsFallback("bets")
		return emptyStats()
	}
	return Summarize(agg)
}

// Summarize turns raw counts into rates and averages.
func Summarize(agg wallet.BetAggregate) BetProcessingStats {
	out := emptyStats()
	out.TotalBets = agg.TotalBets
	out.TotalWagered = agg.TotalWagered
	out.TotalGGR = agg.TotalWagered - agg.TotalWon
	if agg.TimedBets > 0 {
		out.AverageProcessingTime = decimal.NewFromInt(agg.TimedMsSum).
			Div(decimal.NewFromInt(agg.TimedBets)).
			Round(2).
			InexactFloat64()
	}
	if agg.TotalBets > 0 {
		out.SuccessRate = decimal.NewFromInt(agg.SuccessfulBets).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(agg.TotalBets)).
			Round(2).
			InexactFloat64()
	}
	return out
}

// GetLiability prices outstanding bonus money and unplayed free spins with
// the current settings. A failing source yields a zero liability.
func (a *Aggregator) GetLiability(ctx context.Context) Liability {
	exposure, err := a.source.SumExposure(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sum player exposure")
		a.metrics.ObserveStatsFallback("liability")
		return Liability{}
	}
	s, err := a.settings.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load settings for liability")
		a.metrics.ObserveStatsFallback("liability")
		return Liability{}
	}

	l := Liability{
		BonusBalance: exposure.BonusBalance,
		FreeSpins:    exposure.FreeSpins,
	}
	l.Total = wagering.Liability(s, wagering.Balances{
		BonusBalance:       exposure.BonusBalance,
		FreeSpinsRemaining: exposure.FreeSpins,
	})
	l.FreeSpinValue = l.Total - l.BonusBalance
	a.metrics.SetPlatformLiability(l.Total)
	return l
}
