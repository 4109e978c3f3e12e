package wallet

import (
	"github.com/shopspring/decimal"

	"wagering_service/internal/wagering"
)

// Contributions are the side amounts derived from an accepted settlement.
type Contributions struct {
	// JackpotContribution is the wager share routed to the jackpot pool.
	JackpotContribution int64 `json:"jackpot_contribution"`
	VIPPoints           int64 `json:"vip_points"`
	// GGRContribution is money staked minus money paid out; negative for a
	// plain win.
	GGRContribution int64 `json:"ggr_contribution"`
}

func computeContributions(s wagering.Settings, d wagering.Decision) Contributions {
	if !d.Accepted {
		return Contributions{}
	}
	wager := decimal.NewFromInt(d.WagerAmount)
	win := decimal.NewFromInt(d.WinAmount)

	return Contributions{
		JackpotContribution: wager.Mul(s.JackpotContributionRate).Floor().IntPart(),
		VIPPoints:           wager.Mul(s.VIPPointsPerWager).Add(win.Mul(s.VIPPointsPerWin)).Floor().IntPart(),
		GGRContribution:     d.WagerAmount - d.WinAmount,
	}
}
