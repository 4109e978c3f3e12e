package settings

import (
	"time"

	"github.com/shopspring/decimal"

	"wagering_service/internal/wagering"
)

// singletonID is the primary key of the only settings row.
const singletonID = 1

type PlatformSettings struct {
	ID                      uint            `gorm:"column:id;primaryKey"`
	DepositWRMultiplier     int64           `gorm:"column:deposit_wr_multiplier;not null;default:1"`
	BonusWRMultiplier       int64           `gorm:"column:bonus_wr_multiplier;not null;default:35"`
	FreeSpinWRMultiplier    int64           `gorm:"column:free_spin_wr_multiplier;not null;default:40"`
	AvgFreeSpinWinValue     int64           `gorm:"column:avg_free_spin_win_value;not null;default:20"`
	JackpotContributionRate decimal.Decimal `gorm:"column:jackpot_contribution_rate;type:numeric(10,6);not null;default:0"`
	VIPPointsPerWager       decimal.Decimal `gorm:"column:vip_points_per_wager;type:numeric(10,6);not null;default:0.01"`
	VIPPointsPerWin         decimal.Decimal `gorm:"column:vip_points_per_win;type:numeric(10,6);not null;default:0"`
	UpdatedAt               time.Time       `gorm:"column:updated_at;not null;default:now()"`
}

func (PlatformSettings) TableName() string { return "platform_settings" }

func (p PlatformSettings) toDomain() wagering.Settings {
	return wagering.Settings{
		DepositWRMultiplier:     p.DepositWRMultiplier,
		BonusWRMultiplier:       p.BonusWRMultiplier,
		FreeSpinWRMultiplier:    p.FreeSpinWRMultiplier,
		AvgFreeSpinWinValue:     p.AvgFreeSpinWinValue,
		JackpotContributionRate: p.JackpotContributionRate,
		VIPPointsPerWager:       p.VIPPointsPerWager,
		VIPPointsPerWin:         p.VIPPointsPerWin,
	}
}

func fromDomain(s wagering.Settings) PlatformSettings {
	return PlatformSettings{
		ID:                      singletonID,
		DepositWRMultiplier:     s.DepositWRMultiplier,
		BonusWRMultiplier:       s.BonusWRMultiplier,
		FreeSpinWRMultiplier:    s.FreeSpinWRMultiplier,
		AvgFreeSpinWinValue:     s.AvgFreeSpinWinValue,
		JackpotContributionRate: s.JackpotContributionRate,
		VIPPointsPerWager:       s.VIPPointsPerWager,
		VIPPointsPerWin:         s.VIPPointsPerWin,
	}
}
