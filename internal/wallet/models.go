package wallet

import (
	"time"

	"wagering_service/internal/wagering"
)

// PlayerBalances is the single balance row of a player. Version is the
// optimistic concurrency token; every commit increments it.
type PlayerBalances struct {
	PlayerID           string    `gorm:"column:player_id;primaryKey;type:varchar(64)"`
	RealBalance        int64     `gorm:"column:real_balance;not null;default:0;check:chk_real_non_negative,real_balance >= 0"`
	BonusBalance       int64     `gorm:"column:bonus_balance;not null;default:0;check:chk_bonus_non_negative,bonus_balance >= 0"`
	FreeSpinsRemaining int64     `gorm:"column:free_spins_remaining;not null;default:0;check:chk_free_spins_non_negative,free_spins_remaining >= 0"`
	DepositWRRemaining int64     `gorm:"column:deposit_wr_remaining;not null;default:0"`
	BonusWRRemaining   int64     `gorm:"column:bonus_wr_remaining;not null;default:0"`
	TotalDeposited     int64     `gorm:"column:total_deposited;not null;default:0"`
	TotalWithdrawn     int64     `gorm:"column:total_withdrawn;not null;default:0"`
	TotalWagered       int64     `gorm:"column:total_wagered;not null;default:0"`
	TotalWon           int64     `gorm:"column:total_won;not null;default:0"`
	TotalBonusGranted  int64     `gorm:"column:total_bonus_granted;not null;default:0"`
	TotalFreeSpinWins  int64     `gorm:"column:total_free_spin_wins;not null;default:0"`
	Version            int64     `gorm:"column:version;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt          time.Time `gorm:"column:updated_at;not null;default:now()"`
}

func (PlayerBalances) TableName() string { return "player_balances" }

func (p PlayerBalances) Balances() wagering.Balances {
	return wagering.Balances{
		RealBalance:        p.RealBalance,
		BonusBalance:       p.BonusBalance,
		FreeSpinsRemaining: p.FreeSpinsRemaining,
		DepositWRRemaining: p.DepositWRRemaining,
		BonusWRRemaining:   p.BonusWRRemaining,
		TotalDeposited:     p.TotalDeposited,
		TotalWithdrawn:     p.TotalWithdrawn,
		TotalWagered:       p.TotalWagered,
		TotalWon:           p.TotalWon,
		TotalBonusGranted:  p.TotalBonusGranted,
		TotalFreeSpinWins:  p.TotalFreeSpinWins,
	}
}

func (p *PlayerBalances) setBalances(b wagering.Balances) {
	p.RealBalance = b.RealBalance
	p.BonusBalance = b.BonusBalance
	p.FreeSpinsRemaining = b.FreeSpinsRemaining
	p.DepositWRRemaining = b.DepositWRRemaining
	p.BonusWRRemaining = b.BonusWRRemaining
	p.TotalDeposited = b.TotalDeposited
	p.TotalWithdrawn = b.TotalWithdrawn
	p.TotalWagered = b.TotalWagered
	p.TotalWon = b.TotalWon
	p.TotalBonusGranted = b.TotalBonusGranted
	p.TotalFreeSpinWins = b.TotalFreeSpinWins
}

// Transaction is one append-only ledger record. Rejected settlements are
// recorded too, with Success false and equal before/after snapshots.
type Transaction struct {
	TransactionID string `gorm:"column:transaction_id;primaryKey;type:uuid"`
	PlayerID      string `gorm:"column:player_id;type:varchar(64);not null;index:idx_wallet_tx_player_ref,unique,where:success AND reference_id <> '',priority:1;index:idx_wallet_tx_player_round,priority:1"`
	Operation     string `gorm:"column:operation;type:varchar(20);not null;index:idx_wallet_tx_op_created,priority:1"`
	ReferenceID   string `gorm:"column:reference_id;type:varchar(128);not null;default:'';index:idx_wallet_tx_player_ref,priority:2"`
	RoundID       string `gorm:"column:round_id;type:varchar(128);not null;default:'';index:idx_wallet_tx_player_round,priority:2"`
	// RequestHash fingerprints the request settled under ReferenceID.
	RequestHash string `gorm:"column:request_hash;type:char(64);not null;default:''"`

	RealBefore      int64 `gorm:"column:real_before;not null"`
	RealAfter       int64 `gorm:"column:real_after;not null"`
	BonusBefore     int64 `gorm:"column:bonus_before;not null"`
	BonusAfter      int64 `gorm:"column:bonus_after;not null"`
	FreeSpinsBefore int64 `gorm:"column:free_spins_before;not null"`
	FreeSpinsAfter  int64 `gorm:"column:free_spins_after;not null"`
	DepositWRAfter  int64 `gorm:"column:deposit_wr_after;not null"`
	BonusWRAfter    int64 `gorm:"column:bonus_wr_after;not null"`

	WagerAmount    int64 `gorm:"column:wager_amount;not null;default:0"`
	WinAmount      int64 `gorm:"column:win_amount;not null;default:0"`
	RealDebit      int64 `gorm:"column:real_debit;not null;default:0"`
	BonusDebit     int64 `gorm:"column:bonus_debit;not null;default:0"`
	RealCredit     int64 `gorm:"column:real_credit;not null;default:0"`
	BonusCredit    int64 `gorm:"column:bonus_credit;not null;default:0"`
	FreeSpinsDelta int64 `gorm:"column:free_spins_delta;not null;default:0"`
	DepositWRDelta int64 `gorm:"column:deposit_wr_delta;not null;default:0"`
	BonusWRDelta   int64 `gorm:"column:bonus_wr_delta;not null;default:0"`
	IsFreeSpin     bool  `gorm:"column:is_free_spin;not null;default:false"`

	JackpotContribution int64 `gorm:"column:jackpot_contribution;not null;default:0"`
	VIPPoints           int64 `gorm:"column:vip_points;not null;default:0"`
	GGRContribution     int64 `gorm:"column:ggr_contribution;not null;default:0"`

	Success          bool      `gorm:"column:success;not null"`
	ErrorCode        string    `gorm:"column:error_code;type:varchar(40);not null;default:''"`
	ProcessingTimeMs int64     `gorm:"column:processing_time_ms;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;default:now();index:idx_wallet_tx_op_created,priority:2"`
}

func (Transaction) TableName() string { return "wallet_transactions" }

// Funding is the stake split of a bet or spin record.
func (t Transaction) Funding() wagering.Funding {
	return wagering.Funding{Real: t.RealDebit, Bonus: t.BonusDebit}
}

// Decision rebuilds the settlement decision stored on the record.
func (t Transaction) Decision() wagering.Decision {
	return wagering.Decision{
		Operation:      wagering.Operation(t.Operation),
		Accepted:       t.Success,
		WagerAmount:    t.WagerAmount,
		WinAmount:      t.WinAmount,
		RealDebit:      t.RealDebit,
		BonusDebit:     t.BonusDebit,
		RealCredit:     t.RealCredit,
		BonusCredit:    t.BonusCredit,
		FreeSpinsDelta: t.FreeSpinsDelta,
		DepositWRDelta: t.DepositWRDelta,
		BonusWRDelta:   t.BonusWRDelta,
		Funding:        t.Funding(),
	}.WithTouched()
}

// BetAggregate is the raw material of bet processing statistics.
type BetAggregate struct {
	TotalBets      int64
	SuccessfulBets int64
	TimedBets      int64
	TimedMsSum     int64
	TotalWagered   int64
	TotalWon       int64
}

// Exposure sums the outstanding bonus money and free spins of all players.
type Exposure struct {
	BonusBalance int64
	FreeSpins    int64
}

// Processing-time bounds, exclusive, of records counted in the average.
const (
	MinTimedMs = 0
	MaxTimedMs = 10000
)
