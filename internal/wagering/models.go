// Package wagering holds the pure balance state machine: given platform
// settings, a balance snapshot and an event it derives the next snapshot and
// a settlement decision. Nothing in this package performs I/O.
package wagering

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Operation string

const (
	OpDeposit       Operation = "deposit"
	OpBonusGrant    Operation = "bonus_grant"
	OpFreeSpinGrant Operation = "free_spin_grant"
	OpBet           Operation = "bet"
	OpWin           Operation = "win"
	OpSpin          Operation = "spin"
	OpWithdraw      Operation = "withdraw"
)

var (
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrInsufficientUnlockedFunds = fmt.Errorf("%w: real funds locked by unmet wagering requirement", ErrInsufficientFunds)
	ErrNoFreeSpins               = fmt.Errorf("%w: no free spins remaining", ErrInsufficientFunds)
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrUnknownEvent              = errors.New("unknown event")
)

// Settings is the platform policy applied to every credit and bet. Multipliers
// are read at the moment money is credited, so changing them never touches
// requirements that were already issued.
type Settings struct {
	DepositWRMultiplier  int64 `json:"deposit_wr_multiplier"`
	BonusWRMultiplier    int64 `json:"bonus_wr_multiplier"`
	FreeSpinWRMultiplier int64 `json:"free_spin_wr_multiplier"`
	// AvgFreeSpinWinValue is the assumed payout of one free spin in cents.
	AvgFreeSpinWinValue int64 `json:"avg_free_spin_win_value"`

	JackpotContributionRate decimal.Decimal `json:"jackpot_contribution_rate"`
	VIPPointsPerWager       decimal.Decimal `json:"vip_points_per_wager"`
	VIPPointsPerWin         decimal.Decimal `json:"vip_points_per_win"`
}

// Validate reports the first policy value that is out of range.
func (s Settings) Validate() error {
	switch {
	case s.DepositWRMultiplier < 0:
		return fmt.Errorf("deposit_wr_multiplier must be >= 0, got %d", s.DepositWRMultiplier)
	case s.BonusWRMultiplier < 0:
		return fmt.Errorf("bonus_wr_multiplier must be >= 0, got %d", s.BonusWRMultiplier)
	case s.FreeSpinWRMultiplier < 0:
		return fmt.Errorf("free_spin_wr_multiplier must be >= 0, got %d", s.FreeSpinWRMultiplier)
	case s.AvgFreeSpinWinValue < 0:
		return fmt.Errorf("avg_free_spin_win_value must be >= 0, got %d", s.AvgFreeSpinWinValue)
	case s.JackpotContributionRate.IsNegative() || s.JackpotContributionRate.GreaterThan(decimal.NewFromInt(1)):
		return fmt.Errorf("jackpot_contribution_rate must be within [0, 1], got %s", s.JackpotContributionRate)
	case s.VIPPointsPerWager.IsNegative():
		return fmt.Errorf("vip_points_per_wager must be >= 0, got %s", s.VIPPointsPerWager)
	case s.VIPPointsPerWin.IsNegative():
		return fmt.Errorf("vip_points_per_win must be >= 0, got %s", s.VIPPointsPerWin)
	}
	return nil
}

// Balances is the monetary state of one player. All amounts are integer cents.
type Balances struct {
	RealBalance        int64 `json:"real_balance"`
	BonusBalance       int64 `json:"bonus_balance"`
	FreeSpinsRemaining int64 `json:"free_spins_remaining"`
	DepositWRRemaining int64 `json:"deposit_wr_remaining"`
	BonusWRRemaining   int64 `json:"bonus_wr_remaining"`

	TotalDeposited    int64 `json:"total_deposited"`
	TotalWithdrawn    int64 `json:"total_withdrawn"`
	TotalWagered      int64 `json:"total_wagered"`
	TotalWon          int64 `json:"total_won"`
	TotalBonusGranted int64 `json:"total_bonus_granted"`
	TotalFreeSpinWins int64 `json:"total_free_spin_wins"`
}

// Funding is the real/bonus split of a bet stake. A win correlated with that
// bet is credited back along the same split.
type Funding struct {
	Real  int64 `json:"real"`
	Bonus int64 `json:"bonus"`
}

func (f Funding) Total() int64 { return f.Real + f.Bonus }

// Event is one monetary event applied to a player's balances.
type Event interface {
	Operation() Operation
}

type Deposit struct {
	Amount int64
}

type GrantBonus struct {
	Amount int64
}

type GrantFreeSpins struct {
	Count int64
}

type Bet struct {
	Amount     int64
	IsFreeSpin bool
}

// Win credits a payout. Funding carries the stake split of the bet the win
// belongs to; a zero Funding credits real money.
type Win struct {
	Amount        int64
	IsFreeSpinWin bool
	Funding       Funding
}

// Spin settles a bet and its payout as one event.
type Spin struct {
	Bet       Bet
	WinAmount int64
}

type Withdraw struct {
	Amount int64
}

func (Deposit) Operation() Operation        { return OpDeposit }
func (GrantBonus) Operation() Operation     { return OpBonusGrant }
func (GrantFreeSpins) Operation() Operation { return OpFreeSpinGrant }
func (Bet) Operation() Operation            { return OpBet }
func (Win) Operation() Operation            { return OpWin }
func (Spin) Operation() Operation           { return OpSpin }
func (Withdraw) Operation() Operation       { return OpWithdraw }

type SubBalance string

const (
	SubBalanceReal     SubBalance = "real"
	SubBalanceBonus    SubBalance = "bonus"
	SubBalanceFreeSpin SubBalance = "free_spins"
)

// Decision describes what Apply did, or why it refused to.
type Decision struct {
	Operation Operation `json:"operation"`
	Accepted  bool      `json:"accepted"`
	Reason    error     `json:"-"`

	// WagerAmount is the money actually staked; free spins stake nothing.
	WagerAmount int64 `json:"wager_amount"`
	WinAmount   int64 `json:"win_amount"`

	RealDebit      int64 `json:"real_debit"`
	BonusDebit     int64 `json:"bonus_debit"`
	RealCredit     int64 `json:"real_credit"`
	BonusCredit    int64 `json:"bonus_credit"`
	FreeSpinsDelta int64 `json:"free_spins_delta"`
	DepositWRDelta int64 `json:"deposit_wr_delta"`
	BonusWRDelta   int64 `json:"bonus_wr_delta"`

	Funding Funding `json:"funding"`

	// Touched lists the sub-balances the decision moved.
	Touched []SubBalance `json:"touched"`
}

// WithTouched returns d with Touched derived from its movements.
func (d Decision) WithTouched() Decision {
	out := []SubBalance{}
	if d.RealDebit != 0 || d.RealCredit != 0 {
		out = append(out, SubBalanceReal)
	}
	if d.BonusDebit != 0 || d.BonusCredit != 0 {
		out = append(out, SubBalanceBonus)
	}
	if d.FreeSpinsDelta != 0 {
		out = append(out, SubBalanceFreeSpin)
	}
	d.Touched = out
	return d
}

// ErrorCode maps a rejection reason to the code stored on transaction records.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientUnlockedFunds):
		return "insufficient_unlocked_funds"
	case errors.Is(err, ErrNoFreeSpins):
		return "no_free_spins"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	}
	return "internal"
}
