package wagering

import (
	"math"

	"github.com/shopspring/decimal"
)

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// Apply derives the balances that result from ev. A rejected event returns
// the input balances untouched together with a decision carrying the reason.
// An event whose effect would not fit the counters is rejected with
// ErrInvalidAmount.
func Apply(s Settings, b Balances, ev Event) (Balances, Decision) {
	next, d := apply(s, b, ev)
	return next, d.WithTouched()
}

func apply(s Settings, b Balances, ev Event) (Balances, Decision) {
	switch e := ev.(type) {
	case Deposit:
		return applyDeposit(s, b, e)
	case GrantBonus:
		return applyGrantBonus(s, b, e)
	case GrantFreeSpins:
		return applyGrantFreeSpins(s, b, e)
	case Bet:
		return applyBet(b, e)
	case Win:
		return applyWin(b, e)
	case Spin:
		return applySpin(b, e)
	case Withdraw:
		return applyWithdraw(b, e)
	}
	var op Operation
	if ev != nil {
		op = ev.Operation()
	}
	return b, reject(op, ErrUnknownEvent)
}

func reject(op Operation, reason error) Decision {
	return Decision{Operation: op, Reason: reason}
}

func applyDeposit(s Settings, b Balances, e Deposit) (Balances, Decision) {
	if e.Amount <= 0 {
		return b, reject(OpDeposit, ErrInvalidAmount)
	}
	var m intMath
	wr := m.mul(e.Amount, s.DepositWRMultiplier)

	next := b
	next.RealBalance = m.add(b.RealBalance, e.Amount)
	next.DepositWRRemaining = m.add(b.DepositWRRemaining, wr)
	next.TotalDeposited = m.add(b.TotalDeposited, e.Amount)
	if m.overflow {
		return b, reject(OpDeposit, ErrInvalidAmount)
	}
	return next, Decision{
		Operation:      OpDeposit,
		Accepted:       true,
		RealCredit:     e.Amount,
		DepositWRDelta: wr,
	}
}

func applyGrantBonus(s Settings, b Balances, e GrantBonus) (Balances, Decision) {
	if e.Amount <= 0 {
		return b, reject(OpBonusGrant, ErrInvalidAmount)
	}
	var m intMath
	wr := m.mul(e.Amount, s.BonusWRMultiplier)

	next := b
	next.BonusBalance = m.add(b.BonusBalance, e.Amount)
	next.BonusWRRemaining = m.add(b.BonusWRRemaining, wr)
	next.TotalBonusGranted = m.add(b.TotalBonusGranted, e.Amount)
	if m.overflow {
		return b, reject(OpBonusGrant, ErrInvalidAmount)
	}
	return next, Decision{
		Operation:    OpBonusGrant,
		Accepted:     true,
		BonusCredit:  e.Amount,
		BonusWRDelta: wr,
	}
}

// applyGrantFreeSpins seeds the spins' requirement from the assumed average
// win: count × avg × multiplier / 100, rounded down.
func applyGrantFreeSpins(s Settings, b Balances, e GrantFreeSpins) (Balances, Decision) {
	if e.Count <= 0 {
		return b, reject(OpFreeSpinGrant, ErrInvalidAmount)
	}
	exact := decimal.NewFromInt(e.Count).
		Mul(decimal.NewFromInt(s.AvgFreeSpinWinValue)).
		Mul(decimal.NewFromInt(s.FreeSpinWRMultiplier)).
		Div(decimal.NewFromInt(100)).
		Floor()
	if exact.GreaterThan(maxInt64) {
		return b, reject(OpFreeSpinGrant, ErrInvalidAmount)
	}
	wr := exact.IntPart()

	var m intMath
	next := b
	next.FreeSpinsRemaining = m.add(b.FreeSpinsRemaining, e.Count)
	next.BonusWRRemaining = m.add(b.BonusWRRemaining, wr)
	if m.overflow {
		return b, reject(OpFreeSpinGrant, ErrInvalidAmount)
	}
	return next, Decision{
		Operation:      OpFreeSpinGrant,
		Accepted:       true,
		FreeSpinsDelta: e.Count,
		BonusWRDelta:   wr,
	}
}

// applyBet consumes bonus money first and real money for the remainder. Each
// debited portion counts toward the requirement tied to its own source.
func applyBet(b Balances, e Bet) (Balances, Decision) {
	if e.Amount < 0 || (e.Amount == 0 && !e.IsFreeSpin) {
		return b, reject(OpBet, ErrInvalidAmount)
	}

	next := b
	if e.IsFreeSpin {
		if b.FreeSpinsRemaining <= 0 {
			return b, reject(OpBet, ErrNoFreeSpins)
		}
		next.FreeSpinsRemaining--
		return next, Decision{
			Operation:      OpBet,
			Accepted:       true,
			FreeSpinsDelta: -1,
		}
	}

	// compared without summing the balances
	if b.BonusBalance < e.Amount && b.RealBalance < e.Amount-b.BonusBalance {
		return b, reject(OpBet, ErrInsufficientFunds)
	}
	bonusDebit := min(b.BonusBalance, e.Amount)
	realDebit := e.Amount - bonusDebit
	bonusWR := min(bonusDebit, b.BonusWRRemaining)
	depositWR := min(realDebit, b.DepositWRRemaining)

	next.BonusBalance -= bonusDebit
	next.RealBalance -= realDebit
	next.BonusWRRemaining -= bonusWR
	next.DepositWRRemaining -= depositWR
	var m intMath
	next.TotalWagered = m.add(b.TotalWagered, e.Amount)
	if m.overflow {
		return b, reject(OpBet, ErrInvalidAmount)
	}
	return next, Decision{
		Operation:      OpBet,
		Accepted:       true,
		WagerAmount:    e.Amount,
		RealDebit:      realDebit,
		BonusDebit:     bonusDebit,
		DepositWRDelta: -depositWR,
		BonusWRDelta:   -bonusWR,
		Funding:        Funding{Real: realDebit, Bonus: bonusDebit},
	}
}

func applyWin(b Balances, e Win) (Balances, Decision) {
	if e.Amount < 0 {
		return b, reject(OpWin, ErrInvalidAmount)
	}

	var m intMath
	next := b
	if e.IsFreeSpinWin {
		next.RealBalance = m.add(b.RealBalance, e.Amount)
		next.TotalFreeSpinWins = m.add(b.TotalFreeSpinWins, e.Amount)
		if m.overflow {
			return b, reject(OpWin, ErrInvalidAmount)
		}
		return next, Decision{
			Operation:  OpWin,
			Accepted:   true,
			WinAmount:  e.Amount,
			RealCredit: e.Amount,
		}
	}

	realCredit, bonusCredit := SplitWin(e.Amount, e.Funding)
	next.RealBalance = m.add(b.RealBalance, realCredit)
	next.BonusBalance = m.add(b.BonusBalance, bonusCredit)
	next.TotalWon = m.add(b.TotalWon, e.Amount)
	if m.overflow {
		return b, reject(OpWin, ErrInvalidAmount)
	}
	return next, Decision{
		Operation:   OpWin,
		Accepted:    true,
		WinAmount:   e.Amount,
		RealCredit:  realCredit,
		BonusCredit: bonusCredit,
		Funding:     e.Funding,
	}
}

// SplitWin divides a payout along the stake split of its bet. The bonus share
// is rounded down so rounding never creates bonus money; a bet with no
// recorded funding pays out in real money.
func SplitWin(amount int64, f Funding) (realCredit, bonusCredit int64) {
	total := f.Total()
	if amount == 0 || total <= 0 || f.Bonus <= 0 {
		return amount, 0
	}
	if f.Real <= 0 {
		return 0, amount
	}
	bonusCredit = decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(f.Bonus)).
		Div(decimal.NewFromInt(total)).
		Floor().
		IntPart()
	return amount - bonusCredit, bonusCredit
}

func applySpin(b Balances, e Spin) (Balances, Decision) {
	afterBet, bet := applyBet(b, e.Bet)
	if !bet.Accepted {
		bet.Operation = OpSpin
		return b, bet
	}
	next, win := applyWin(afterBet, Win{
		Amount:        e.WinAmount,
		IsFreeSpinWin: e.Bet.IsFreeSpin,
		Funding:       bet.Funding,
	})
	if !win.Accepted {
		win.Operation = OpSpin
		return b, win
	}
	return next, Decision{
		Operation:      OpSpin,
		Accepted:       true,
		WagerAmount:    bet.WagerAmount,
		WinAmount:      win.WinAmount,
		RealDebit:      bet.RealDebit,
		BonusDebit:     bet.BonusDebit,
		RealCredit:     win.RealCredit,
		BonusCredit:    win.BonusCredit,
		FreeSpinsDelta: bet.FreeSpinsDelta,
		DepositWRDelta: bet.DepositWRDelta,
		BonusWRDelta:   bet.BonusWRDelta,
		Funding:        bet.Funding,
	}
}

func applyWithdraw(b Balances, e Withdraw) (Balances, Decision) {
	if e.Amount <= 0 {
		return b, reject(OpWithdraw, ErrInvalidAmount)
	}
	if e.Amount > b.RealBalance {
		return b, reject(OpWithdraw, ErrInsufficientFunds)
	}
	if e.Amount > Withdrawable(b) {
		return b, reject(OpWithdraw, ErrInsufficientUnlockedFunds)
	}

	var m intMath
	next := b
	next.RealBalance -= e.Amount
	next.TotalWithdrawn = m.add(b.TotalWithdrawn, e.Amount)
	if m.overflow {
		return b, reject(OpWithdraw, ErrInvalidAmount)
	}
	return next, Decision{
		Operation: OpWithdraw,
		Accepted:  true,
		RealDebit: e.Amount,
	}
}

// Withdrawable is the real balance not locked by an unmet deposit wagering
// requirement.
func Withdrawable(b Balances) int64 {
	return max(0, b.RealBalance-b.DepositWRRemaining)
}

// Liability is the platform's estimated payout exposure for one player:
// outstanding bonus money plus unplayed free spins at their assumed value.
// It saturates at math.MaxInt64.
func Liability(s Settings, b Balances) int64 {
	var m intMath
	total := m.add(b.BonusBalance, m.mul(b.FreeSpinsRemaining, s.AvgFreeSpinWinValue))
	if m.overflow {
		return math.MaxInt64
	}
	return total
}
