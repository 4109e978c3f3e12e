package wagering

import (
	"testing"

	"pgregory.net/rapid"
)

func drawEvent(t *rapid.T) Event {
	amount := rapid.Int64Range(-5, 5000)
	switch rapid.IntRange(0, 6).Draw(t, "kind") {
	case 0:
		return Deposit{Amount: amount.Draw(t, "deposit")}
	case 1:
		return GrantBonus{Amount: amount.Draw(t, "bonus")}
	case 2:
		return GrantFreeSpins{Count: rapid.Int64Range(-1, 20).Draw(t, "spins")}
	case 3:
		return Bet{Amount: amount.Draw(t, "bet"), IsFreeSpin: rapid.Bool().Draw(t, "freeSpin")}
	case 4:
		return Win{
			Amount:        amount.Draw(t, "win"),
			IsFreeSpinWin: rapid.Bool().Draw(t, "freeSpinWin"),
			Funding: Funding{
				Real:  rapid.Int64Range(0, 500).Draw(t, "fundingReal"),
				Bonus: rapid.Int64Range(0, 500).Draw(t, "fundingBonus"),
			},
		}
	case 5:
		return Spin{
			Bet:       Bet{Amount: amount.Draw(t, "spinBet"), IsFreeSpin: rapid.Bool().Draw(t, "spinFree")},
			WinAmount: rapid.Int64Range(0, 5000).Draw(t, "spinWin"),
		}
	default:
		return Withdraw{Amount: amount.Draw(t, "withdraw")}
	}
}

func drawSettings(t *rapid.T) Settings {
	return Settings{
		DepositWRMultiplier:  rapid.Int64Range(0, 5).Draw(t, "depositMult"),
		BonusWRMultiplier:    rapid.Int64Range(0, 40).Draw(t, "bonusMult"),
		FreeSpinWRMultiplier: rapid.Int64Range(0, 40).Draw(t, "freeSpinMult"),
		AvgFreeSpinWinValue:  rapid.Int64Range(0, 100).Draw(t, "avgFreeSpin"),
	}
}

// For any sequence of events the balances stay non-negative, lifetime
// counters never decrease and the deposit requirement stays within the bound
// issued by deposits.
func TestBalanceInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawSettings(t)
		var b Balances
		steps := rapid.IntRange(1, 60).Draw(t, "steps")

		for i := 0; i < steps; i++ {
			ev := drawEvent(t)
			next, d := Apply(s, b, ev)

			if !d.Accepted && next != b {
				t.Fatalf("rejected %T changed balances: %+v -> %+v", ev, b, next)
			}
			if next.RealBalance < 0 || next.BonusBalance < 0 || next.FreeSpinsRemaining < 0 {
				t.Fatalf("negative balance after %T: %+v", ev, next)
			}
			if next.DepositWRRemaining < 0 || next.BonusWRRemaining < 0 {
				t.Fatalf("negative requirement after %T: %+v", ev, next)
			}
			if next.DepositWRRemaining > next.TotalDeposited*s.DepositWRMultiplier {
				t.Fatalf("deposit requirement %d exceeds issued bound %d",
					next.DepositWRRemaining, next.TotalDeposited*s.DepositWRMultiplier)
			}
			if next.TotalDeposited < b.TotalDeposited || next.TotalWithdrawn < b.TotalWithdrawn ||
				next.TotalWagered < b.TotalWagered || next.TotalWon < b.TotalWon ||
				next.TotalBonusGranted < b.TotalBonusGranted || next.TotalFreeSpinWins < b.TotalFreeSpinWins {
				t.Fatalf("lifetime counter decreased after %T: %+v -> %+v", ev, b, next)
			}
			b = next
		}
	})
}

// Money moved by a decision reconciles exactly with the balance change: no
// cent is created or destroyed by the machine itself.
func TestMoneyConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawSettings(t)
		b := Balances{
			RealBalance:        rapid.Int64Range(0, 10000).Draw(t, "real"),
			BonusBalance:       rapid.Int64Range(0, 10000).Draw(t, "bonus"),
			FreeSpinsRemaining: rapid.Int64Range(0, 5).Draw(t, "spins"),
			DepositWRRemaining: rapid.Int64Range(0, 10000).Draw(t, "depositWR"),
			BonusWRRemaining:   rapid.Int64Range(0, 10000).Draw(t, "bonusWR"),
		}
		ev := drawEvent(t)
		next, d := Apply(s, b, ev)
		if !d.Accepted {
			return
		}
		if got, want := next.RealBalance-b.RealBalance, d.RealCredit-d.RealDebit; got != want {
			t.Fatalf("%T real delta %d, decision says %d", ev, got, want)
		}
		if got, want := next.BonusBalance-b.BonusBalance, d.BonusCredit-d.BonusDebit; got != want {
			t.Fatalf("%T bonus delta %d, decision says %d", ev, got, want)
		}
		if got := next.DepositWRRemaining - b.DepositWRRemaining; got != d.DepositWRDelta {
			t.Fatalf("%T deposit WR delta %d, decision says %d", ev, got, d.DepositWRDelta)
		}
		if got := next.BonusWRRemaining - b.BonusWRRemaining; got != d.BonusWRDelta {
			t.Fatalf("%T bonus WR delta %d, decision says %d", ev, got, d.BonusWRDelta)
		}
		if d.RealCredit+d.BonusCredit != d.WinAmount && (ev.Operation() == OpWin || ev.Operation() == OpSpin) {
			t.Fatalf("%T win %d credited %d", ev, d.WinAmount, d.RealCredit+d.BonusCredit)
		}
	})
}

// Withdrawals never dip into real money still locked by the deposit
// requirement.
func TestWithdrawRespectsLockProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := Balances{
			RealBalance:        rapid.Int64Range(0, 10000).Draw(t, "real"),
			DepositWRRemaining: rapid.Int64Range(0, 10000).Draw(t, "depositWR"),
		}
		amount := rapid.Int64Range(1, 20000).Draw(t, "amount")
		next, d := Apply(Settings{}, b, Withdraw{Amount: amount})

		unlocked := max(0, b.RealBalance-b.DepositWRRemaining)
		if amount <= unlocked {
			if !d.Accepted || next.RealBalance != b.RealBalance-amount {
				t.Fatalf("withdraw %d of unlocked %d not applied: %+v", amount, unlocked, d)
			}
			return
		}
		if d.Accepted {
			t.Fatalf("withdraw %d above unlocked %d accepted", amount, unlocked)
		}
	})
}
