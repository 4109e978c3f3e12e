package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wagering_service/internal/metrics"
	"wagering_service/internal/notify"
	"wagering_service/internal/pkg/clock"
	"wagering_service/internal/pkg/lock"
	"wagering_service/internal/validation"
	"wagering_service/internal/wagering"
)

const (
	MaxRetries    = 3
	RetryDelay    = 10 * time.Millisecond
	MaxRetryDelay = 200 * time.Millisecond
	// CommitTimeout applies unless the caller's deadline is earlier.
	CommitTimeout = 3 * time.Second
	LockTimeout   = 5 * time.Second
)

// ErrStorageFailure means the ledger could not be read or written. Nothing
// was applied; the caller may retry.
var ErrStorageFailure = errors.New("storage failure")

type Config struct {
	CommitTimeout time.Duration
	LockTimeout   time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		CommitTimeout: CommitTimeout,
		LockTimeout:   LockTimeout,
		MaxRetries:    MaxRetries,
		RetryDelay:    RetryDelay,
		MaxRetryDelay: MaxRetryDelay,
	}
}

// SettingsSource serves the current platform policy.
type SettingsSource interface {
	Get(ctx context.Context) (wagering.Settings, error)
}

// Outcome is the payout of a spin settled together with its bet.
type Outcome struct {
	WinAmount int64 `json:"win_amount"`
}

// Result is what a settlement call returns. A rejected settlement carries
// Success false and the rejection in Err.
type Result struct {
	TransactionID  string             `json:"transaction_id"`
	PlayerID       string             `json:"player_id"`
	Operation      wagering.Operation `json:"operation"`
	Success        bool               `json:"success"`
	Err            error              `json:"-"`
	ErrorCode      string             `json:"error_code,omitempty"`
	Duplicate      bool               `json:"duplicate"`
	Balances       wagering.Balances  `json:"balances"`
	Decision       wagering.Decision  `json:"decision"`
	Contributions  Contributions      `json:"contributions"`
	ProcessingTime time.Duration      `json:"processing_time_ns"`
}

type Service struct {
	repo     LedgerRepository
	settings SettingsSource
	cfg      Config

	locks    *lock.PlayerLock
	notifier notify.Notifier
	metrics  *metrics.Metrics
	clock    clock.Clock
	executor failsafe.Executor[*Result]
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithPlayerLock shares a lock table between services of one process.
func WithPlayerLock(l *lock.PlayerLock) Option { return func(s *Service) { s.locks = l } }

func NewService(repo LedgerRepository, settings SettingsSource, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		settings: settings,
		cfg:      cfg,
		locks:    lock.NewPlayerLock(),
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = failsafe.With[*Result](newRetryPolicy(cfg))
	return s
}

func newRetryPolicy(cfg Config) retrypolicy.RetryPolicy[*Result] {
	builder := retrypolicy.NewBuilder[*Result]().
		WithMaxRetries(cfg.MaxRetries).
		HandleIf(func(_ *Result, err error) bool {
			return errors.Is(err, ErrConcurrentModification)
		})
	if cfg.RetryDelay > 0 && cfg.MaxRetryDelay > cfg.RetryDelay {
		builder = builder.WithBackoff(cfg.RetryDelay, cfg.MaxRetryDelay).WithJitterFactor(0.1)
	} else if cfg.RetryDelay > 0 {
		builder = builder.WithDelay(cfg.RetryDelay)
	}
	return builder.Build()
}

func (s *Service) GetBalance(ctx context.Context, playerID string) (*PlayerBalances, error) {
	p, err := s.repo.GetBalances(ctx, playerID)
	if err != nil {
		if errors.Is(err, ErrPlayerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to load balances: %w", ErrStorageFailure, err)
	}
	return p, nil
}

func (s *Service) ProcessDeposit(ctx context.Context, req validation.DepositRequest) (*Result, error) {
	return s.settle(ctx, settlement{
		playerID:    req.PlayerID,
		referenceID: req.ReferenceID,
		event:       wagering.Deposit{Amount: req.Amount},
	})
}

func (s *Service) ProcessBonusGrant(ctx context.Context, req validation.BonusGrantRequest) (*Result, error) {
	return s.settle(ctx, settlement{
		playerID:    req.PlayerID,
		referenceID: req.ReferenceID,
		event:       wagering.GrantBonus{Amount: req.Amount},
	})
}

func (s *Service) ProcessFreeSpinGrant(ctx context.Context, req validation.FreeSpinGrantRequest) (*Result, error) {
	return s.settle(ctx, settlement{
		playerID:    req.PlayerID,
		referenceID: req.ReferenceID,
		event:       wagering.GrantFreeSpins{Count: req.Count},
	})
}

// ProcessBet settles a stake. A request that already carries the payout is
// settled as a spin through ProcessBetOutcome.
func (s *Service) ProcessBet(ctx context.Context, req validation.BetRequest) (*Result, error) {
	if req.WinAmount != nil {
		return s.ProcessBetOutcome(ctx, req, Outcome{WinAmount: *req.WinAmount})
	}
	return s.settle(ctx, settlement{
		playerID:    req.PlayerID,
		referenceID: req.ReferenceID,
		roundID:     req.RoundID,
		isFreeSpin:  req.IsFreeSpin,
		event:       wagering.Bet{Amount: req.BetAmount, IsFreeSpin: req.IsFreeSpin},
	})
}

// ProcessBetOutcome settles a bet and its payout in one commit. The payout is
// credited along the stake's real/bonus split.
func (s *Service) ProcessBetOutcome(ctx context.Context, req validation.BetRequest, outcome Outcome) (*Result, error) {
	return s.settle(ctx, settlement{
		playerID:    req.PlayerID,
		referenceID: req.ReferenceID,
		roundID:     req.RoundID,
		isFreeSpin:  req.IsFreeSpin,
		event: wagering.Spin{
			Bet:       wagering.Bet{Amount: req.BetAmount, IsFreeSpin: req.IsFreeSpin},
			WinAmount: outcome.WinAmount,
		},
	})
}

// ProcessWin credits a payout. With a round id the payout follows the
// funding of that round's bet; without one it is credited as real money.
func (s *Service) ProcessWin(ctx context.Context, req validation.WinRequest) (*Result, error) {
	return s.settle(ctx, settlement{
		playerID:    req.PlayerID,
		referenceID: req.ReferenceID,
		roundID:     req.RoundID,
		isFreeSpin:  req.IsFreeSpinWin,
		event:       wagering.Win{Amount: req.WinAmount, IsFreeSpinWin: req.IsFreeSpinWin},
	})
}

func (s *Service) ProcessWithdraw(ctx context.Context, req validation.WithdrawRequest) (*Result, error) {
	return s.settle(ctx, settlement{
		playerID:    req.PlayerID,
		referenceID: req.ReferenceID,
		event:       wagering.Withdraw{Amount: req.Amount},
	})
}

type settlement struct {
	playerID    string
	referenceID string
	roundID     string
	isFreeSpin  bool
	event       wagering.Event
	hash        string
}

func (s *Service) settle(ctx context.Context, st settlement) (*Result, error) {
	start := time.Now()
	st.hash = requestHash(st)
	op := string(st.event.Operation())
	logger := log.With().Str("player_id", st.playerID).Str("operation", op).Logger()

	var res *Result
	err := s.locks.WithLockContext(ctx, st.playerID, s.cfg.LockTimeout, func() error {
		var lastErr error
		attempts := 0
		r, err := s.executor.WithContext(ctx).Get(func() (*Result, error) {
			attempts++
			if attempts > 1 {
				s.metrics.ObserveCommitRetry(op)
			}
			r, err := s.attempt(ctx, st, start)
			lastErr = err
			return r, err
		})
		if err != nil {
			if lastErr != nil {
				err = lastErr
			}
			return err
		}
		res = r
		return nil
	})
	elapsed := time.Since(start)

	if errors.Is(err, ErrReferenceConflict) {
		s.metrics.ObserveSettlement(op, metrics.ResultRejected, elapsed)
		logger.Warn().Err(err).Str("reference_id", st.referenceID).Msg("reference reused for a different request")
		return nil, err
	}
	if err != nil {
		if isTransient(err) {
			err = fmt.Errorf("%w: %w", ErrConcurrentModification, err)
		}
		s.metrics.ObserveSettlement(op, metrics.ResultError, elapsed)
		logger.Error().Err(err).Msg("settlement failed")
		return nil, err
	}

	switch {
	case res.Duplicate:
		s.metrics.ObserveSettlement(op, metrics.ResultDuplicate, elapsed)
		logger.Info().Str("transaction_id", res.TransactionID).Str("reference_id", st.referenceID).
			Msg("duplicate reference, returning original result")
		return res, nil
	case !res.Success:
		s.metrics.ObserveSettlement(op, metrics.ResultRejected, elapsed)
		logger.Info().Str("transaction_id", res.TransactionID).Str("error_code", res.ErrorCode).
			Msg("settlement rejected")
		return res, res.Err
	}

	s.metrics.ObserveSettlement(op, metrics.ResultAccepted, elapsed)
	s.metrics.ObserveMoney(res.Decision.WagerAmount, res.Decision.WinAmount,
		res.Contributions.JackpotContribution, res.Contributions.VIPPoints)
	if s.notifier != nil {
		s.notifier.BalanceChanged(ctx, notify.BalanceChanged{
			PlayerID:      res.PlayerID,
			RealBalance:   res.Balances.RealBalance,
			BonusBalance:  res.Balances.BonusBalance,
			Operation:     op,
			TransactionID: res.TransactionID,
			Timestamp:     s.clock.Now(),
		})
	}
	logger.Debug().Str("transaction_id", res.TransactionID).
		Int64("real_balance", res.Balances.RealBalance).
		Int64("bonus_balance", res.Balances.BonusBalance).
		Msg("settled")
	return res, nil
}

// attempt runs one load-apply-commit cycle. It returns
// ErrConcurrentModification when the row moved underneath it.
func (s *Service) attempt(ctx context.Context, st settlement, start time.Time) (*Result, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	if st.referenceID != "" {
		existing, err := s.repo.GetTransactionByReference(ctx, st.playerID, st.referenceID)
		if err != nil {
			return nil, fmt.Errorf("%w: idempotency lookup: %w", ErrStorageFailure, err)
		}
		if existing != nil {
			return replay(st, existing)
		}
	}

	row, err := s.repo.GetBalances(ctx, st.playerID)
	if err != nil {
		if !errors.Is(err, ErrPlayerNotFound) {
			return nil, fmt.Errorf("%w: failed to load balances: %w", ErrStorageFailure, err)
		}
		row = &PlayerBalances{PlayerID: st.playerID}
	}

	ev := st.event
	if win, ok := ev.(wagering.Win); ok && st.roundID != "" && !win.IsFreeSpinWin {
		bet, err := s.repo.GetBetByRound(ctx, st.playerID, st.roundID)
		if err != nil {
			return nil, fmt.Errorf("%w: round lookup: %w", ErrStorageFailure, err)
		}
		if bet != nil {
			win.Funding = bet.Funding()
			ev = win
		}
	}

	before := row.Balances()
	after, decision := wagering.Apply(settings, before, ev)
	contrib := computeContributions(settings, decision)
	rec := s.newRecord(st, before, after, decision, contrib)

	commitCtx, cancel := s.commitContext(ctx)
	defer cancel()

	if !decision.Accepted {
		rec.ProcessingTimeMs = time.Since(start).Milliseconds()
		if err := s.repo.AppendRecord(commitCtx, rec); err != nil {
			return nil, fmt.Errorf("%w: failed to record rejection: %w", ErrStorageFailure, err)
		}
		return newResult(rec, before, decision, contrib, time.Since(start)), nil
	}

	next := *row
	next.setBalances(after)
	rec.ProcessingTimeMs = time.Since(start).Milliseconds()
	if err := s.repo.Commit(commitCtx, row.Version, &next, rec); err != nil {
		switch {
		case errors.Is(err, ErrConcurrentModification):
			return nil, err
		case errors.Is(err, ErrDuplicateReference):
			existing, lookupErr := s.repo.GetTransactionByReference(ctx, st.playerID, st.referenceID)
			if lookupErr != nil || existing == nil {
				return nil, fmt.Errorf("%w: duplicate reference lookup: %w", ErrStorageFailure, errors.Join(err, lookupErr))
			}
			return replay(st, existing)
		}
		return nil, fmt.Errorf("%w: commit: %w", ErrStorageFailure, err)
	}
	return newResult(rec, after, decision, contrib, time.Since(start)), nil
}

// isTransient reports a lock wait or caller deadline that gave up before any
// store work failed.
func isTransient(err error) bool {
	if errors.Is(err, ErrStorageFailure) || errors.Is(err, ErrConcurrentModification) {
		return false
	}
	return errors.Is(err, lock.ErrLockTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// commitContext bounds the store transaction by the commit timeout unless
// the caller's own deadline comes first.
func (s *Service) commitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CommitTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < s.cfg.CommitTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.CommitTimeout)
}

func (s *Service) newRecord(st settlement, before, after wagering.Balances, d wagering.Decision, c Contributions) *Transaction {
	return &Transaction{
		TransactionID:       uuid.New().String(),
		PlayerID:            st.playerID,
		Operation:           string(st.event.Operation()),
		ReferenceID:         st.referenceID,
		RoundID:             st.roundID,
		RequestHash:         st.hash,
		RealBefore:          before.RealBalance,
		RealAfter:           after.RealBalance,
		BonusBefore:         before.BonusBalance,
		BonusAfter:          after.BonusBalance,
		FreeSpinsBefore:     before.FreeSpinsRemaining,
		FreeSpinsAfter:      after.FreeSpinsRemaining,
		DepositWRAfter:      after.DepositWRRemaining,
		BonusWRAfter:        after.BonusWRRemaining,
		WagerAmount:         d.WagerAmount,
		WinAmount:           d.WinAmount,
		RealDebit:           d.RealDebit,
		BonusDebit:          d.BonusDebit,
		RealCredit:          d.RealCredit,
		BonusCredit:         d.BonusCredit,
		FreeSpinsDelta:      d.FreeSpinsDelta,
		DepositWRDelta:      d.DepositWRDelta,
		BonusWRDelta:        d.BonusWRDelta,
		IsFreeSpin:          st.isFreeSpin,
		JackpotContribution: c.JackpotContribution,
		VIPPoints:           c.VIPPoints,
		GGRContribution:     c.GGRContribution,
		Success:             d.Accepted,
		ErrorCode:           wagering.ErrorCode(d.Reason),
		CreatedAt:           s.clock.Now(),
	}
}

func newResult(rec *Transaction, b wagering.Balances, d wagering.Decision, c Contributions, elapsed time.Duration) *Result {
	return &Result{
		TransactionID:  rec.TransactionID,
		PlayerID:       rec.PlayerID,
		Operation:      wagering.Operation(rec.Operation),
		Success:        d.Accepted,
		Err:            d.Reason,
		ErrorCode:      rec.ErrorCode,
		Balances:       b,
		Decision:       d,
		Contributions:  c,
		ProcessingTime: elapsed,
	}
}

// duplicateResult rebuilds the original outcome from its record. Only the
// sub-balances and requirements captured on the record are filled in.
func duplicateResult(t *Transaction) *Result {
	return &Result{
		TransactionID: t.TransactionID,
		PlayerID:      t.PlayerID,
		Operation:     wagering.Operation(t.Operation),
		Success:       true,
		Duplicate:     true,
		Balances: wagering.Balances{
			RealBalance:        t.RealAfter,
			BonusBalance:       t.BonusAfter,
			FreeSpinsRemaining: t.FreeSpinsAfter,
			DepositWRRemaining: t.DepositWRAfter,
			BonusWRRemaining:   t.BonusWRAfter,
		},
		Decision: t.Decision(),
		Contributions: Contributions{
			JackpotContribution: t.JackpotContribution,
			VIPPoints:           t.VIPPoints,
			GGRContribution:     t.GGRContribution,
		},
		ProcessingTime: time.Duration(t.ProcessingTimeMs) * time.Millisecond,
	}
}
