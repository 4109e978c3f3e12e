package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wagering_service/internal/wagering"
)

var (
	// ErrConcurrentModification means another writer committed first. The
	// caller may retry.
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPlayerNotFound         = errors.New("player not found")
	// ErrDuplicateReference means a successful record with the same
	// reference already exists for the player.
	ErrDuplicateReference = errors.New("reference already settled")
	// ErrReferenceConflict means the reference was already settled for a
	// different request. Nothing was applied.
	ErrReferenceConflict = errors.New("reference already used for a different request")
)

const uniqueViolation = "23505"

type LedgerRepository interface {
	GetBalances(ctx context.Context, playerID string) (*PlayerBalances, error)
	// GetTransactionByReference returns the successful record settled under
	// referenceID, or nil when there is none.
	GetTransactionByReference(ctx context.Context, playerID, referenceID string) (*Transaction, error)
	// GetBetByRound returns the latest successful bet or spin of the round,
	// or nil when there is none.
	GetBetByRound(ctx context.Context, playerID, roundID string) (*Transaction, error)
	// Commit writes next and appends rec atomically provided the stored row
	// is still at expectedVersion. Version 0 means the row does not exist yet.
	Commit(ctx context.Context, expectedVersion int64, next *PlayerBalances, rec *Transaction) error
	// AppendRecord stores a record that changes no balance.
	AppendRecord(ctx context.Context, rec *Transaction) error

	AggregateBets(ctx context.Context, from, to *time.Time) (BetAggregate, error)
	SumExposure(ctx context.Context) (Exposure, error)
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetBalances(ctx context.Context, playerID string) (*PlayerBalances, error) {
	var p PlayerBalances
	err := r.db.WithContext(ctx).Where("player_id = ?", playerID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *GormRepository) GetTransactionByReference(ctx context.Context, playerID, referenceID string) (*Transaction, error) {
	var t Transaction
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND reference_id = ? AND success", playerID, referenceID).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *GormRepository) GetBetByRound(ctx context.Context, playerID, roundID string) (*Transaction, error) {
	var t Transaction
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND round_id = ? AND success AND operation IN ?",
			playerID, roundID, []string{string(wagering.OpBet), string(wagering.OpSpin)}).
		Order("created_at DESC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *GormRepository) Commit(ctx context.Context, expectedVersion int64, next *PlayerBalances, rec *Transaction) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if expectedVersion == 0 {
			row := *next
			row.Version = 1
			row.CreatedAt = now
			row.UpdatedAt = now
			result := dbtx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrConcurrentModification
			}
		} else {
			result := dbtx.Model(&PlayerBalances{}).
				Where("player_id = ? AND version = ?", next.PlayerID, expectedVersion).
				Updates(map[string]interface{}{
					"real_balance":         next.RealBalance,
					"bonus_balance":        next.BonusBalance,
					"free_spins_remaining": next.FreeSpinsRemaining,
					"deposit_wr_remaining": next.DepositWRRemaining,
					"bonus_wr_remaining":   next.BonusWRRemaining,
					"total_deposited":      next.TotalDeposited,
					"total_withdrawn":      next.TotalWithdrawn,
					"total_wagered":        next.TotalWagered,
					"total_won":            next.TotalWon,
					"total_bonus_granted":  next.TotalBonusGranted,
					"total_free_spin_wins": next.TotalFreeSpinWins,
					"version":              gorm.Expr("version + 1"),
					"updated_at":           now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrConcurrentModification
			}
		}

		if err := dbtx.Create(rec).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateReference
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = now
	return nil
}

func (r *GormRepository) AppendRecord(ctx context.Context, rec *Transaction) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *GormRepository) AggregateBets(ctx context.Context, from, to *time.Time) (BetAggregate, error) {
	var row struct {
		TotalBets      int64
		SuccessfulBets int64
		TimedBets      int64
		TimedMsSum     int64
		TotalWagered   int64
		TotalWon       int64
	}
	q := r.db.WithContext(ctx).Model(&Transaction{}).
		Select(`
COUNT(*) FILTER (WHERE operation IN ('bet', 'spin')) AS total_bets,
COUNT(*) FILTER (WHERE operation IN ('bet', 'spin') AND success) AS successful_bets,
COUNT(*) FILTER (WHERE operation IN ('bet', 'spin') AND processing_time_ms > ? AND processing_time_ms < ?) AS timed_bets,
COALESCE(SUM(processing_time_ms) FILTER (WHERE operation IN ('bet', 'spin') AND processing_time_ms > ? AND processing_time_ms < ?), 0)::bigint AS timed_ms_sum,
COALESCE(SUM(wager_amount) FILTER (WHERE success), 0)::bigint AS total_wagered,
COALESCE(SUM(win_amount) FILTER (WHERE success), 0)::bigint AS total_won`,
			MinTimedMs, MaxTimedMs, MinTimedMs, MaxTimedMs).
		Where("operation IN ?", []string{string(wagering.OpBet), string(wagering.OpSpin), string(wagering.OpWin)})
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at < ?", *to)
	}
	if err := q.Scan(&row).Error; err != nil {
		return BetAggregate{}, err
	}
	return BetAggregate(row), nil
}

func (r *GormRepository) SumExposure(ctx context.Context) (Exposure, error) {
	var row struct {
		BonusBalance int64
		FreeSpins    int64
	}
	err := r.db.WithContext(ctx).Model(&PlayerBalances{}).
		Select("COALESCE(SUM(bonus_balance), 0)::bigint AS bonus_balance, COALESCE(SUM(free_spins_remaining), 0)::bigint AS free_spins").
		Scan(&row).Error
	if err != nil {
		return Exposure{}, err
	}
	return Exposure(row), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
