package wallet

import (
	"context"
	"sync"
	"time"

	"wagering_service/internal/wagering"
)

// playerSlot holds one player's row behind its own mutex so commits for
// different players never contend.
type playerSlot struct {
	mu  sync.Mutex
	row *PlayerBalances
}

// MemoryRepository is an in-process LedgerRepository with the same version
// semantics as the database store.
type MemoryRepository struct {
	slots sync.Map // map[string]*playerSlot

	recMu      sync.RWMutex
	records    []Transaction
	references map[string]int // player_id + "\x00" + reference_id -> index into records

	// FailCommit, when set, is consulted before each commit and aborts it
	// with the returned error.
	FailCommit func(ctx context.Context, rec *Transaction) error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{references: make(map[string]int)}
}

func (r *MemoryRepository) slot(playerID string) *playerSlot {
	if v, ok := r.slots.Load(playerID); ok {
		return v.(*playerSlot)
	}
	actual, _ := r.slots.LoadOrStore(playerID, &playerSlot{})
	return actual.(*playerSlot)
}

func refKey(playerID, referenceID string) string {
	return playerID + "\x00" + referenceID
}

func (r *MemoryRepository) GetBalances(ctx context.Context, playerID string) (*PlayerBalances, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.slot(playerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.row == nil {
		return nil, ErrPlayerNotFound
	}
	row := *s.row
	return &row, nil
}

func (r *MemoryRepository) GetTransactionByReference(ctx context.Context, playerID, referenceID string) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.recMu.RLock()
	defer r.recMu.RUnlock()
	i, ok := r.references[refKey(playerID, referenceID)]
	if !ok {
		return nil, nil
	}
	t := r.records[i]
	return &t, nil
}

func (r *MemoryRepository) GetBetByRound(ctx context.Context, playerID, roundID string) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.recMu.RLock()
	defer r.recMu.RUnlock()
	for i := len(r.records) - 1; i >= 0; i-- {
		t := r.records[i]
		if t.PlayerID != playerID || t.RoundID != roundID || !t.Success {
			continue
		}
		if t.Operation == string(wagering.OpBet) || t.Operation == string(wagering.OpSpin) {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Commit(ctx context.Context, expectedVersion int64, next *PlayerBalances, rec *Transaction) error {
	s := r.slot(next.PlayerID)
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if s.row != nil {
		current = s.row.Version
	}
	if current != expectedVersion {
		return ErrConcurrentModification
	}
	if r.FailCommit != nil {
		if err := r.FailCommit(ctx, rec); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.recMu.Lock()
	if rec.Success && rec.ReferenceID != "" {
		if _, dup := r.references[refKey(rec.PlayerID, rec.ReferenceID)]; dup {
			r.recMu.Unlock()
			return ErrDuplicateReference
		}
		r.references[refKey(rec.PlayerID, rec.ReferenceID)] = len(r.records)
	}
	r.records = append(r.records, *rec)
	r.recMu.Unlock()

	now := time.Now()
	row := *next
	row.Version = expectedVersion + 1
	row.UpdatedAt = now
	if s.row == nil {
		row.CreatedAt = now
	} else {
		row.CreatedAt = s.row.CreatedAt
	}
	s.row = &row

	next.Version = row.Version
	next.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) AppendRecord(ctx context.Context, rec *Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.recMu.Lock()
	r.records = append(r.records, *rec)
	r.recMu.Unlock()
	return nil
}

// Transactions returns a copy of a player's records in commit order.
func (r *MemoryRepository) Transactions(playerID string) []Transaction {
	r.recMu.RLock()
	defer r.recMu.RUnlock()
	var out []Transaction
	for _, t := range r.records {
		if t.PlayerID == playerID {
			out = append(out, t)
		}
	}
	return out
}

func (r *MemoryRepository) AggregateBets(ctx context.Context, from, to *time.Time) (BetAggregate, error) {
	if err := ctx.Err(); err != nil {
		return BetAggregate{}, err
	}
	r.recMu.RLock()
	defer r.recMu.RUnlock()

	var agg BetAggregate
	for _, t := range r.records {
		if from != nil && t.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !t.CreatedAt.Before(*to) {
			continue
		}
		isBet := t.Operation == string(wagering.OpBet) || t.Operation == string(wagering.OpSpin)
		if !isBet && t.Operation != string(wagering.OpWin) {
			continue
		}
		if isBet {
			agg.TotalBets++
			if t.Success {
				agg.SuccessfulBets++
			}
			if t.ProcessingTimeMs > MinTimedMs && t.ProcessingTimeMs < MaxTimedMs {
				agg.TimedBets++
				agg.TimedMsSum += t.ProcessingTimeMs
			}
		}
		if t.Success {
			agg.TotalWagered += t.WagerAmount
			agg.TotalWon += t.WinAmount
		}
	}
	return agg, nil
}

func (r *MemoryRepository) SumExposure(ctx context.Context) (Exposure, error) {
	if err := ctx.Err(); err != nil {
		return Exposure{}, err
	}
	var e Exposure
	r.slots.Range(func(_, v any) bool {
		s := v.(*playerSlot)
		s.mu.Lock()
		if s.row != nil {
			e.BonusBalance += s.row.BonusBalance
			e.FreeSpins += s.row.FreeSpinsRemaining
		}
		s.mu.Unlock()
		return true
	})
	return e, nil
}
