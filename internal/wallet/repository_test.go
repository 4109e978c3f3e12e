package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wagering_service/internal/pkg/testdb"
	"wagering_service/internal/validation"
	"wagering_service/internal/wagering"
)

func setupLedger(t *testing.T) (*gorm.DB, *GormRepository) {
	t.Helper()
	db := testdb.Open(t, &PlayerBalances{}, &Transaction{})
	return db, NewGormRepository(db)
}

func testRecord(playerID string, op wagering.Operation) *Transaction {
	return &Transaction{
		TransactionID: uuid.NewString(),
		PlayerID:      playerID,
		Operation:     string(op),
		Success:       true,
		CreatedAt:     time.Now(),
	}
}

func TestGormRepository_CommitVersioning(t *testing.T) {
	_, repo := setupLedger(t)
	ctx := context.Background()
	playerID := uuid.NewString()

	_, err := repo.GetBalances(ctx, playerID)
	require.ErrorIs(t, err, ErrPlayerNotFound)

	next := &PlayerBalances{PlayerID: playerID, RealBalance: 100, TotalDeposited: 100}
	require.NoError(t, repo.Commit(ctx, 0, next, testRecord(playerID, wagering.OpDeposit)))
	assert.Equal(t, int64(1), next.Version)

	// a second creator loses
	again := &PlayerBalances{PlayerID: playerID, RealBalance: 5}
	assert.ErrorIs(t, repo.Commit(ctx, 0, again, testRecord(playerID, wagering.OpDeposit)), ErrConcurrentModification)

	// a stale version loses
	stale := &PlayerBalances{PlayerID: playerID, RealBalance: 1}
	assert.ErrorIs(t, repo.Commit(ctx, 7, stale, testRecord(playerID, wagering.OpDeposit)), ErrConcurrentModification)

	next.RealBalance = 60
	require.NoError(t, repo.Commit(ctx, 1, next, testRecord(playerID, wagering.OpWithdraw)))
	assert.Equal(t, int64(2), next.Version)

	stored, err := repo.GetBalances(ctx, playerID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), stored.RealBalance)
	assert.Equal(t, int64(100), stored.TotalDeposited)
	assert.Equal(t, int64(2), stored.Version)
}

func TestGormRepository_DuplicateReferenceRollsBack(t *testing.T) {
	_, repo := setupLedger(t)
	ctx := context.Background()
	playerID := uuid.NewString()

	first := testRecord(playerID, wagering.OpDeposit)
	first.ReferenceID = "dep-1"
	next := &PlayerBalances{PlayerID: playerID, RealBalance: 100}
	require.NoError(t, repo.Commit(ctx, 0, next, first))

	dup := testRecord(playerID, wagering.OpDeposit)
	dup.ReferenceID = "dep-1"
	next.RealBalance = 200
	require.ErrorIs(t, repo.Commit(ctx, 1, next, dup), ErrDuplicateReference)

	stored, err := repo.GetBalances(ctx, playerID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored.RealBalance)
	assert.Equal(t, int64(1), stored.Version)

	found, err := repo.GetTransactionByReference(ctx, playerID, "dep-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.TransactionID, found.TransactionID)

	// rejected attempts may reuse a reference
	rejected := testRecord(playerID, wagering.OpWithdraw)
	rejected.ReferenceID = "dep-1"
	rejected.Success = false
	require.NoError(t, repo.AppendRecord(ctx, rejected))
}

func TestGormRepository_GetBetByRound(t *testing.T) {
	_, repo := setupLedger(t)
	ctx := context.Background()
	playerID := uuid.NewString()

	bet := testRecord(playerID, wagering.OpBet)
	bet.RoundID = "round-1"
	bet.RealDebit = 30
	bet.BonusDebit = 70
	next := &PlayerBalances{PlayerID: playerID}
	require.NoError(t, repo.Commit(ctx, 0, next, bet))

	found, err := repo.GetBetByRound(ctx, playerID, "round-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, wagering.Funding{Real: 30, Bonus: 70}, found.Funding())

	missing, err := repo.GetBetByRound(ctx, playerID, "round-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGormRepository_Aggregates(t *testing.T) {
	_, repo := setupLedger(t)
	ctx := context.Background()

	records := []struct {
		op      wagering.Operation
		success bool
		ms      int64
		wager   int64
		win     int64
	}{
		{wagering.OpBet, true, 10, 100, 0},
		{wagering.OpSpin, true, 20, 200, 50},
		{wagering.OpBet, false, 15000, 0, 0},
		{wagering.OpWin, true, 3, 0, 100},
		{wagering.OpDeposit, true, 5, 0, 0},
	}
	for _, r := range records {
		rec := testRecord(uuid.NewString(), r.op)
		rec.Success = r.success
		rec.ProcessingTimeMs = r.ms
		rec.WagerAmount = r.wager
		rec.WinAmount = r.win
		require.NoError(t, repo.AppendRecord(ctx, rec))
	}

	agg, err := repo.AggregateBets(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, BetAggregate{
		TotalBets:      3,
		SuccessfulBets: 2,
		TimedBets:      2,
		TimedMsSum:     30,
		TotalWagered:   300,
		TotalWon:       150,
	}, agg)

	future := time.Now().Add(time.Hour)
	agg, err = repo.AggregateBets(ctx, &future, nil)
	require.NoError(t, err)
	assert.Equal(t, BetAggregate{}, agg)

	require.NoError(t, repo.Commit(ctx, 0, &PlayerBalances{PlayerID: "a", BonusBalance: 500, FreeSpinsRemaining: 10}, testRecord("a", wagering.OpBonusGrant)))
	require.NoError(t, repo.Commit(ctx, 0, &PlayerBalances{PlayerID: "b", BonusBalance: 25}, testRecord("b", wagering.OpBonusGrant)))
	exposure, err := repo.SumExposure(ctx)
	require.NoError(t, err)
	assert.Equal(t, Exposure{BonusBalance: 525, FreeSpins: 10}, exposure)
}

// Two services over one database model two processes: only the version
// check keeps them from overwriting each other.
func TestConcurrentDebitsAcrossProcesses(t *testing.T) {
	_, repo := setupLedger(t)
	a := newTestService(t, testPolicy(), repo)
	b := newTestService(t, testPolicy(), repo)
	a.cfg.MaxRetries, b.cfg.MaxRetries = 20, 20
	a.executor = failsafe.With[*Result](newRetryPolicy(a.cfg))
	b.executor = failsafe.With[*Result](newRetryPolicy(b.cfg))

	playerID := uuid.NewString()
	deposit(t, a, playerID, 50)

	var wg sync.WaitGroup
	var successCount atomic.Int32
	for i := 0; i < 10; i++ {
		svc := a
		if i%2 == 1 {
			svc = b
		}
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			_, err := svc.ProcessWithdraw(context.Background(), validation.WithdrawRequest{
				PlayerID:    playerID,
				ReferenceID: uuid.NewString(),
				Amount:      10,
			})
			if err == nil {
				successCount.Add(1)
			}
		}(svc)
	}
	wg.Wait()

	final := balanceOf(t, a, playerID)
	assert.Equal(t, int64(50-10*int64(successCount.Load())), final.RealBalance)
	assert.GreaterOrEqual(t, final.RealBalance, int64(0))
	assert.Equal(t, final.TotalWithdrawn, int64(10*successCount.Load()))
}

func TestIdempotentTransactionPostgres(t *testing.T) {
	_, repo := setupLedger(t)
	svc := newTestService(t, testPolicy(), repo)
	playerID := uuid.NewString()
	deposit(t, svc, playerID, 50)

	req := validation.WithdrawRequest{PlayerID: playerID, ReferenceID: uuid.NewString(), Amount: 10}
	res1, err := svc.ProcessWithdraw(context.Background(), req)
	require.NoError(t, err)
	res2, err := svc.ProcessWithdraw(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, res1.TransactionID, res2.TransactionID)
	require.Equal(t, int64(40), balanceOf(t, svc, playerID).RealBalance)
}
