package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagering_service/internal/metrics"
	"wagering_service/internal/settings"
	"wagering_service/internal/stats"
	"wagering_service/internal/validation"
	"wagering_service/internal/wagering"
	"wagering_service/internal/wallet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	provider *settings.Provider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := settings.NewMemoryRepository()
	_, err := store.SeedIfMissing(context.Background(), wagering.Settings{
		BonusWRMultiplier:    35,
		FreeSpinWRMultiplier: 40,
		AvgFreeSpinWinValue:  20,
		VIPPointsPerWager:    decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	provider := settings.NewProvider(store)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := wallet.NewMemoryRepository()
	svc := wallet.NewService(repo, provider, wallet.DefaultConfig(), wallet.WithMetrics(m))
	h := NewHandler(svc, stats.NewAggregator(repo, provider, m), provider)
	return &testServer{router: NewRouter(h, reg), provider: provider}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestDepositAndBalance(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/players/p1/deposits", `{"amount": 1000, "referenceId": "dep-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1000), body["balances"].(map[string]any)["real_balance"])

	w, body = s.do(t, http.MethodPost, "/players/p1/deposits", `{"amount": 1000, "referenceId": "dep-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["duplicate"])

	w, body = s.do(t, http.MethodGet, "/players/p1/balance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", body["player_id"])
	assert.Equal(t, float64(1000), body["real_balance"])
	assert.Equal(t, float64(1000), body["withdrawable"])
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPost, "/players/p1/deposits", `{"amount": 100}`)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "validation", method: http.MethodPost, path: "/players/p1/deposits", body: `{"amount": -5}`, wantStatus: http.StatusBadRequest},
		{name: "fractional", method: http.MethodPost, path: "/players/p1/bets", body: `{"betAmount": 1.5}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/players/p1/bets", body: `[1, 2]`, wantStatus: http.StatusBadRequest},
		{name: "insufficient funds", method: http.MethodPost, path: "/players/p1/bets", body: `{"betAmount": 500}`, wantStatus: http.StatusPaymentRequired},
		{name: "no free spins", method: http.MethodPost, path: "/players/p1/bets", body: `{"betAmount": 0, "isFreeSpin": true}`, wantStatus: http.StatusPaymentRequired},
		{name: "overdraw", method: http.MethodPost, path: "/players/p1/withdrawals", body: `{"amount": 101}`, wantStatus: http.StatusPaymentRequired},
		{name: "unknown player", method: http.MethodGet, path: "/players/nobody/balance", wantStatus: http.StatusNotFound},
		{name: "bad window", method: http.MethodGet, path: "/stats/bets?from=yesterday", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestRejectionCarriesResult(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodPost, "/players/p1/withdrawals", `{"amount": 10}`)
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "insufficient_funds", body["error_code"])
	assert.NotEmpty(t, body["transaction_id"])
}

func TestBetWinRoundTrip(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPost, "/players/p1/deposits", `{"amount": 100}`)
	_, _ = s.do(t, http.MethodPost, "/players/p1/bonuses", `{"amount": 300}`)

	w, _ := s.do(t, http.MethodPost, "/players/p1/bets", `{"betAmount": 400, "roundId": "r-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, body := s.do(t, http.MethodPost, "/players/p1/wins", `{"winAmount": 800, "roundId": "r-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	balances := body["balances"].(map[string]any)
	assert.Equal(t, float64(200), balances["real_balance"])
	assert.Equal(t, float64(600), balances["bonus_balance"])

	w, body = s.do(t, http.MethodGet, "/stats/bets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total_bets"])
	assert.Equal(t, float64(-400), body["total_ggr"])
}

func TestFreeSpinsAndLiability(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodPost, "/players/p1/free-spins", `{"count": 10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, _ = s.do(t, http.MethodPost, "/players/p2/bonuses", `{"amount": 50}`)

	w, body := s.do(t, http.MethodGet, "/stats/liability", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(250), body["total"])
	assert.Equal(t, float64(200), body["free_spin_value"])
}

func TestSettingsAdmin(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/admin/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(35), body["bonus_wr_multiplier"])

	update := map[string]any{
		"deposit_wr_multiplier":     1,
		"bonus_wr_multiplier":       10,
		"free_spin_wr_multiplier":   40,
		"avg_free_spin_win_value":   20,
		"jackpot_contribution_rate": "0.01",
		"vip_points_per_wager":      "0.01",
		"vip_points_per_win":        "0",
	}
	raw, err := json.Marshal(update)
	require.NoError(t, err)
	w, _ = s.do(t, http.MethodPut, "/admin/settings", string(raw))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := s.provider.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.BonusWRMultiplier)

	w, _ = s.do(t, http.MethodPut, "/admin/settings", `{"bonus_wr_multiplier": -1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPost, "/players/p1/deposits", `{"amount": 100}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `wagering_settlement_operations_total{operation="deposit",result="accepted"} 1`)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: &validation.ValidationError{Field: "amount"}, want: http.StatusBadRequest},
		{err: wagering.ErrInsufficientUnlockedFunds, want: http.StatusPaymentRequired},
		{err: fmt.Errorf("%w: lock", wallet.ErrConcurrentModification), want: http.StatusConflict},
		{err: fmt.Errorf("%w: ref-1", wallet.ErrReferenceConflict), want: http.StatusConflict},
		{err: fmt.Errorf("%w: commit: boom", wallet.ErrStorageFailure), want: http.StatusServiceUnavailable},
		{err: fmt.Errorf("%w: missing row", settings.ErrConfiguration), want: http.StatusInternalServerError},
		{err: errors.New("anything else"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestEmptyBodyIsRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/players/p1/deposits", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReferenceReuseConflicts(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodPost, "/players/p1/deposits", `{"amount": 100, "referenceId": "ref-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body := s.do(t, http.MethodPost, "/players/p1/withdrawals", `{"amount": 100, "referenceId": "ref-1"}`)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Contains(t, body["error"], "reference already used")

	_, body = s.do(t, http.MethodGet, "/players/p1/balance", "")
	assert.Equal(t, float64(100), body["real_balance"])
}

func TestDecisionListsTouchedSubBalances(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPost, "/players/p1/deposits", `{"amount": 100}`)
	_, _ = s.do(t, http.MethodPost, "/players/p1/bonuses", `{"amount": 100}`)

	w, body := s.do(t, http.MethodPost, "/players/p1/bets", `{"betAmount": 150, "referenceId": "bet-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decision := body["decision"].(map[string]any)
	assert.ElementsMatch(t, []any{"real", "bonus"}, decision["touched"])

	// a replay rebuilds the same list from the stored record
	w, body = s.do(t, http.MethodPost, "/players/p1/bets", `{"betAmount": 150, "referenceId": "bet-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["duplicate"])
	assert.ElementsMatch(t, []any{"real", "bonus"}, body["decision"].(map[string]any)["touched"])
}

func TestAmountAboveLimitIsRejected(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodPost, "/players/p1/deposits", `{"amount": 1000000000001}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "amount", body["field"])
}
