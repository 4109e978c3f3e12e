// Package api is the thin HTTP adapter in front of the settlement engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"wagering_service/internal/settings"
	"wagering_service/internal/stats"
	"wagering_service/internal/validation"
	"wagering_service/internal/wagering"
	"wagering_service/internal/wallet"
)

type Settlement interface {
	GetBalance(ctx context.Context, playerID string) (*wallet.PlayerBalances, error)
	ProcessDeposit(ctx context.Context, req validation.DepositRequest) (*wallet.Result, error)
	ProcessBonusGrant(ctx context.Context, req validation.BonusGrantRequest) (*wallet.Result, error)
	ProcessFreeSpinGrant(ctx context.Context, req validation.FreeSpinGrantRequest) (*wallet.Result, error)
	ProcessBet(ctx context.Context, req validation.BetRequest) (*wallet.Result, error)
	ProcessWin(ctx context.Context, req validation.WinRequest) (*wallet.Result, error)
	ProcessWithdraw(ctx context.Context, req validation.WithdrawRequest) (*wallet.Result, error)
}

type Statistics interface {
	GetBetProcessingStats(ctx context.Context, window *stats.Window) stats.BetProcessingStats
	GetLiability(ctx context.Context) stats.Liability
}

type SettingsAdmin interface {
	Get(ctx context.Context) (wagering.Settings, error)
	Update(ctx context.Context, s wagering.Settings) (wagering.Settings, error)
}

type Handler struct {
	wallet   Settlement
	stats    Statistics
	settings SettingsAdmin
}

func NewHandler(w Settlement, s Statistics, admin SettingsAdmin) *Handler {
	return &Handler{wallet: w, stats: s, settings: admin}
}

type balanceResponse struct {
	PlayerID string `json:"player_id"`
	wagering.Balances
	Withdrawable int64     `json:"withdrawable"`
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type resultResponse struct {
	*wallet.Result
	Error string `json:"error,omitempty"`
}

func (h *Handler) GetBalance(c *gin.Context) {
	p, err := h.wallet.GetBalance(c.Request.Context(), c.Param("player_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{
		PlayerID:     p.PlayerID,
		Balances:     p.Balances(),
		Withdrawable: wagering.Withdrawable(p.Balances()),
		Version:      p.Version,
		UpdatedAt:    p.UpdatedAt,
	})
}

func (h *Handler) Deposit(c *gin.Context) {
	settle(c, validation.Deposit, h.wallet.ProcessDeposit)
}

func (h *Handler) GrantBonus(c *gin.Context) {
	settle(c, validation.GrantBonus, h.wallet.ProcessBonusGrant)
}

func (h *Handler) GrantFreeSpins(c *gin.Context) {
	settle(c, validation.GrantFreeSpins, h.wallet.ProcessFreeSpinGrant)
}

func (h *Handler) Bet(c *gin.Context) {
	settle(c, validation.Bet, h.wallet.ProcessBet)
}

func (h *Handler) Win(c *gin.Context) {
	settle(c, validation.Win, h.wallet.ProcessWin)
}

func (h *Handler) Withdraw(c *gin.Context) {
	settle(c, validation.Withdraw, h.wallet.ProcessWithdraw)
}

// settle decodes the body, validates it into R and runs the settlement.
func settle[R any](
	c *gin.Context,
	parse func(playerID string, payload map[string]any) (R, error),
	process func(ctx context.Context, req R) (*wallet.Result, error),
) {
	payload, err := decodePayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}
	req, err := parse(c.Param("player_id"), payload)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := process(c.Request.Context(), req)
	if res != nil && err != nil {
		// rejected but recorded
		c.JSON(statusOf(err), resultResponse{Result: res, Error: err.Error()})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse{Result: res})
}

func decodePayload(c *gin.Context) (map[string]any, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("null body")
	}
	return payload, nil
}

func (h *Handler) GetBetStats(c *gin.Context) {
	var window stats.Window
	for param, dst := range map[string]**time.Time{"from": &window.From, "to": &window.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be an RFC3339 timestamp"})
			return
		}
		*dst = &t
	}
	c.JSON(http.StatusOK, h.stats.GetBetProcessingStats(c.Request.Context(), &window))
}

func (h *Handler) GetLiability(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.GetLiability(c.Request.Context()))
}

func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req wagering.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.settings.Update(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, validation.ErrValidation), errors.Is(err, settings.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, wagering.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, wallet.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrConcurrentModification), errors.Is(err, wallet.ErrReferenceConflict):
		return http.StatusConflict
	case errors.Is(err, settings.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, wallet.ErrStorageFailure):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		c.JSON(status, gin.H{"error": verr.Error(), "field": verr.Field, "message": verr.Message})
		return
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
