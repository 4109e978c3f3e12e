// Package validation turns untyped request payloads into typed settlement
// requests. Validators never touch storage.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"wagering_service/internal/wagering"
)

// ErrValidation matches every *ValidationError with errors.Is.
var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Kind    wagering.Operation `json:"kind"`
	Field   string             `json:"field"`
	Message string             `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s request: %s %s", e.Kind, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Field names in errors are the payload keys, taken from the json tags.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// The lte limits on amounts and counts are wagering.MaxAmount and
// wagering.MaxFreeSpinCount.

type DepositRequest struct {
	PlayerID    string `json:"playerId" validate:"required,max=64"`
	ReferenceID string `json:"referenceId" validate:"max=128"`
	Amount      int64  `json:"amount" validate:"gt=0,lte=1000000000000"`
}

type BonusGrantRequest struct {
	PlayerID    string `json:"playerId" validate:"required,max=64"`
	ReferenceID string `json:"referenceId" validate:"max=128"`
	Amount      int64  `json:"amount" validate:"gt=0,lte=1000000000000"`
}

type FreeSpinGrantRequest struct {
	PlayerID    string `json:"playerId" validate:"required,max=64"`
	ReferenceID string `json:"referenceId" validate:"max=128"`
	Count       int64  `json:"count" validate:"gt=0,lte=10000"`
}

// BetRequest optionally carries the spin's payout so bet and win settle as one
// unit. RoundID correlates a bet with a win settled later.
type BetRequest struct {
	PlayerID    string `json:"playerId" validate:"required,max=64"`
	ReferenceID string `json:"referenceId" validate:"max=128"`
	RoundID     string `json:"roundId" validate:"max=128"`
	BetAmount   int64  `json:"betAmount" validate:"gte=0,lte=1000000000000"`
	IsFreeSpin  bool   `json:"isFreeSpin"`
	WinAmount   *int64 `json:"winAmount" validate:"omitempty,gte=0,lte=1000000000000"`
}

type WinRequest struct {
	PlayerID      string `json:"playerId" validate:"required,max=64"`
	ReferenceID   string `json:"referenceId" validate:"max=128"`
	RoundID       string `json:"roundId" validate:"max=128"`
	WinAmount     int64  `json:"winAmount" validate:"gte=0,lte=1000000000000"`
	IsFreeSpinWin bool   `json:"isFreeSpinWin"`
}

type WithdrawRequest struct {
	PlayerID    string `json:"playerId" validate:"required,max=64"`
	ReferenceID string `json:"referenceId" validate:"max=128"`
	Amount      int64  `json:"amount" validate:"gt=0,lte=1000000000000"`
}

func Deposit(playerID string, payload map[string]any) (DepositRequest, error) {
	p := parser{kind: wagering.OpDeposit, payload: payload}
	req := DepositRequest{
		PlayerID:    playerID,
		ReferenceID: p.str("referenceId"),
		Amount:      p.integer("amount", true),
	}
	return req, p.check(req)
}

func GrantBonus(playerID string, payload map[string]any) (BonusGrantRequest, error) {
	p := parser{kind: wagering.OpBonusGrant, payload: payload}
	req := BonusGrantRequest{
		PlayerID:    playerID,
		ReferenceID: p.str("referenceId"),
		Amount:      p.integer("amount", true),
	}
	return req, p.check(req)
}

func GrantFreeSpins(playerID string, payload map[string]any) (FreeSpinGrantRequest, error) {
	p := parser{kind: wagering.OpFreeSpinGrant, payload: payload}
	req := FreeSpinGrantRequest{
		PlayerID:    playerID,
		ReferenceID: p.str("referenceId"),
		Count:       p.integer("count", true),
	}
	return req, p.check(req)
}

func Bet(playerID string, payload map[string]any) (BetRequest, error) {
	p := parser{kind: wagering.OpBet, payload: payload}
	req := BetRequest{
		PlayerID:    playerID,
		ReferenceID: p.str("referenceId"),
		RoundID:     p.str("roundId"),
		BetAmount:   p.integer("betAmount", true),
		IsFreeSpin:  p.boolean("isFreeSpin"),
	}
	if _, ok := payload["winAmount"]; ok {
		win := p.integer("winAmount", true)
		req.WinAmount = &win
	}
	if err := p.check(req); err != nil {
		return req, err
	}
	if req.BetAmount == 0 && !req.IsFreeSpin {
		return req, &ValidationError{Kind: p.kind, Field: "betAmount", Message: "must be greater than 0 unless isFreeSpin is set"}
	}
	return req, nil
}

func Win(playerID string, payload map[string]any) (WinRequest, error) {
	p := parser{kind: wagering.OpWin, payload: payload}
	req := WinRequest{
		PlayerID:      playerID,
		ReferenceID:   p.str("referenceId"),
		RoundID:       p.str("roundId"),
		WinAmount:     p.integer("winAmount", true),
		IsFreeSpinWin: p.boolean("isFreeSpinWin"),
	}
	return req, p.check(req)
}

func Withdraw(playerID string, payload map[string]any) (WithdrawRequest, error) {
	p := parser{kind: wagering.OpWithdraw, payload: payload}
	req := WithdrawRequest{
		PlayerID:    playerID,
		ReferenceID: p.str("referenceId"),
		Amount:      p.integer("amount", true),
	}
	return req, p.check(req)
}

// parser extracts typed fields from a decoded JSON object and keeps the first
// shape error it meets.
type parser struct {
	kind    wagering.Operation
	payload map[string]any
	err     *ValidationError
}

func (p *parser) fail(field, msg string) {
	if p.err == nil {
		p.err = &ValidationError{Kind: p.kind, Field: field, Message: msg}
	}
}

func (p *parser) integer(field string, required bool) int64 {
	raw, ok := p.payload[field]
	if !ok || raw == nil {
		if required {
			p.fail(field, "is required")
		}
		return 0
	}
	switch v := raw.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			p.fail(field, "must be an integer")
		}
		return n
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			p.fail(field, "must be an integer")
			return 0
		}
		if v > math.MaxInt64 || v < math.MinInt64 {
			p.fail(field, "is out of range")
			return 0
		}
		return int64(v)
	}
	p.fail(field, "must be an integer")
	return 0
}

func (p *parser) boolean(field string) bool {
	raw, ok := p.payload[field]
	if !ok || raw == nil {
		return false
	}
	v, ok := raw.(bool)
	if !ok {
		p.fail(field, "must be a boolean")
	}
	return v
}

func (p *parser) str(field string) string {
	raw, ok := p.payload[field]
	if !ok || raw == nil {
		return ""
	}
	v, ok := raw.(string)
	if !ok {
		p.fail(field, "must be a string")
	}
	return strings.TrimSpace(v)
}

func (p *parser) check(req any) error {
	if p.err != nil {
		return p.err
	}
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Kind: p.kind, Field: "", Message: err.Error()}
	}
	fe := verrs[0]
	return &ValidationError{Kind: p.kind, Field: fe.Field(), Message: ruleMessage(fe)}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "failed " + fe.Tag() + " rule"
}
