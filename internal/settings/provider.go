// Package settings stores the platform policy row and serves it to the
// settlement path through a process-wide cache.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"wagering_service/internal/wagering"
)

var (
	// ErrConfiguration means settlement cannot run because the policy row is
	// missing or unreadable.
	ErrConfiguration   = errors.New("platform settings unavailable")
	ErrInvalidSettings = errors.New("invalid platform settings")
)

// Broadcaster tells other processes that the settings row changed.
type Broadcaster interface {
	BroadcastChange(ctx context.Context) error
}

type Provider struct {
	repo Repository

	mu     sync.RWMutex
	cached *wagering.Settings
	// gen advances on every Update and Invalidate. A load only fills the
	// cache if gen did not move while it ran.
	gen         uint64
	broadcaster Broadcaster
}

func NewProvider(repo Repository) *Provider {
	return &Provider{repo: repo}
}

func (p *Provider) SetBroadcaster(b Broadcaster) {
	p.mu.Lock()
	p.broadcaster = b
	p.mu.Unlock()
}

// Get returns the cached settings, loading them on first use or after an
// invalidation.
func (p *Provider) Get(ctx context.Context) (wagering.Settings, error) {
	p.mu.RLock()
	if p.cached != nil {
		s := *p.cached
		p.mu.RUnlock()
		return s, nil
	}
	gen := p.gen
	p.mu.RUnlock()

	s, err := p.repo.Load(ctx)
	if err != nil {
		return wagering.Settings{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := s.Validate(); err != nil {
		return wagering.Settings{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	p.mu.Lock()
	if p.cached == nil && p.gen == gen {
		p.cached = &s
	}
	p.mu.Unlock()
	return s, nil
}

// Update validates and persists s. It only affects credits settled after it
// returns.
func (p *Provider) Update(ctx context.Context, s wagering.Settings) (wagering.Settings, error) {
	if err := s.Validate(); err != nil {
		return wagering.Settings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := p.repo.Save(ctx, s); err != nil {
		return wagering.Settings{}, fmt.Errorf("failed to save platform settings: %w", err)
	}

	p.mu.Lock()
	p.gen++
	p.cached = &s
	b := p.broadcaster
	p.mu.Unlock()

	if b != nil {
		if err := b.BroadcastChange(ctx); err != nil {
			log.Warn().Err(err).Msg("settings change broadcast failed")
		}
	}
	log.Info().
		Int64("deposit_wr_multiplier", s.DepositWRMultiplier).
		Int64("bonus_wr_multiplier", s.BonusWRMultiplier).
		Int64("free_spin_wr_multiplier", s.FreeSpinWRMultiplier).
		Int64("avg_free_spin_win_value", s.AvgFreeSpinWinValue).
		Msg("platform settings updated")
	return s, nil
}

// Invalidate drops the cached row so the next Get reloads it.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.gen++
	p.cached = nil
	p.mu.Unlock()
}
