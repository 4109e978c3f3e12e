// Package notify delivers balance-changed events after a settlement commits.
// Delivery is best effort and never blocks settlement.
package notify

import (
	"context"
	"sync"
	"time"
)

type BalanceChanged struct {
	PlayerID      string    `json:"player_id"`
	RealBalance   int64     `json:"real_balance"`
	BonusBalance  int64     `json:"bonus_balance"`
	Operation     string    `json:"operation"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

type Notifier interface {
	BalanceChanged(ctx context.Context, ev BalanceChanged)
}

// DropObserver counts notifications a subscriber could not take.
type DropObserver interface {
	ObserveNotificationDropped()
}

const subscriberBuffer = 10

// Hub fans events out to in-process subscribers of a player.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan BalanceChanged
	drops       DropObserver
}

func NewHub(drops DropObserver) *Hub {
	return &Hub{
		subscribers: make(map[string][]chan BalanceChanged),
		drops:       drops,
	}
}

// Subscribe returns a channel of the player's balance changes and a function
// that ends the subscription and closes the channel.
func (h *Hub) Subscribe(playerID string) (<-chan BalanceChanged, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan BalanceChanged, subscriberBuffer)
	h.subscribers[playerID] = append(h.subscribers[playerID], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			subs := h.subscribers[playerID]
			for i, c := range subs {
				if c == ch {
					h.subscribers[playerID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(h.subscribers[playerID]) == 0 {
				delete(h.subscribers, playerID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) BalanceChanged(_ context.Context, ev BalanceChanged) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[ev.PlayerID] {
		select {
		case ch <- ev:
		default:
			// subscriber full
			if h.drops != nil {
				h.drops.ObserveNotificationDropped()
			}
		}
	}
}

// Multi forwards every event to each notifier in order.
type Multi []Notifier

func (m Multi) BalanceChanged(ctx context.Context, ev BalanceChanged) {
	for _, n := range m {
		if n != nil {
			n.BalanceChanged(ctx, ev)
		}
	}
}
