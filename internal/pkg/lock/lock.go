// Package lock provides per-player mutual exclusion for balance mutations.
package lock

import (
	"context"
	"sync"
	"time"
)

// playerMutex is a one-slot semaphore so waiters can give up on a deadline
// without leaving a goroutine parked on the mutex.
type playerMutex struct {
	sem chan struct{}
}

// release returns the slot exactly once, however often it is called. Only
// the acquirer holds it, so nobody else can free a lock they do not own.
func (m *playerMutex) release() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-m.sem })
	}
}

// PlayerLock serializes operations on the same player while leaving
// different players independent.
type PlayerLock struct {
	locks sync.Map // map[string]*playerMutex
}

func NewPlayerLock() *PlayerLock {
	return &PlayerLock{}
}

func (pl *PlayerLock) getLock(playerID string) *playerMutex {
	if v, ok := pl.locks.Load(playerID); ok {
		return v.(*playerMutex)
	}
	actual, _ := pl.locks.LoadOrStore(playerID, &playerMutex{sem: make(chan struct{}, 1)})
	return actual.(*playerMutex)
}

// Lock blocks until the player's lock is held and returns its release.
func (pl *PlayerLock) Lock(playerID string) (unlock func()) {
	m := pl.getLock(playerID)
	m.sem <- struct{}{}
	return m.release()
}

// LockWithTimeout waits up to timeout, or until ctx is done, for the lock.
// The release is nil when the lock was not acquired.
func (pl *PlayerLock) LockWithTimeout(ctx context.Context, playerID string, timeout time.Duration) (unlock func(), ok bool) {
	m := pl.getLock(playerID)
	select {
	case m.sem <- struct{}{}:
		return m.release(), true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m.sem <- struct{}{}:
		return m.release(), true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// WithLockContext runs fn while holding the player's lock. It returns
// ErrLockTimeout when the lock is not acquired in time and ctx.Err() when
// the caller gave up first.
func (pl *PlayerLock) WithLockContext(ctx context.Context, playerID string, timeout time.Duration, fn func() error) error {
	unlock, ok := pl.LockWithTimeout(ctx, playerID, timeout)
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
