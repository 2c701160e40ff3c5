// Package ratelimit bounds in-flight document fetches and paces admissions.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/ecfr-snapshot/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// MaxInFlight caps simultaneous fetches. Defaults to 5.
	MaxInFlight int
	// RequestsPerSecond paces admissions; 0 means unlimited.
	RequestsPerSecond float64
	// CooldownOn429 enables the shared pause after a throttled response, so
	// waiters don't retry in lockstep.
	CooldownOn429 bool
}

// Limiter admits at most MaxInFlight concurrent fetch tasks. Admission order
// is roughly FIFO; every waiter is eventually admitted.
type Limiter struct {
	sem      *semaphore.Weighted
	pace     *rate.Limiter
	cooldown bool

	mu         sync.Mutex
	pauseUntil time.Time
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	n := cfg.MaxInFlight
	if n <= 0 {
		n = 5
	}
	r := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		r = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(n)),
		pace:     rate.NewLimiter(r, 1),
		cooldown: cfg.CooldownOn429,
	}
}

// Acquire blocks until a fetch slot is free, any shared cooldown has passed,
// and the pacing limiter admits the caller. The returned release function is
// idempotent and must be called on every exit path.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("rate limit acquire: %w", err)
	}
	var once sync.Once
	release := func() {
		once.Do(func() { l.sem.Release(1) })
	}
	if err := l.waitCooldown(ctx); err != nil {
		release()
		return nil, fmt.Errorf("rate limit cooldown: %w", err)
	}
	if err := l.pace.Wait(ctx); err != nil {
		release()
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(waited)
	}
	return release, nil
}

// Cooldown pauses new admissions for d. It never shortens an existing pause
// and is a no-op when the cooldown policy is disabled.
func (l *Limiter) Cooldown(d time.Duration) {
	if !l.cooldown || d <= 0 {
		return
	}
	l.mu.Lock()
	if until := time.Now().Add(d); until.After(l.pauseUntil) {
		l.pauseUntil = until
	}
	l.mu.Unlock()
}

func (l *Limiter) waitCooldown(ctx context.Context) error {
	for {
		l.mu.Lock()
		until := l.pauseUntil
		l.mu.Unlock()

		wait := time.Until(until)
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
