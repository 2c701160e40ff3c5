package client

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// attemptState models the lifecycle of a single fetch attempt:
// Pending -> Success | TransientFailure (-> Pending) | TerminalFailure.
// Success and TerminalFailure are the only terminal states.
type attemptState int

const (
	stateSuccess attemptState = iota
	stateTransient
	stateTerminal
)

// BackoffPolicy computes jittered exponential retry delays.
type BackoffPolicy struct {
	// Base is the initial delay d0.
	Base time.Duration
	// Max caps the exponential component.
	Max time.Duration
}

// Delay returns the wait before retry k (0-based): Base*2^k capped at Max,
// plus uniform random jitter in [0, Base).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := p.Max
	if maxDelay < base {
		maxDelay = base
	}
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay) + randomJitter(base)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// classify maps an attempt result to the next state. Network errors and
// throttled/5xx responses are transient; the caller handles 404 and parent
// context cancellation before consulting the state.
func classify(status int, err error) attemptState {
	if err != nil {
		return stateTransient
	}
	switch {
	case status >= 200 && status < 300:
		return stateSuccess
	case status == 429:
		return stateTransient
	case status >= 500:
		return stateTransient
	default:
		return stateTerminal
	}
}
