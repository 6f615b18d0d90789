// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package deletion

import (
	"context"
	"sync"
	"time"
)

// Limiter throttles per-entity deletes during large cascades using a
// token bucket, bounding the write load on the underlying store. It is
// safe for concurrent use across operations.
type Limiter struct {
	mu        sync.Mutex
	rate      float64 // tokens per second
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter allowing ratePerSecond deletes sustained,
// with a burst of one second's worth of tokens. A rate of zero or less
// means unlimited; NewLimiter returns nil and callers treat a nil
// limiter as a no-op.
func NewLimiter(ratePerSecond float64) *Limiter {
	if ratePerSecond <= 0 {
		return nil
	}
	capacity := ratePerSecond
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		rate:      ratePerSecond,
		capacity:  capacity,
		tokens:    capacity,
		lastCheck: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		cooldown := l.take()
		if cooldown == 0 {
			return nil
		}
		timer := time.NewTimer(cooldown)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token if one is available, returning zero, or returns
// the time until the next token.
func (l *Limiter) take() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastCheck).Seconds()
	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastCheck = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return 0
	}

	deficit := 1.0 - l.tokens
	return time.Duration(deficit / l.rate * float64(time.Second))
}
