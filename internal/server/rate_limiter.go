// Package server implements a token bucket rate limiter for optional per-slot
// message throttling.
package server

import (
	"time"
)

// rateLimiter is only touched by the event loop goroutine.
type rateLimiter struct {
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
}

// newRateLimiter returns nil when cfg disables throttling.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Burst <= 0 {
		return nil
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	rate := float64(cfg.Burst) / interval.Seconds()
	if rate <= 0 {
		rate = float64(cfg.Burst)
	}

	return &rateLimiter{
		tokens:    float64(cfg.Burst),
		capacity:  float64(cfg.Burst),
		rate:      rate,
		lastCheck: time.Now(),
		now:       time.Now,
	}
}

// allow consumes one token. A nil limiter always allows.
func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}

	now := rl.now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}
