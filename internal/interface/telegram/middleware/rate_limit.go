// Package middleware contains Telegram bot middlewares for update processing.
package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER MIDDLEWARE
// Per-session token bucket. Repeated violations earn a temporary ban. Every
// limited input, banned or not, is answered with the remaining wait time.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per session.
	RequestsPerMinute int

	// BurstSize is the bucket capacity.
	BurstSize int

	// BanDuration is how long a session is blocked after BanThreshold violations.
	BanDuration time.Duration

	// BanThreshold is the number of violations within ViolationWindow before a ban.
	BanThreshold int

	// ViolationWindow resets the violation count when exceeded.
	ViolationWindow time.Duration

	// IdleTTL drops buckets not touched for this long.
	IdleTTL time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// DefaultRateLimitConfig returns 20 requests per minute with a burst of 5.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		BurstSize:         5,
		BanDuration:       10 * time.Minute,
		BanThreshold:      3,
		ViolationWindow:   5 * time.Minute,
		IdleTTL:           10 * time.Minute,
	}
}

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	IsBanned   bool
}

// Message returns the reply sent to a limited session.
func (r RateLimitResult) Message() string {
	seconds := int(r.RetryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if seconds < 60 {
		return fmt.Sprintf("⏳ Too many requests. Try again in %d seconds.", seconds)
	}
	return fmt.Sprintf("⏳ Too many requests. Try again in %d minutes.", (seconds+59)/60)
}

// RateLimiter implements per-session rate limiting.
type RateLimiter struct {
	config RateLimitConfig

	mu        sync.Mutex
	buckets   map[student.SessionID]*tokenBucket
	bans      map[student.SessionID]time.Time
	lastSweep time.Time
}

type tokenBucket struct {
	tokens       float64
	lastRefill   time.Time
	violations   int
	lastViolated time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	if config.BanThreshold <= 0 {
		config.BanThreshold = defaults.BanThreshold
	}
	if config.ViolationWindow <= 0 {
		config.ViolationWindow = defaults.ViolationWindow
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[student.SessionID]*tokenBucket),
		bans:    make(map[student.SessionID]time.Time),
	}
}

// Check consumes one token for the session.
func (rl *RateLimiter) Check(sessionID student.SessionID) RateLimitResult {
	now := rl.config.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweep(now)

	if until, ok := rl.bans[sessionID]; ok {
		if now.Before(until) {
			return RateLimitResult{RetryAfter: until.Sub(now), IsBanned: true}
		}
		delete(rl.bans, sessionID)
	}

	b, ok := rl.buckets[sessionID]
	if !ok {
		b = &tokenBucket{tokens: float64(rl.config.BurstSize), lastRefill: now}
		rl.buckets[sessionID] = b
	}

	rate := float64(rl.config.RequestsPerMinute) / 60.0
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if b.tokens > float64(rl.config.BurstSize) {
		b.tokens = float64(rl.config.BurstSize)
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return RateLimitResult{Allowed: true}
	}

	if now.Sub(b.lastViolated) > rl.config.ViolationWindow {
		b.violations = 0
	}
	b.violations++
	b.lastViolated = now

	if b.violations >= rl.config.BanThreshold && rl.config.BanDuration > 0 {
		rl.bans[sessionID] = now.Add(rl.config.BanDuration)
		b.violations = 0
		return RateLimitResult{RetryAfter: rl.config.BanDuration, IsBanned: true}
	}

	retry := time.Duration((1 - b.tokens) / rate * float64(time.Second))
	return RateLimitResult{RetryAfter: retry}
}

// Reset forgets all state for the session.
func (rl *RateLimiter) Reset(sessionID student.SessionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, sessionID)
	delete(rl.bans, sessionID)
}

// sweep drops idle buckets and expired bans at most once per IdleTTL.
// Must be called with mu held.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.config.IdleTTL {
		return
	}
	rl.lastSweep = now
	for id, b := range rl.buckets {
		if now.Sub(b.lastRefill) > rl.config.IdleTTL {
			delete(rl.buckets, id)
		}
	}
	for id, until := range rl.bans {
		if !now.Before(until) {
			delete(rl.bans, id)
		}
	}
}
