// Package ratelimit provides admission control for outbound inference
// calls: a token bucket with continuous refill, a sliding window over
// request timestamps, and per-session intervention cooldowns.
//
// The limiter never blocks or sleeps. Acquire answers true or false
// synchronously; all waiting behavior belongs to the request queue.
package ratelimit

import (
	"sync"
	"time"
)

// Window over which request timestamps are counted.
const slidingWindow = time.Minute

// Config holds the limiter's rate configuration in per-minute units.
type Config struct {
	// TokensPerMinute is the token bucket capacity and refill rate
	TokensPerMinute int

	// RequestsPerMinute bounds the sliding request window
	RequestsPerMinute int
}

// DefaultConfig returns the external API's documented budget.
func DefaultConfig() Config {
	return Config{
		TokensPerMinute:   5000,
		RequestsPerMinute: 25,
	}
}

// Limiter is the admission controller. All state is exclusively owned
// and mutated here; no other component reads or writes it directly.
// Its lifetime matches the owning inference client instance.
//
// Thread safety is provided via sync.Mutex for concurrent access.
type Limiter struct {
	mu sync.Mutex

	config Config

	// availableTokens is the current bucket level (fractional while
	// refilling continuously)
	availableTokens float64

	// requestTimes holds grant timestamps no older than the sliding
	// window, oldest first
	requestTimes []time.Time

	// lastRefill is the instant the bucket was last topped up
	lastRefill time.Time

	// interventions maps sessionID to the last intervention instant
	interventions map[string]time.Time

	// now is the clock, injectable for deterministic tests
	now func() time.Time
}

// NewLimiter creates a Limiter with a full bucket and the wall clock.
func NewLimiter(config Config) *Limiter {
	return NewLimiterWithClock(config, time.Now)
}

// NewLimiterWithClock creates a Limiter with an explicit clock.
// Tests use this to construct window scenarios without sleeping.
func NewLimiterWithClock(config Config, now func() time.Time) *Limiter {
	return &Limiter{
		config:          config,
		availableTokens: float64(config.TokensPerMinute),
		lastRefill:      now(),
		interventions:   make(map[string]time.Time),
		now:             now,
	}
}

// Acquire attempts to admit a call that will consume approximately
// estimatedTokens. It refills the bucket for elapsed time, prunes the
// request window, and then either grants (subtracting tokens and
// recording the request) or denies without mutating consumable state.
//
// This is a non-blocking check; a denied caller decides how to wait.
func (l *Limiter) Acquire(estimatedTokens int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.refill(now)
	l.pruneWindow(now)

	if len(l.requestTimes) >= l.config.RequestsPerMinute {
		return false
	}
	if l.availableTokens < float64(estimatedTokens) {
		return false
	}

	l.availableTokens -= float64(estimatedTokens)
	l.requestTimes = append(l.requestTimes, now)
	return true
}

// AvailableTokens performs a refill-then-read and returns the current
// bucket level, truncated to whole tokens.
func (l *Limiter) AvailableTokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.now())
	return int(l.availableTokens)
}

// TimeUntilNextRequest returns how long until the sliding window has
// room for another request, or zero if one would be admitted now.
func (l *Limiter) TimeUntilNextRequest() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneWindow(now)

	if len(l.requestTimes) < l.config.RequestsPerMinute {
		return 0
	}
	wait := l.requestTimes[0].Add(slidingWindow).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// TimeUntilTokens returns how long the bucket needs to refill before
// estimatedTokens are available, or zero if they already are.
func (l *Limiter) TimeUntilTokens(estimatedTokens int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.now())

	deficit := float64(estimatedTokens) - l.availableTokens
	if deficit <= 0 {
		return 0
	}
	perMilli := float64(l.config.TokensPerMinute) / float64(time.Minute/time.Millisecond)
	return time.Duration(deficit/perMilli) * time.Millisecond
}

// CanSendIntervention reports whether at least minInterval has elapsed
// since the last recorded intervention for the session. A session with
// no recorded intervention is always eligible.
func (l *Limiter) CanSendIntervention(sessionID string, minInterval time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.interventions[sessionID]
	if !ok {
		return true
	}
	return l.now().Sub(last) >= minInterval
}

// RecordIntervention stamps the current time as the session's last
// intervention instant.
func (l *Limiter) RecordIntervention(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interventions[sessionID] = l.now()
}

// ClearSession removes the session's throttle record. Called on
// session end to avoid unbounded map growth.
func (l *Limiter) ClearSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.interventions, sessionID)
}

// TrackedSessions returns the number of sessions with a throttle
// record. Useful for monitoring and leak detection in tests.
func (l *Limiter) TrackedSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.interventions)
}

// refill tops up the bucket in proportion to elapsed time, capped at
// capacity. Refill is continuous, not discrete ticks.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.availableTokens += elapsed.Minutes() * float64(l.config.TokensPerMinute)
	if capacity := float64(l.config.TokensPerMinute); l.availableTokens > capacity {
		l.availableTokens = capacity
	}
	l.lastRefill = now
}

// pruneWindow drops request timestamps older than the sliding window.
func (l *Limiter) pruneWindow(now time.Time) {
	cutoff := now.Add(-slidingWindow)
	idx := 0
	for idx < len(l.requestTimes) && !l.requestTimes[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.requestTimes = l.requestTimes[idx:]
	}
}
