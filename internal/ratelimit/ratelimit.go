// Package ratelimit implements the per-IP token bucket that guards
// against a single client flooding the gateway with WebSocket messages.
// Adapted from the teacher's internal/middleware per-IP limiter — this
// version is keyed on client IP only (the UserRateLimiter/EndpointRateLimiter
// variants the teacher also had don't apply to an unauthenticated-by-default
// socket protocol, so they aren't carried over) and its cleanup sweep is
// driven by the backend's mlat heartbeat rather than its own ticker. See
// SPEC_FULL.md C6.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// idleEvictAfter is how long a per-IP bucket may go unused before GC drops
// it, piggybacked on the mlat heartbeat tick.
const idleEvictAfter = 60 * time.Second

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-IP token bucket: credits tokens refilled linearly over
// 10 seconds, burst capacity equal to credits.
type Limiter struct {
	log zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	credits int
	rate    rate.Limit
}

// New builds a Limiter with the given bucket size. The refill rate is
// credits per 10 seconds, matching spec.md §4.5.
func New(log zerolog.Logger, credits int) *Limiter {
	return &Limiter{
		log:     log.With().Str("component", "ratelimit").Logger(),
		entries: make(map[string]*entry),
		credits: credits,
		rate:    rate.Limit(float64(credits) / 10.0),
	}
}

// Allow reports whether a message from ip may proceed, consuming one
// token if so. A blank ip (no client address available) always allows,
// matching spec.md's bypass rule.
func (l *Limiter) Allow(ip string) bool {
	if ip == "" {
		return true
	}

	l.mu.Lock()
	e, ok := l.entries[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.credits)}
		l.entries[ip] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// GC evicts buckets that have been idle for more than idleEvictAfter. The
// socket handler calls this whenever it relays an mlat heartbeat, so the
// sweep has no dedicated ticker of its own.
func (l *Limiter) GC() {
	cutoff := time.Now().Add(-idleEvictAfter)

	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for ip, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
			evicted++
		}
	}
	if evicted > 0 {
		l.log.Debug().Int("evicted", evicted).Int("remaining", len(l.entries)).Msg("rate limiter gc")
	}
}

// Len reports the number of tracked IPs, for tests and diagnostics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
