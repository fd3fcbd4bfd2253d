// Package otpguard implements the de-duplication guard applied to OTP
// verification submissions. The guard suppresses rapid duplicate submits of
// the same (identifier, code, ip) triple so a double-clicked form does not
// burn a verification attempt twice.
//
// The guard is best-effort by contract: it is not a rate limiter and not a
// security boundary. Losing entries on restart or under pressure is
// acceptable; failing open is the correct behavior.
package otpguard

import (
	"context"
	"sync"
	"time"
)

// Guard reports whether a submission key may proceed. A false return means
// the same key was seen within the cooldown window.
type Guard interface {
	Allow(ctx context.Context, key string) bool
}

// MemoryGuard is the single-process default: a mutex-guarded map of
// last-seen times with a hard entry cap. It is owned by the engine
// instance, never package-level, so tests do not leak state into each
// other.
type MemoryGuard struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	cooldown time.Duration
	maxSize  int
	now      func() time.Time
}

// NewMemoryGuard creates a guard with the given cooldown window and entry
// cap. A non-positive cooldown disables the guard (everything is allowed).
func NewMemoryGuard(cooldown time.Duration, maxSize int) *MemoryGuard {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &MemoryGuard{
		seen:     make(map[string]time.Time),
		cooldown: cooldown,
		maxSize:  maxSize,
		now:      time.Now,
	}
}

// Allow records the key and reports whether it was outside the cooldown
// window.
func (g *MemoryGuard) Allow(_ context.Context, key string) bool {
	if g == nil || g.cooldown <= 0 {
		return true
	}

	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.seen[key]; ok && now.Sub(last) < g.cooldown {
		return false
	}

	if len(g.seen) >= g.maxSize {
		g.evictLocked(now)
	}
	g.seen[key] = now
	return true
}

// evictLocked drops expired entries; if nothing expired it clears the map
// outright. Losing live entries only weakens de-duplication, never
// correctness.
func (g *MemoryGuard) evictLocked(now time.Time) {
	for k, last := range g.seen {
		if now.Sub(last) >= g.cooldown {
			delete(g.seen, k)
		}
	}
	if len(g.seen) >= g.maxSize {
		g.seen = make(map[string]time.Time)
	}
}
