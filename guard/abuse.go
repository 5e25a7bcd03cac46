/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package guard

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultRateWindow = time.Second
	DefaultMaxMoves   = 3
	DefaultReplayTTL  = 30 * time.Second
)

// AbuseGuard tracks recent move timestamps and nonces per player. Entries
// expire lazily as they are checked; Prune drops whatever has gone stale in
// between.
type AbuseGuard struct {
	mu sync.Mutex

	now       func() time.Time
	window    time.Duration
	maxMoves  int
	replayTTL time.Duration

	moves  map[string][]time.Time
	nonces map[string]time.Time // key -> expiry
}

type Option func(*AbuseGuard)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *AbuseGuard) { g.now = now }
}

func WithRateLimit(maxMoves int, window time.Duration) Option {
	return func(g *AbuseGuard) {
		g.maxMoves = maxMoves
		g.window = window
	}
}

func WithReplayTTL(ttl time.Duration) Option {
	return func(g *AbuseGuard) { g.replayTTL = ttl }
}

func NewAbuseGuard(opts ...Option) *AbuseGuard {
	g := &AbuseGuard{
		now:       time.Now,
		window:    DefaultRateWindow,
		maxMoves:  DefaultMaxMoves,
		replayTTL: DefaultReplayTTL,
		moves:     make(map[string][]time.Time),
		nonces:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ReplayWindow is how long a nonce is remembered.
func (g *AbuseGuard) ReplayWindow() time.Duration {
	return g.replayTTL
}

// CheckRateLimit admits at most maxMoves attempts per player in the trailing
// window. Rejected attempts are not recorded.
func (g *AbuseGuard) CheckRateLimit(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	recent := g.recentLocked(playerID, now)

	if len(recent) >= g.maxMoves {
		g.moves[playerID] = recent
		return false
	}

	g.moves[playerID] = append(recent, now)
	return true
}

func (g *AbuseGuard) recentLocked(playerID string, now time.Time) []time.Time {
	times := g.moves[playerID]

	keep := times[:0]
	for _, t := range times {
		if now.Sub(t) < g.window {
			keep = append(keep, t)
		}
	}
	return keep
}

// IsReplay reports whether nonce was already seen for playerID within the
// replay window. A fresh nonce is remembered and false is returned.
func (g *AbuseGuard) IsReplay(nonce, playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	key := playerID + ":" + nonce

	if expiry, ok := g.nonces[key]; ok {
		if now.Before(expiry) {
			return true
		}
		delete(g.nonces, key)
	}

	g.nonces[key] = now.Add(g.replayTTL)
	return false
}

// Forget drops all state for playerID.
func (g *AbuseGuard) Forget(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.moves, playerID)

	prefix := playerID + ":"
	for key := range g.nonces {
		if strings.HasPrefix(key, prefix) {
			delete(g.nonces, key)
		}
	}
}

// Prune removes expired nonces and players with no recent moves. It returns
// the number of entries dropped.
func (g *AbuseGuard) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	dropped := 0

	for key, expiry := range g.nonces {
		if !now.Before(expiry) {
			delete(g.nonces, key)
			dropped++
		}
	}

	for playerID := range g.moves {
		recent := g.recentLocked(playerID, now)
		if len(recent) == 0 {
			delete(g.moves, playerID)
			dropped++
			continue
		}
		g.moves[playerID] = recent
	}

	return dropped
}
