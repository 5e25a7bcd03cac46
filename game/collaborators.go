package game

import (
	"context"
	"time"
)

// EventGameUpdate is the event name carrying room snapshots.
const EventGameUpdate = "gameUpdate"

// Transport delivers events to connected sessions. Delivery is best effort;
// sending to a session that is gone is a silent no-op.
type Transport interface {
	Send(sessionID, event string, payload any)
	Broadcast(sessionIDs []string, event string, payload any)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts time so tests can drive deferred resets and sweeps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) Ticker
}

// IDGenerator produces candidate room codes. Uniqueness is checked by the
// coordinator, which asks again on collision.
type IDGenerator interface {
	Generate() string
}

// MatchPolicy decides when a match is over.
type MatchPolicy interface {
	Finished(s Scores) bool
}

// ResultRecorder persists per-player round outcomes. Calls run off the
// coordinator loop.
type ResultRecorder interface {
	RecordResult(ctx context.Context, playerID string, outcome Outcome) error
}

// FirstTo ends the match once either player reaches the given number of
// round wins. Zero or less never ends it.
type FirstTo int

func (n FirstTo) Finished(s Scores) bool {
	if n <= 0 {
		return false
	}
	return s.Player1 >= int(n) || s.Player2 >= int(n)
}

type systemClock struct{}

// SystemClock is the wall clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }
