package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGuard() (*AbuseGuard, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewAbuseGuard(WithClock(clock.Now)), clock
}

func TestCheckRateLimit_WindowSlides(t *testing.T) {
	g, clock := newTestGuard()

	assert.True(t, g.CheckRateLimit("p1"))
	assert.True(t, g.CheckRateLimit("p1"))
	assert.True(t, g.CheckRateLimit("p1"))
	assert.False(t, g.CheckRateLimit("p1"))

	clock.Advance(999 * time.Millisecond)
	assert.False(t, g.CheckRateLimit("p1"))

	clock.Advance(101 * time.Millisecond)
	assert.True(t, g.CheckRateLimit("p1"))
}

func TestCheckRateLimit_RejectedAttemptsNotCounted(t *testing.T) {
	g, clock := newTestGuard()

	for range 3 {
		require.True(t, g.CheckRateLimit("p1"))
	}

	clock.Advance(500 * time.Millisecond)
	assert.False(t, g.CheckRateLimit("p1"))
	assert.False(t, g.CheckRateLimit("p1"))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, g.CheckRateLimit("p1"))
	assert.True(t, g.CheckRateLimit("p1"))
	assert.True(t, g.CheckRateLimit("p1"))
	assert.False(t, g.CheckRateLimit("p1"))
}

func TestCheckRateLimit_PerPlayer(t *testing.T) {
	g, _ := newTestGuard()

	for range 3 {
		require.True(t, g.CheckRateLimit("p1"))
	}
	assert.False(t, g.CheckRateLimit("p1"))
	assert.True(t, g.CheckRateLimit("p2"))
}

func TestCheckRateLimit_CustomLimit(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	g := NewAbuseGuard(WithClock(clock.Now), WithRateLimit(1, time.Minute))

	assert.True(t, g.CheckRateLimit("p1"))
	assert.False(t, g.CheckRateLimit("p1"))

	clock.Advance(time.Minute)
	assert.True(t, g.CheckRateLimit("p1"))
}

func TestIsReplay(t *testing.T) {
	g, clock := newTestGuard()

	assert.False(t, g.IsReplay("n1", "p1"))
	assert.True(t, g.IsReplay("n1", "p1"))
	assert.False(t, g.IsReplay("n1", "p2"), "nonces are scoped to a player")
	assert.False(t, g.IsReplay("n2", "p1"))

	clock.Advance(29 * time.Second)
	assert.True(t, g.IsReplay("n1", "p1"))

	clock.Advance(time.Second)
	assert.False(t, g.IsReplay("n1", "p1"), "expired nonces are accepted again")
	assert.True(t, g.IsReplay("n1", "p1"))
}

func TestForget(t *testing.T) {
	g, _ := newTestGuard()

	for range 3 {
		require.True(t, g.CheckRateLimit("p1"))
	}
	require.False(t, g.IsReplay("n1", "p1"))
	require.False(t, g.IsReplay("n1", "p10"))

	g.Forget("p1")

	assert.True(t, g.CheckRateLimit("p1"))
	assert.False(t, g.IsReplay("n1", "p1"))
	assert.True(t, g.IsReplay("n1", "p10"), "forgetting p1 leaves p10 alone")
}

func TestPrune(t *testing.T) {
	g, clock := newTestGuard()

	require.True(t, g.CheckRateLimit("p1"))
	require.False(t, g.IsReplay("n1", "p1"))

	assert.Equal(t, 0, g.Prune())

	clock.Advance(DefaultReplayTTL)
	require.True(t, g.CheckRateLimit("p2"))

	assert.Equal(t, 2, g.Prune())
	assert.Equal(t, 0, g.Prune())
}
