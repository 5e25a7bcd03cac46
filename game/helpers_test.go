package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/roshambo/guard"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

// --- Transport ---

type mockTransport struct {
	mock.Mock
}

func newMockTransport() *mockTransport {
	m := &mockTransport{}
	m.On("Broadcast", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("Send", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	return m
}

func (m *mockTransport) Send(sessionID, event string, payload any) {
	m.Called(sessionID, event, payload)
}

func (m *mockTransport) Broadcast(sessionIDs []string, event string, payload any) {
	m.Called(sessionIDs, event, payload)
}

func (m *mockTransport) snapshots() []Snapshot {
	var out []Snapshot
	for _, call := range m.Calls {
		if call.Method != "Broadcast" {
			continue
		}
		if s, ok := call.Arguments.Get(2).(Snapshot); ok {
			out = append(out, s)
		}
	}
	return out
}

func (m *mockTransport) last() Snapshot {
	all := m.snapshots()
	if len(all) == 0 {
		return Snapshot{}
	}
	return all[len(all)-1]
}

func (m *mockTransport) broadcasts() int {
	return len(m.snapshots())
}

// --- IDGenerator ---

type mockIDs struct {
	mock.Mock
}

func (m *mockIDs) Generate() string {
	return m.Called().String(0)
}

type seqIDs struct {
	n int
}

func (s *seqIDs) Generate() string {
	s.n++
	return fmt.Sprintf("ROOM%02d", s.n)
}

// --- Clock ---

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeTicker struct {
	clock  *fakeClock
	period time.Duration
	next   time.Time
	ch     chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

// fakeClock only moves when Advance is called. Due timer callbacks run on
// the caller's goroutine and ticks are delivered with a blocking send, so a
// running coordinator has taken them by the time Advance returns.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTicker{clock: c, period: d, next: c.now.Add(d), ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

// active returns the timers that are neither stopped nor fired.
func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(now) {
			t.fired = true
			due = append(due, t.f)
		}
	}

	var ticks []*fakeTicker
	for _, t := range c.tickers {
		if !t.next.After(now) {
			for !t.next.After(now) {
				t.next = t.next.Add(t.period)
			}
			ticks = append(ticks, t)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
	for _, t := range ticks {
		t.ch <- now
	}
}

// --- ResultRecorder ---

type recorded struct {
	PlayerID string
	Outcome  Outcome
}

type chanRecorder struct {
	got chan recorded
	err error
}

func newChanRecorder(err error) *chanRecorder {
	return &chanRecorder{got: make(chan recorded, 16), err: err}
}

func (r *chanRecorder) RecordResult(ctx context.Context, playerID string, outcome Outcome) error {
	r.got <- recorded{PlayerID: playerID, Outcome: outcome}
	return r.err
}

func (r *chanRecorder) take(t *testing.T, n int) []recorded {
	t.Helper()

	out := make([]recorded, 0, n)
	for range n {
		select {
		case rec := <-r.got:
			out = append(out, rec)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d recorded results, got %d", n, len(out))
		}
	}
	return out
}

// --- Coordinator ---

type harness struct {
	c     *Coordinator
	tr    *mockTransport
	clock *fakeClock
	ctx   context.Context
}

func newCoordinatorForTest(opts Options, auth *guard.Authenticator) (*Coordinator, *mockTransport, *fakeClock) {
	clock := newFakeClock()
	tr := newMockTransport()

	opts.Clock = clock
	if opts.IDs == nil {
		opts.IDs = &seqIDs{}
	}

	return NewCoordinator(tr, nil, auth, opts, zerolog.Nop()), tr, clock
}

// start runs the coordinator until the test ends.
func start(t *testing.T, c *Coordinator) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		c.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return context.Background()
}

func newHarness(t *testing.T, opts Options, auth *guard.Authenticator) *harness {
	t.Helper()

	c, tr, clock := newCoordinatorForTest(opts, auth)

	return &harness{c: c, tr: tr, clock: clock, ctx: start(t, c)}
}

// sync waits for the loop to finish whatever it was handling.
func (h *harness) sync() []RoomSummary {
	return h.c.Rooms(h.ctx)
}

func (h *harness) who(session, player string) Identity {
	return Identity{SessionID: session, PlayerID: player}
}

// playing creates a room for s1 and seats s2 in it.
func (h *harness) playing(t *testing.T) string {
	t.Helper()

	created := h.c.CreateRoom(h.ctx, h.who("s1", "alice"))
	if !created.Success {
		t.Fatalf("create failed: %s", created.Message)
	}

	joined := h.c.JoinRoom(h.ctx, h.who("s2", "bob"), created.RoomID)
	if !joined.Success {
		t.Fatalf("join failed: %s", joined.Message)
	}

	return created.RoomID
}
