package stats

import (
	"context"
	"sync"
	"time"
)

type memory struct {
	mu      sync.RWMutex
	tallies map[string]Tally
	now     func() time.Time
}

// NewMemoryStore returns a Store that lives only as long as the process.
func NewMemoryStore() Store {
	return &memory{
		tallies: make(map[string]Tally),
		now:     time.Now,
	}
}

func (m *memory) Record(ctx context.Context, playerID string, outcome Outcome) (Tally, error) {
	if !outcome.Valid() {
		return Tally{}, ErrInvalidOutcome
	}
	if err := ctx.Err(); err != nil {
		return Tally{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tallies[playerID]
	t.PlayerID = playerID
	t.add(outcome, m.now())
	m.tallies[playerID] = t

	return t, nil
}

func (m *memory) Get(ctx context.Context, playerID string) (Tally, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tallies[playerID]
	if !ok {
		return Tally{}, ErrNotFound
	}
	return t, nil
}

func (m *memory) Close() {}
