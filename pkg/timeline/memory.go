package timeline

import (
	"context"
	"sort"
	"sync"

	"github.com/weftlabs/substrate/pkg/contracts"
)

// MemoryStore is an in-memory Store for tests and single-node setups.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]contracts.TimelineEvent // basket id -> ordered events
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]contracts.TimelineEvent)}
}

func (s *MemoryStore) Append(_ context.Context, ev *contracts.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append(s.events[ev.BasketID], *ev)
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.TS.Equal(b.TS) {
			return a.TS.Before(b.TS)
		}
		return a.ID < b.ID
	})
	s.events[ev.BasketID] = events
	return nil
}

func (s *MemoryStore) List(_ context.Context, basketID string, q Query) (*Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]contracts.TimelineEvent, 0, limit+1)
	for _, ev := range s.events[basketID] {
		if q.Cursor != nil {
			c := CursorFor(ev)
			if c.TSNanos < q.Cursor.TSNanos ||
				(c.TSNanos == q.Cursor.TSNanos && c.ID <= q.Cursor.ID) {
				continue
			}
		}
		if !matchesKinds(ev.Kind, q.Kinds) {
			continue
		}
		matched = append(matched, ev)
		if len(matched) > limit {
			break
		}
	}
	return pageFrom(matched, limit), nil
}

// Size returns the number of events stored for a basket, for tests.
func (s *MemoryStore) Size(basketID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events[basketID])
}
