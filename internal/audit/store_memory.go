package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps events in order of arrival. Test double and fallback
// when the action log path is disabled.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.events, limit), nil
}

func tail(events []Event, limit int) []Event {
	if limit <= 0 || limit > len(events) {
		limit = len(events)
	}
	out := make([]Event, limit)
	copy(out, events[len(events)-limit:])
	return out
}
