package memory

import (
	"context"
	"sync"
	"time"

	"github.com/afyadigital/gatekit/events"
)

type eventStore struct {
	mu   sync.Mutex
	rows []events.Event
}

func newEventStore() *eventStore {
	return &eventStore{}
}

func (s *eventStore) Append(ctx context.Context, e *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, *e)
	return nil
}

func (s *eventStore) CountByIP(ctx context.Context, ip string, min events.Severity, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for i := range s.rows {
		e := &s.rows[i]
		if e.IP == ip && e.Severity >= min && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *eventStore) CountByFingerprint(ctx context.Context, fingerprint string, min events.Severity, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for i := range s.rows {
		e := &s.rows[i]
		if e.Fingerprint == fingerprint && e.Severity >= min && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// All returns a copy of every stored event, newest last. Test helper.
func (s *eventStore) All() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]events.Event, len(s.rows))
	copy(out, s.rows)
	return out
}
