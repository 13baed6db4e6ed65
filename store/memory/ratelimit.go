package memory

import (
	"context"
	"sync"
	"time"

	"github.com/afyadigital/gatekit/ratelimit"
)

type windowKey struct {
	identifier string
	endpoint   string
	start      time.Time
}

type rateLimitStore struct {
	mu      sync.Mutex
	windows map[windowKey]*ratelimit.Window
	blocks  map[string]*ratelimit.Block
}

func newRateLimitStore() *rateLimitStore {
	return &rateLimitStore{
		windows: make(map[windowKey]*ratelimit.Window),
		blocks:  make(map[string]*ratelimit.Block),
	}
}

func (s *rateLimitStore) IncrementWindow(ctx context.Context, identifier, endpoint string, windowStart, windowEnd time.Time) (*ratelimit.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowKey{identifier: identifier, endpoint: endpoint, start: windowStart}
	w, ok := s.windows[key]
	if !ok {
		w = &ratelimit.Window{
			Identifier:  identifier,
			Endpoint:    endpoint,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
		}
		s.windows[key] = w
	}
	w.RequestCount++

	out := *w
	return &out, nil
}

func (s *rateLimitStore) MarkWindowBlocked(ctx context.Context, identifier, endpoint string, windowStart time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowKey{identifier: identifier, endpoint: endpoint, start: windowStart}
	if w, ok := s.windows[key]; ok && !w.Blocked {
		w.Blocked = true
		w.BlockReason = reason
	}
	return nil
}

func (s *rateLimitStore) BlockedWindowCount(ctx context.Context, identifier string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, w := range s.windows {
		if w.Identifier == identifier && w.Blocked && !w.WindowStart.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *rateLimitStore) UpsertBlock(ctx context.Context, block *ratelimit.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.blocks[block.Identifier]
	if ok && existing.ExpiresAt.After(block.ExpiresAt) {
		existing.Reason = block.Reason
		return nil
	}
	cp := *block
	s.blocks[block.Identifier] = &cp
	return nil
}

func (s *rateLimitStore) ActiveBlock(ctx context.Context, identifier string, now time.Time) (*ratelimit.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[identifier]
	if !ok || !b.ExpiresAt.After(now) {
		return nil, nil
	}
	out := *b
	return &out, nil
}

func (s *rateLimitStore) PurgeWindows(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, w := range s.windows {
		if !w.Blocked && !w.WindowEnd.After(before) {
			delete(s.windows, key)
			purged++
		}
	}
	return purged, nil
}

func (s *rateLimitStore) PurgeBlocks(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, b := range s.blocks {
		if !b.ExpiresAt.After(before) {
			delete(s.blocks, id)
			purged++
		}
	}
	return purged, nil
}
