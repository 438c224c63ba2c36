package cache

import (
	"context"
	"sync"
	"time"

	"github.com/littleloop/backend/internal/domain/shared"
)

const sweepInterval = 5 * time.Minute

// InMemoryIdempotencyStore deduplicates webhook event IDs in process memory.
// It is the fallback when no Redis instance is configured, which makes it
// suitable for single-instance deployments and tests only: a restart forgets
// every seen event.
type InMemoryIdempotencyStore struct {
	mu   sync.RWMutex
	seen map[string]time.Time // event ID -> expiry

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore creates the store and starts a background
// sweeper that evicts expired event IDs.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		seen: make(map[string]time.Time),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

// MarkProcessed records an event ID with a TTL. It returns false when the ID
// was already recorded and has not yet expired, so a duplicate delivery of
// the same webhook event is skipped.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.seen[eventID]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	s.seen[eventID] = time.Now().Add(ttl)
	return true, nil
}

// IsProcessed reports whether an event ID is recorded and unexpired.
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, ok := s.seen[eventID]
	return ok && time.Now().Before(expiry), nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryIdempotencyStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for eventID, expiry := range s.seen {
		if now.After(expiry) {
			delete(s.seen, eventID)
		}
	}
}

// Size returns the number of recorded event IDs. Used by tests.
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
