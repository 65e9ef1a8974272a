// Package memory provides an in-process outcome store for deployments that
// run without PostgreSQL. Retention is best-effort: outcomes survive exactly
// as long as the process and the configured window.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/xenking/pos-checkout/internal/checkout"
)

// expectedKeys sizes the bloom filter: the number of distinct order IDs
// expected within one retention window.
const (
	expectedKeys = 1_000_000
	bloomFPR     = 0.001
)

var _ checkout.Store = (*OutcomeStore)(nil)

type entry struct {
	outcome   *checkout.Outcome
	expiresAt time.Time
}

// OutcomeStore retains terminal outcomes in a TTL map. A bloom filter fronts
// the map so the common case, an order ID that has never been seen, is
// answered without touching it. The filter cannot forget expired keys, so a
// stale positive just falls through to a map miss.
type OutcomeStore struct {
	retention time.Duration

	mu       sync.RWMutex
	outcomes map[string]entry
	seen     *bloom.BloomFilter
}

// NewOutcomeStore creates a store that retains outcomes for the given window.
func NewOutcomeStore(retention time.Duration) *OutcomeStore {
	return &OutcomeStore{
		retention: retention,
		outcomes:  make(map[string]entry),
		seen:      bloom.NewWithEstimates(expectedKeys, bloomFPR),
	}
}

// Get implements checkout.Store. Expired entries count as not found even
// before the cleanup goroutine evicts them.
func (s *OutcomeStore) Get(_ context.Context, id string) (*checkout.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.seen.TestString(id) {
		return nil, checkout.ErrOutcomeNotFound
	}
	e, ok := s.outcomes[id]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, checkout.ErrOutcomeNotFound
	}
	return e.outcome, nil
}

// Put implements checkout.Store.
func (s *OutcomeStore) Put(_ context.Context, outcome *checkout.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen.AddString(outcome.Order.ID)
	s.outcomes[outcome.Order.ID] = entry{
		outcome:   outcome,
		expiresAt: time.Now().Add(s.retention),
	}
	return nil
}

// cleanup removes entries whose retention window has elapsed.
func (s *OutcomeStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.outcomes {
		if now.After(e.expiresAt) {
			delete(s.outcomes, id)
		}
	}
}

// StartCleanup launches a background goroutine that periodically evicts
// expired entries. It stops when ctx is cancelled.
func (s *OutcomeStore) StartCleanup(ctx context.Context) {
	interval := s.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.cleanup(now)
			}
		}
	}()
}
