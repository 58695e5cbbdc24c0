package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/issuetrail/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

const memorySweepInterval = time.Minute

// memoryRateStore keeps fixed-window counters in process. Expired windows are
// swept during Increment at most once per sweep interval.
type memoryRateStore struct {
	mu        sync.Mutex
	counters  map[string]memoryCounter
	nextSweep time.Time
	clock     func() time.Time
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore is used when no shared cache is available.
func NewMemoryRateStore() RateStore {
	return newMemoryRateStore(time.Now)
}

func newMemoryRateStore(clock func() time.Time) *memoryRateStore {
	return &memoryRateStore{
		counters: make(map[string]memoryCounter),
		clock:    clock,
	}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !now.Before(s.nextSweep) {
		for k, counter := range s.counters {
			if !now.Before(counter.windowEnd) {
				delete(s.counters, k)
			}
		}
		s.nextSweep = now.Add(memorySweepInterval)
	}

	counter, ok := s.counters[key]
	if !ok || !now.Before(counter.windowEnd) {
		counter = memoryCounter{windowEnd: now.Add(window)}
	}
	counter.count++
	s.counters[key] = counter

	return counter.count, counter.windowEnd.Sub(now), nil
}

// storeRateStore keeps counters in a shared cache.Store (Redis or the database).
type storeRateStore struct {
	store cache.Store
}

// NewCacheRateStore wraps a shared cache store so limits hold across instances.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
