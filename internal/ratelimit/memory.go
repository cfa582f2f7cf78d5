package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count     int64
	windowEnd time.Time
}

// MemoryStore is a process-local fixed-window counter for tests and
// single-instance dev runs. It shares no state across processes.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock overrides the store clock so tests can advance the window.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]

	if !ok || now.After(b.windowEnd) {
		b = &bucket{count: 0, windowEnd: now.Add(window)}
		s.buckets[key] = b
	}

	b.count++

	return b.count, b.windowEnd.Sub(now), nil
}
