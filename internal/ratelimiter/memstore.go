package ratelimiter

import (
	"context"
	"sync"
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// memStore is the ":memory:" DurableStore backend: a map-backed store used
// in dev and tests. Not shared across processes.
type memStore struct {
	mu          sync.Mutex
	windows     map[domain.RateLimitPeriod]domain.RateLimitWindow
	completions []domain.TaskCompletionRecord
	nextID      int64
}

// newMemStore builds an empty memStore.
func newMemStore() *memStore {
	return &memStore{windows: make(map[domain.RateLimitPeriod]domain.RateLimitWindow)}
}

func (s *memStore) WindowCount(_ context.Context, period domain.RateLimitPeriod, windowStart, windowEnd time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[period]
	if !ok || !w.WindowStart.Equal(windowStart) || !w.WindowEnd.Equal(windowEnd) {
		s.windows[period] = domain.RateLimitWindow{
			Period:      period,
			Count:       0,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			UpdatedAt:   time.Now().UTC(),
		}
		return 0, nil
	}
	return w.Count, nil
}

func (s *memStore) IncrementWindow(_ context.Context, period domain.RateLimitPeriod, n int64, windowStart, windowEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[period]
	if !ok || !w.WindowStart.Equal(windowStart) || !w.WindowEnd.Equal(windowEnd) {
		w = domain.RateLimitWindow{Period: period, WindowStart: windowStart, WindowEnd: windowEnd}
	}
	w.Count += n
	w.UpdatedAt = time.Now().UTC()
	s.windows[period] = w
	return nil
}

func (s *memStore) CountCompletionsInRange(_ context.Context, start, end time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, rec := range s.completions {
		if !rec.CompletedAt.Before(start) && !rec.CompletedAt.After(end) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) RecordCompletion(_ context.Context, rec domain.TaskCompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.completions = append(s.completions, rec)
	return nil
}

func (s *memStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.completions[:0]
	var removed int64
	for _, rec := range s.completions {
		if rec.CompletedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.completions = kept
	return removed, nil
}

func (s *memStore) Close() error { return nil }
