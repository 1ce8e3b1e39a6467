// Package ratelimiter implements the multi-tier admission-control rate
// limiter (spec §4.2): in-memory fixed-window counters for minute/hour, and
// a pluggable durable store for day/week/month.
package ratelimiter

import (
	"context"
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// DurableStore backs the day/week/month tiers. Selected by
// rate_limit_storage_path: ":memory:" -> memStore, a postgres(ql):// DSN ->
// pgStore, anything else -> boltStore.
type DurableStore interface {
	// WindowCount returns the fixed-window counter for period, creating the
	// window row (count 0) if none covers [windowStart, windowEnd) yet.
	WindowCount(ctx context.Context, period domain.RateLimitPeriod, windowStart, windowEnd time.Time) (int64, error)
	// IncrementWindow adds n to the fixed-window counter for period,
	// creating the row if necessary (the upsert the Python reference
	// expresses as INSERT OR REPLACE ... COALESCE(...) + n).
	IncrementWindow(ctx context.Context, period domain.RateLimitPeriod, n int64, windowStart, windowEnd time.Time) error
	// CountCompletionsInRange counts task_completions rows in [start, end],
	// backing the rolling-window strategy for day/week/month.
	CountCompletionsInRange(ctx context.Context, start, end time.Time) (int64, error)
	// RecordCompletion appends one completion row.
	RecordCompletion(ctx context.Context, rec domain.TaskCompletionRecord) error
	// Prune deletes completion rows older than before, returning the count
	// removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	// Close releases any held resources (pool, file handle).
	Close() error
}
