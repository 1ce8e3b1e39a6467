package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/observability"
)

// Limiter implements domain.RateLimiter: minute/hour tiers are bucketed
// in-memory counters regardless of the configured strategy (spec §9's
// retained-quirk resolution); day/week/month flow through a DurableStore
// keyed by rate_limit_storage_path.
type Limiter struct {
	enabled  bool
	strategy config.RateLimitStrategy
	limits   map[domain.RateLimitPeriod]int64
	store    DurableStore
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu                sync.Mutex
	minuteCount       int64
	minuteWindowStart time.Time
	hourCount         int64
	hourWindowStart   time.Time
}

// New builds a Limiter, selecting the durable store backend from
// cfg.RateLimitStoragePath. metrics and logger may be nil.
func New(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *slog.Logger) (*Limiter, error) {
	store, err := newStore(ctx, cfg.RateLimitStoragePath)
	if err != nil {
		return nil, fmt.Errorf("op=ratelimiter.New: %w", err)
	}

	now := time.Now().UTC()
	minuteStart, _ := fixedWindowBounds(domain.PeriodMinute, now)
	hourStart, _ := fixedWindowBounds(domain.PeriodHour, now)

	return &Limiter{
		enabled:  cfg.RateLimitEnabled,
		strategy: cfg.RateLimitStrategy,
		limits: map[domain.RateLimitPeriod]int64{
			domain.PeriodMinute: cfg.RateLimitPerMinute,
			domain.PeriodHour:   cfg.RateLimitPerHour,
			domain.PeriodDay:    cfg.RateLimitPerDay,
			domain.PeriodWeek:   cfg.RateLimitPerWeek,
			domain.PeriodMonth:  cfg.RateLimitPerMonth,
		},
		store:             store,
		metrics:           metrics,
		logger:            logger,
		minuteWindowStart: minuteStart,
		hourWindowStart:   hourStart,
	}, nil
}

func newStore(ctx context.Context, path string) (DurableStore, error) {
	switch {
	case path == "" || path == ":memory:":
		return newMemStore(), nil
	case strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://"):
		return newPGStore(ctx, path)
	default:
		return newBoltStore(path)
	}
}

// Close releases the underlying durable store's resources.
func (l *Limiter) Close() error { return l.store.Close() }

// Check admits or denies a batch of size n against every enabled tier
// (spec §4.2). Tiers are evaluated in domain.AllPeriods order; the first
// tier that would be exceeded is returned as Decision.Tier.
func (l *Limiter) Check(ctx context.Context, n int) (domain.Decision, error) {
	if !l.enabled {
		return domain.Decision{Allowed: true}, nil
	}

	start := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.RateLimitCheckTime.Observe(time.Since(start).Seconds())
		}
	}()

	now := time.Now().UTC()
	usage := make(map[domain.RateLimitPeriod]domain.TierUsage)
	var denied *domain.RateLimitPeriod

	for _, period := range domain.AllPeriods {
		limit := l.limits[period]
		if limit <= 0 {
			continue
		}

		current, resetAt, err := l.tierUsage(ctx, period, now)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("op=ratelimiter.Check period=%s: %w", period, err)
		}

		remaining := limit - current
		if remaining < 0 {
			remaining = 0
		}
		usage[period] = domain.TierUsage{Current: current, Limit: limit, Remaining: remaining, ResetAt: resetAt}

		if l.metrics != nil {
			l.metrics.RateLimitCurrent.WithLabelValues(string(period)).Set(float64(current))
			l.metrics.RateLimitMax.WithLabelValues(string(period)).Set(float64(limit))
			l.metrics.RateLimitRemaining.WithLabelValues(string(period)).Set(float64(remaining))
		}

		if denied == nil && current+int64(n) > limit {
			p := period
			denied = &p
			if l.logger != nil {
				l.logger.Warn("rate limit exceeded",
					"period", period, "current", current, "limit", limit,
					"requested", n, "reset_at", resetAt)
			}
			if l.metrics != nil {
				l.metrics.RateLimitExceeded.WithLabelValues(string(period)).Inc()
			}
		}
	}

	if denied != nil {
		return domain.Decision{Allowed: false, Tier: *denied, Usage: usage}, nil
	}
	return domain.Decision{Allowed: true, Usage: usage}, nil
}

// Record credits n completions of kind. taskIDs, when non-empty, is
// recorded one completion row per ID; otherwise n anonymous rows are
// recorded. Matches the Python reference: in-memory counters are
// incremented unconditionally (window rollover is detected lazily on the
// next Check), and day/week/month fixed-window counters are maintained
// regardless of the configured strategy.
func (l *Limiter) Record(ctx context.Context, n int, kind domain.TaskKind, taskIDs []string) error {
	if !l.enabled {
		return nil
	}

	now := time.Now().UTC()

	l.mu.Lock()
	l.minuteCount += int64(n)
	l.hourCount += int64(n)
	l.mu.Unlock()

	if len(taskIDs) > 0 {
		for _, id := range taskIDs {
			rec := domain.TaskCompletionRecord{CompletedAt: now, Kind: kind, TaskID: id}
			if err := l.store.RecordCompletion(ctx, rec); err != nil {
				return fmt.Errorf("op=ratelimiter.Record: %w", err)
			}
		}
	} else {
		for i := 0; i < n; i++ {
			rec := domain.TaskCompletionRecord{CompletedAt: now, Kind: kind}
			if err := l.store.RecordCompletion(ctx, rec); err != nil {
				return fmt.Errorf("op=ratelimiter.Record: %w", err)
			}
		}
	}

	for _, period := range []domain.RateLimitPeriod{domain.PeriodDay, domain.PeriodWeek, domain.PeriodMonth} {
		if l.limits[period] <= 0 {
			continue
		}
		windowStart, windowEnd := fixedWindowBounds(period, now)
		if err := l.store.IncrementWindow(ctx, period, int64(n), windowStart, windowEnd); err != nil {
			return fmt.Errorf("op=ratelimiter.Record: %w", err)
		}
	}
	return nil
}

// Usage returns the snapshot exposed to health probes and metrics.
func (l *Limiter) Usage(ctx context.Context) (map[domain.RateLimitPeriod]domain.TierUsage, error) {
	if !l.enabled {
		return map[domain.RateLimitPeriod]domain.TierUsage{}, nil
	}

	now := time.Now().UTC()
	usage := make(map[domain.RateLimitPeriod]domain.TierUsage)
	for _, period := range domain.AllPeriods {
		limit := l.limits[period]
		if limit <= 0 {
			continue
		}
		current, resetAt, err := l.tierUsage(ctx, period, now)
		if err != nil {
			return nil, fmt.Errorf("op=ratelimiter.Usage period=%s: %w", period, err)
		}
		remaining := limit - current
		if remaining < 0 {
			remaining = 0
		}
		usage[period] = domain.TierUsage{Current: current, Limit: limit, Remaining: remaining, ResetAt: resetAt}
	}
	return usage, nil
}

// Prune deletes completion records older than 35 days.
func (l *Limiter) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -35)
	n, err := l.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=ratelimiter.Prune: %w", err)
	}
	return n, nil
}

func (l *Limiter) tierUsage(ctx context.Context, period domain.RateLimitPeriod, now time.Time) (int64, time.Time, error) {
	if period == domain.PeriodMinute || period == domain.PeriodHour {
		current, resetAt := l.inMemoryUsage(period, now)
		return current, resetAt, nil
	}

	windowStart, windowEnd := windowBounds(l.strategy, period, now)
	if l.strategy == config.StrategyRolling {
		count, err := l.store.CountCompletionsInRange(ctx, windowStart, now)
		return count, windowEnd, err
	}
	count, err := l.store.WindowCount(ctx, period, windowStart, windowEnd)
	return count, windowEnd, err
}

func (l *Limiter) inMemoryUsage(period domain.RateLimitPeriod, now time.Time) (int64, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart, windowEnd := fixedWindowBounds(period, now)
	switch period {
	case domain.PeriodMinute:
		if windowStart.After(l.minuteWindowStart) {
			l.minuteCount = 0
			l.minuteWindowStart = windowStart
		}
		return l.minuteCount, windowEnd
	case domain.PeriodHour:
		if windowStart.After(l.hourWindowStart) {
			l.hourCount = 0
			l.hourWindowStart = windowStart
		}
		return l.hourCount, windowEnd
	default:
		return 0, windowEnd
	}
}
