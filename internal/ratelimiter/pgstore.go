package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// pgStore is the durable store backend selected when rate_limit_storage_path
// is a postgres:// or postgresql:// DSN. Schema matches spec §6 exactly:
// rate_limits(period PK, count, window_start, window_end, updated_at) and
// task_completions(id PK autoincrement, completed_at, kind, task_id?).
type pgStore struct {
	pool *pgxpool.Pool
}

// newPGStore connects to dsn and ensures the schema exists.
func newPGStore(ctx context.Context, dsn string) (*pgStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=ratelimiter.newPGStore parse dsn: %w", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=ratelimiter.newPGStore connect: %w", err)
	}

	s := &pgStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *pgStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rate_limits (
			period TEXT PRIMARY KEY,
			count BIGINT NOT NULL DEFAULT 0,
			window_start TIMESTAMPTZ NOT NULL,
			window_end TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS task_completions (
			id BIGSERIAL PRIMARY KEY,
			completed_at TIMESTAMPTZ NOT NULL,
			kind TEXT NOT NULL,
			task_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_task_completions_completed_at ON task_completions(completed_at);
		CREATE INDEX IF NOT EXISTS idx_rate_limits_period ON rate_limits(period);
	`)
	if err != nil {
		return fmt.Errorf("op=ratelimiter.pgStore.migrate: %w", err)
	}
	return nil
}

func (s *pgStore) WindowCount(ctx context.Context, period domain.RateLimitPeriod, windowStart, windowEnd time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count FROM rate_limits
		WHERE period = $1 AND window_start = $2 AND window_end = $3
	`, string(period), windowStart, windowEnd).Scan(&count)
	if err == nil {
		return count, nil
	}

	_, insErr := s.pool.Exec(ctx, `
		INSERT INTO rate_limits (period, count, window_start, window_end, updated_at)
		VALUES ($1, 0, $2, $3, now())
		ON CONFLICT (period) DO UPDATE
		SET count = 0, window_start = EXCLUDED.window_start, window_end = EXCLUDED.window_end, updated_at = now()
		WHERE rate_limits.window_start != EXCLUDED.window_start OR rate_limits.window_end != EXCLUDED.window_end
	`, string(period), windowStart, windowEnd)
	if insErr != nil {
		return 0, fmt.Errorf("op=ratelimiter.pgStore.WindowCount: %w", insErr)
	}
	return 0, nil
}

func (s *pgStore) IncrementWindow(ctx context.Context, period domain.RateLimitPeriod, n int64, windowStart, windowEnd time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rate_limits (period, count, window_start, window_end, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (period) DO UPDATE SET
			count = CASE
				WHEN rate_limits.window_start = EXCLUDED.window_start AND rate_limits.window_end = EXCLUDED.window_end
				THEN rate_limits.count + EXCLUDED.count
				ELSE EXCLUDED.count
			END,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			updated_at = now()
	`, string(period), n, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("op=ratelimiter.pgStore.IncrementWindow: %w", err)
	}
	return nil
}

func (s *pgStore) CountCompletionsInRange(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM task_completions WHERE completed_at >= $1 AND completed_at <= $2
	`, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("op=ratelimiter.pgStore.CountCompletionsInRange: %w", err)
	}
	return count, nil
}

func (s *pgStore) RecordCompletion(ctx context.Context, rec domain.TaskCompletionRecord) error {
	var taskID any
	if rec.TaskID != "" {
		taskID = rec.TaskID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_completions (completed_at, kind, task_id) VALUES ($1, $2, $3)
	`, rec.CompletedAt, string(rec.Kind), taskID)
	if err != nil {
		return fmt.Errorf("op=ratelimiter.pgStore.RecordCompletion: %w", err)
	}
	return nil
}

func (s *pgStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM task_completions WHERE completed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("op=ratelimiter.pgStore.Prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}
