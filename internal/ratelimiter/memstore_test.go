package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

func TestMemStore_WindowCountCreatesThenPersists(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	count, err := s.WindowCount(ctx, domain.PeriodDay, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, s.IncrementWindow(ctx, domain.PeriodDay, 4, start, end))
	count, err = s.WindowCount(ctx, domain.PeriodDay, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestMemStore_IncrementWindowResetsOnNewBoundary(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	require.NoError(t, s.IncrementWindow(ctx, domain.PeriodDay, 10, start, end))

	nextStart := start.AddDate(0, 0, 1)
	nextEnd := nextStart.AddDate(0, 0, 1)
	require.NoError(t, s.IncrementWindow(ctx, domain.PeriodDay, 2, nextStart, nextEnd))

	count, err := s.WindowCount(ctx, domain.PeriodDay, nextStart, nextEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemStore_CountCompletionsInRangeAndPrune(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordCompletion(ctx, domain.TaskCompletionRecord{CompletedAt: now.Add(-48 * time.Hour), Kind: domain.KindTextEmbedding}))
	require.NoError(t, s.RecordCompletion(ctx, domain.TaskCompletionRecord{CompletedAt: now, Kind: domain.KindTextEmbedding}))

	count, err := s.CountCompletionsInRange(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	removed, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err = s.CountCompletionsInRange(ctx, now.Add(-72*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
