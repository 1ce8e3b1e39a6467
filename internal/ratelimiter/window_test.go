package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

func TestFixedWindowBounds_Minute(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 37, 52, 123, time.UTC)
	start, end := fixedWindowBounds(domain.PeriodMinute, now)
	assert.Equal(t, time.Date(2026, 7, 30, 14, 37, 0, 0, time.UTC), start)
	assert.Equal(t, start.Add(time.Minute), end)
}

func TestFixedWindowBounds_Week_MondayAligned(t *testing.T) {
	// 2026-07-30 is a Thursday.
	now := time.Date(2026, 7, 30, 14, 37, 0, 0, time.UTC)
	start, end := fixedWindowBounds(domain.PeriodWeek, now)
	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start.AddDate(0, 0, 7), end)
}

func TestFixedWindowBounds_Week_OnMondayItself(t *testing.T) {
	now := time.Date(2026, 7, 27, 1, 0, 0, 0, time.UTC) // a Monday
	start, _ := fixedWindowBounds(domain.PeriodWeek, now)
	assert.Equal(t, time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC), start)
}

func TestFixedWindowBounds_Month_RollsYearInDecember(t *testing.T) {
	now := time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)
	start, end := fixedWindowBounds(domain.PeriodMonth, now)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestWindowBounds_RollingIsTrailingPeriod(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 37, 0, 0, time.UTC)
	start, end := windowBoundsForTest(now)
	assert.Equal(t, now.Add(-time.Hour), start)
	assert.Equal(t, now, end)
}

func windowBoundsForTest(now time.Time) (time.Time, time.Time) {
	return windowBounds("rolling", domain.PeriodHour, now)
}
