package ratelimiter

import (
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// periodSeconds is the rolling-window duration for each tier.
var periodSeconds = map[domain.RateLimitPeriod]int64{
	domain.PeriodMinute: 60,
	domain.PeriodHour:   3600,
	domain.PeriodDay:    86400,
	domain.PeriodWeek:   604800,
	domain.PeriodMonth:  2592000, // 30 days
}

// windowBounds returns the [start, end) boundaries for period at now, given
// strategy. Fixed windows are calendar-aligned (§4.2); rolling windows are
// the trailing period_seconds(period) ending at now.
func windowBounds(strategy config.RateLimitStrategy, period domain.RateLimitPeriod, now time.Time) (time.Time, time.Time) {
	if strategy == config.StrategyRolling {
		duration := time.Duration(periodSeconds[period]) * time.Second
		return now.Add(-duration), now
	}
	return fixedWindowBounds(period, now)
}

func fixedWindowBounds(period domain.RateLimitPeriod, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch period {
	case domain.PeriodMinute:
		start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, time.UTC)
		return start, start.Add(time.Minute)
	case domain.PeriodHour:
		start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)
		return start, start.Add(time.Hour)
	case domain.PeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case domain.PeriodWeek:
		// time.Weekday: Sunday=0 .. Saturday=6; we want Monday=0 .. Sunday=6.
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		start := day.AddDate(0, 0, -daysSinceMonday)
		return start, start.AddDate(0, 0, 7)
	case domain.PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return now, now
	}
}
