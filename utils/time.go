package utils

import (
	"fmt"
	"time"
)

// ParseClock 解析 "HH:MM" 格式的时刻
func ParseClock(clock string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid clock %q: out of range", clock)
	}
	return hour, minute, nil
}

// NextOccurrence 返回 clock（UTC）在 now 之后的下一次出现：
// 若今天的该时刻尚未过去则取今天，否则顺延到明天。
func NextOccurrence(now time.Time, clock string) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// WeekStartUTC 返回 t 所在周的周一 00:00 UTC
func WeekStartUTC(t time.Time) time.Time {
	t = t.UTC()
	// time.Weekday 以周日为 0
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -daysSinceMonday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// NextUTCMidnight 返回 t 之后的下一个 UTC 零点，用户每日额度在此刻重置
func NextUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// SameUTCDate 判断两个时刻是否落在同一个 UTC 日期
func SameUTCDate(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateKeyUTC 返回 t 的 UTC 日期串，用作额度/去重的 key 片段
func DateKeyUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
