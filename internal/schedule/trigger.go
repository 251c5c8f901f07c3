package schedule

import "time"

// Trigger 计算任务在 after 之后的下一次触发时刻（UTC）
type Trigger interface {
	Next(after time.Time) time.Time
}

// IntervalTrigger 固定间隔触发
type IntervalTrigger struct {
	Every time.Duration
}

func (t IntervalTrigger) Next(after time.Time) time.Time {
	if t.Every <= 0 {
		return time.Time{}
	}
	return after.UTC().Add(t.Every)
}

// DailyTrigger 每天固定时刻（UTC）触发
type DailyTrigger struct {
	Hour   int
	Minute int
}

func (t DailyTrigger) Next(after time.Time) time.Time {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return time.Time{}
	}
	after = after.UTC()
	next := time.Date(after.Year(), after.Month(), after.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// WeeklyTrigger 每周固定星期和时刻（UTC）触发
type WeeklyTrigger struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

func (t WeeklyTrigger) Next(after time.Time) time.Time {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return time.Time{}
	}
	after = after.UTC()
	next := time.Date(after.Year(), after.Month(), after.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
	daysAhead := (int(t.Weekday) - int(after.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, daysAhead)
	if !next.After(after) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}
