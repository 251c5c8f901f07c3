package utils

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		clock   string
		hour    int
		minute  int
		wantErr bool
	}{
		{"09:00", 9, 0, false},
		{"18:30", 18, 30, false},
		{"00:00", 0, 0, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"-1:00", 0, 0, true},
		{"abc", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		hour, minute, err := ParseClock(tt.clock)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error, got %d:%d", tt.clock, hour, minute)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): unexpected error: %v", tt.clock, err)
			continue
		}
		if hour != tt.hour || minute != tt.minute {
			t.Errorf("ParseClock(%q) = %d:%d, want %d:%d", tt.clock, hour, minute, tt.hour, tt.minute)
		}
	}
}

func TestNextOccurrence(t *testing.T) {
	// 2026-08-17 是周一
	now := time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)

	// 今天的时刻还没到，取今天
	next, err := NextOccurrence(now, "18:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 8, 17, 18, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextOccurrence same day = %v, want %v", next, want)
	}

	// 今天的时刻已经过去，顺延到明天
	next, err = NextOccurrence(now, "09:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = time.Date(2026, 8, 18, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextOccurrence next day = %v, want %v", next, want)
	}

	// 恰好等于当前时刻也算过去
	atExact := time.Date(2026, 8, 17, 9, 0, 0, 0, time.UTC)
	next, err = NextOccurrence(atExact, "09:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(want) {
		t.Errorf("NextOccurrence at exact time = %v, want %v", next, want)
	}

	if _, err := NextOccurrence(now, "25:00"); err == nil {
		t.Error("expected error for invalid clock")
	}
}

func TestWeekStartUTC(t *testing.T) {
	monday := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Time
	}{
		{"monday itself", time.Date(2026, 8, 17, 15, 30, 0, 0, time.UTC)},
		{"midweek", time.Date(2026, 8, 19, 8, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2026, 8, 23, 23, 59, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := WeekStartUTC(tt.in); !got.Equal(monday) {
			t.Errorf("%s: WeekStartUTC(%v) = %v, want %v", tt.name, tt.in, got, monday)
		}
	}

	// 上一周的周日归上一周
	prevSunday := time.Date(2026, 8, 16, 12, 0, 0, 0, time.UTC)
	prevMonday := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	if got := WeekStartUTC(prevSunday); !got.Equal(prevMonday) {
		t.Errorf("WeekStartUTC(%v) = %v, want %v", prevSunday, got, prevMonday)
	}
}

func TestNextUTCMidnight(t *testing.T) {
	in := time.Date(2026, 8, 17, 23, 59, 59, 0, time.UTC)
	want := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	if got := NextUTCMidnight(in); !got.Equal(want) {
		t.Errorf("NextUTCMidnight(%v) = %v, want %v", in, got, want)
	}

	// 零点本身也推到下一天
	atMidnight := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	want = time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	if got := NextUTCMidnight(atMidnight); !got.Equal(want) {
		t.Errorf("NextUTCMidnight(%v) = %v, want %v", atMidnight, got, want)
	}

	// 非 UTC 时区按 UTC 折算
	loc := time.FixedZone("UTC+8", 8*3600)
	inLocal := time.Date(2026, 8, 18, 6, 0, 0, 0, loc) // UTC 2026-08-17 22:00
	if got := NextUTCMidnight(inLocal); !got.Equal(want) {
		t.Errorf("NextUTCMidnight(%v) = %v, want %v", inLocal, got, want)
	}
}

func TestSameUTCDate(t *testing.T) {
	a := time.Date(2026, 8, 17, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 8, 17, 23, 59, 59, 0, time.UTC)
	if !SameUTCDate(a, b) {
		t.Error("expected same UTC date")
	}

	c := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	if SameUTCDate(b, c) {
		t.Error("expected different UTC dates")
	}

	// 本地时区跨天，UTC 同一天
	loc := time.FixedZone("UTC+8", 8*3600)
	d := time.Date(2026, 8, 18, 7, 0, 0, 0, loc) // UTC 2026-08-17 23:00
	if !SameUTCDate(a, d) {
		t.Error("expected same UTC date across zones")
	}
}

func TestDateKeyUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	in := time.Date(2026, 8, 18, 7, 0, 0, 0, loc)
	if got := DateKeyUTC(in); got != "2026-08-17" {
		t.Errorf("DateKeyUTC = %q, want %q", got, "2026-08-17")
	}
}
