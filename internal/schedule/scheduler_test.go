package schedule

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gbalchidi/family-emotions-app/pkg/errors"
)

func TestTriggerNextAlwaysFuture(t *testing.T) {
	now := time.Date(2026, 8, 17, 12, 30, 0, 0, time.UTC)

	triggers := []Trigger{
		IntervalTrigger{Every: time.Minute},
		DailyTrigger{Hour: 8, Minute: 0},
		DailyTrigger{Hour: 23, Minute: 59},
		WeeklyTrigger{Weekday: time.Monday, Hour: 9, Minute: 0},
		WeeklyTrigger{Weekday: time.Sunday, Hour: 2, Minute: 0},
	}
	for _, trigger := range triggers {
		next := trigger.Next(now)
		if !next.After(now) {
			t.Errorf("%T: next %v not after %v", trigger, next, now)
		}
		// 连续取两次必须严格递增
		if second := trigger.Next(next); !second.After(next) {
			t.Errorf("%T: second fire %v not after first %v", trigger, second, next)
		}
	}
}

func TestDailyTriggerSameDay(t *testing.T) {
	now := time.Date(2026, 8, 17, 6, 0, 0, 0, time.UTC)
	next := DailyTrigger{Hour: 8, Minute: 0}.Next(now)
	want := time.Date(2026, 8, 17, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestWeeklyTriggerSkipsToNextWeek(t *testing.T) {
	// 2026-08-17 是周一，09:00 已过
	now := time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)
	next := WeeklyTrigger{Weekday: time.Monday, Hour: 9, Minute: 0}.Next(now)
	want := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestAddJobValidation(t *testing.T) {
	s := NewScheduler()
	handler := func(ctx context.Context) error { return nil }

	cases := []struct {
		name string
		job  Job
	}{
		{"empty id", Job{Trigger: IntervalTrigger{Every: time.Minute}, Handler: handler}},
		{"nil trigger", Job{ID: "a", Handler: handler}},
		{"nil handler", Job{ID: "a", Trigger: IntervalTrigger{Every: time.Minute}}},
		{"negative grace", Job{ID: "a", Trigger: IntervalTrigger{Every: time.Minute}, Handler: handler, MisfireGrace: -time.Second}},
		{"dead trigger", Job{ID: "a", Trigger: IntervalTrigger{Every: 0}, Handler: handler}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.AddJob(tc.job); !stderrors.Is(err, errors.SchedulingInvalid) {
				t.Fatalf("expected SchedulingInvalid, got %v", err)
			}
		})
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler()
	s.stopTimeout = 2 * time.Second

	var runs atomic.Int32
	err := s.AddJob(Job{
		ID:           "tick",
		Trigger:      IntervalTrigger{Every: 50 * time.Millisecond},
		MisfireGrace: time.Second,
		Handler: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(300 * time.Millisecond)
	cancel()
	s.Stop()

	if runs.Load() < 2 {
		t.Errorf("job ran %d times, want at least 2", runs.Load())
	}
}

func TestSchedulerOverlapSkip(t *testing.T) {
	s := NewScheduler()
	s.stopTimeout = 2 * time.Second

	var starts atomic.Int32
	block := make(chan struct{})
	err := s.AddJob(Job{
		ID:           "slow",
		Trigger:      IntervalTrigger{Every: 50 * time.Millisecond},
		MisfireGrace: time.Minute,
		Handler: func(ctx context.Context) error {
			starts.Add(1)
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	// 第一次触发后 handler 一直阻塞，后续触发都应被跳过
	time.Sleep(400 * time.Millisecond)
	if got := starts.Load(); got != 1 {
		t.Errorf("overlapping runs started %d times, want exactly 1", got)
	}

	close(block)
	cancel()
	s.Stop()
}

func TestSchedulerReplaceJobByID(t *testing.T) {
	s := NewScheduler()
	s.stopTimeout = 2 * time.Second

	var firstRuns, secondRuns atomic.Int32
	job := Job{
		ID:           "replaced",
		Trigger:      IntervalTrigger{Every: 50 * time.Millisecond},
		MisfireGrace: time.Minute,
		Handler: func(ctx context.Context) error {
			firstRuns.Add(1)
			return nil
		},
	}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("add job: %v", err)
	}

	// 同 ID 重注册：只有新定义生效
	job.Handler = func(ctx context.Context) error {
		secondRuns.Add(1)
		return nil
	}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("replace job: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(300 * time.Millisecond)
	cancel()
	s.Stop()

	if firstRuns.Load() != 0 {
		t.Errorf("replaced handler still ran %d times", firstRuns.Load())
	}
	if secondRuns.Load() == 0 {
		t.Error("replacement handler never ran")
	}
}

func TestSchedulerRemoveJob(t *testing.T) {
	s := NewScheduler()
	s.stopTimeout = 2 * time.Second

	var runs atomic.Int32
	err := s.AddJob(Job{
		ID:           "removed",
		Trigger:      IntervalTrigger{Every: 50 * time.Millisecond},
		MisfireGrace: time.Minute,
		Handler: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	s.RemoveJob("removed")
	s.RemoveJob("removed") // 重复移除是 no-op

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(200 * time.Millisecond)
	cancel()
	s.Stop()

	if runs.Load() != 0 {
		t.Errorf("removed job ran %d times", runs.Load())
	}
}

func TestSchedulerJobErrorDoesNotStopOthers(t *testing.T) {
	s := NewScheduler()
	s.stopTimeout = 2 * time.Second

	var healthyRuns atomic.Int32
	if err := s.AddJob(Job{
		ID:           "failing",
		Trigger:      IntervalTrigger{Every: 50 * time.Millisecond},
		MisfireGrace: time.Minute,
		Handler: func(ctx context.Context) error {
			return errors.ExternalServiceFailed
		},
	}); err != nil {
		t.Fatalf("add failing job: %v", err)
	}
	if err := s.AddJob(Job{
		ID:           "healthy",
		Trigger:      IntervalTrigger{Every: 50 * time.Millisecond},
		MisfireGrace: time.Minute,
		Handler: func(ctx context.Context) error {
			healthyRuns.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("add healthy job: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(300 * time.Millisecond)
	cancel()
	s.Stop()

	if healthyRuns.Load() == 0 {
		t.Error("healthy job starved by failing sibling")
	}
}

func TestSchedulerStopWaitsForRunningJob(t *testing.T) {
	s := NewScheduler()
	s.stopTimeout = 2 * time.Second

	finished := make(chan struct{})
	if err := s.AddJob(Job{
		ID:           "slow-stop",
		Trigger:      IntervalTrigger{Every: 50 * time.Millisecond},
		MisfireGrace: time.Minute,
		Handler: func(ctx context.Context) error {
			time.Sleep(150 * time.Millisecond)
			close(finished)
			return nil
		},
	}); err != nil {
		t.Fatalf("add job: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	time.Sleep(80 * time.Millisecond) // handler 已经开跑
	cancel()
	s.Stop()

	select {
	case <-finished:
	default:
		t.Error("Stop returned before the running handler finished")
	}
}
