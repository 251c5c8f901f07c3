package schedule

import (
	"context"
	"time"

	"github.com/gbalchidi/family-emotions-app/internal/service"
)

// 默认 job 的 ID，日志与指标按这些 ID 区分
const (
	JobScheduleDailyCheckins = "schedule_daily_checkins"
	JobSendPendingCheckins   = "send_pending_checkins"
	JobGenerateWeeklyReports = "generate_weekly_reports"
	JobCleanupOldData        = "cleanup_old_data"
)

// Dispatcher 把到期任务投递到消息队列
type Dispatcher interface {
	DispatchPending(ctx context.Context) (int, error)
}

// RegisterDefaultJobs 注册四个常驻 job：
// 每日排期、到期派发、周报生成、过期数据清理。
func RegisterDefaultJobs(s *Scheduler, checkins *service.CheckinService, reports *service.ReportService, dispatcher Dispatcher) error {
	jobs := []Job{
		{
			ID:           JobScheduleDailyCheckins,
			Trigger:      DailyTrigger{Hour: 8, Minute: 0},
			MisfireGrace: 5 * time.Minute,
			Handler: func(ctx context.Context) error {
				_, err := checkins.ScheduleDailyForAllActive(ctx, time.Now().UTC())
				return err
			},
		},
		{
			ID:           JobSendPendingCheckins,
			Trigger:      IntervalTrigger{Every: 30 * time.Minute},
			MisfireGrace: 10 * time.Minute,
			Handler: func(ctx context.Context) error {
				_, err := dispatcher.DispatchPending(ctx)
				return err
			},
		},
		{
			ID:           JobGenerateWeeklyReports,
			Trigger:      WeeklyTrigger{Weekday: time.Monday, Hour: 9, Minute: 0},
			MisfireGrace: time.Hour,
			Handler: func(ctx context.Context) error {
				_, err := reports.GenerateForAllActive(ctx, time.Now().UTC())
				return err
			},
		},
		{
			ID:           JobCleanupOldData,
			Trigger:      WeeklyTrigger{Weekday: time.Sunday, Hour: 2, Minute: 0},
			MisfireGrace: time.Hour,
			Handler: func(ctx context.Context) error {
				_, _, err := checkins.PurgeOld(ctx)
				return err
			},
		},
	}

	for _, job := range jobs {
		if err := s.AddJob(job); err != nil {
			return err
		}
	}
	return nil
}
