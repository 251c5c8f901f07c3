package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/metrics"
)

// Job 一个受调度的任务。MisfireGrace 是允许的最大迟触发：
// 调度器醒来发现超过宽限的触发直接放弃该次，不补跑。
type Job struct {
	ID           string
	Trigger      Trigger
	MisfireGrace time.Duration
	Handler      func(ctx context.Context) error
}

// Scheduler 进程内调度器。所有 job 的触发判定由单一协调循环完成，
// running 表只有这个循环读写，同一 job 的上一轮未结束时本轮直接跳过。
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]Job

	wakeCh chan struct{}
	doneCh chan string

	stopOnce    sync.Once
	cancel      context.CancelFunc
	loopDone    chan struct{}
	stopTimeout time.Duration
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		jobs:        make(map[string]Job),
		wakeCh:      make(chan struct{}, 1),
		doneCh:      make(chan string, 128),
		loopDone:    make(chan struct{}),
		stopTimeout: 30 * time.Second,
	}
}

// AddJob 注册或替换一个 job。重复 ID 直接替换旧定义。
// 定义不合法只会在这里报错，运行期的 handler 错误不会让调度器停摆。
func (s *Scheduler) AddJob(job Job) error {
	if job.ID == "" {
		return errors.SchedulingInvalid.WithDetails("job id must not be empty")
	}
	if job.Trigger == nil {
		return errors.SchedulingInvalid.WithDetails("job trigger must not be nil")
	}
	if job.Handler == nil {
		return errors.SchedulingInvalid.WithDetails("job handler must not be nil")
	}
	if job.MisfireGrace < 0 {
		return errors.SchedulingInvalid.WithDetails("misfire grace must not be negative")
	}
	now := time.Now().UTC()
	if next := job.Trigger.Next(now); next.IsZero() || !next.After(now) {
		return errors.SchedulingInvalid.WithDetails("trigger does not produce a future fire time")
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.wake()
	logger.Logger.Info("Job registered", zap.String("job_id", job.ID))
	return nil
}

// RemoveJob 注销 job，重复移除是 no-op
func (s *Scheduler) RemoveJob(id string) {
	s.mu.Lock()
	_, existed := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()

	if existed {
		s.wake()
		logger.Logger.Info("Job removed", zap.String("job_id", id))
	}
}

// Start 启动协调循环，阻塞到 ctx 取消为止
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.loopDone)

	// nextFire 和 running 只属于这个循环
	nextFire := make(map[string]time.Time)
	running := make(map[string]bool)

	logger.Logger.Info("Scheduler started")

	for {
		now := time.Now().UTC()

		s.mu.Lock()
		jobs := make(map[string]Job, len(s.jobs))
		for id, job := range s.jobs {
			jobs[id] = job
		}
		s.mu.Unlock()

		// 清掉已注销 job 的触发记录
		for id := range nextFire {
			if _, ok := jobs[id]; !ok {
				delete(nextFire, id)
			}
		}

		for id, job := range jobs {
			intended, ok := nextFire[id]
			if !ok {
				nextFire[id] = job.Trigger.Next(now)
				continue
			}
			if intended.After(now) {
				continue
			}

			// 触发已到期
			switch {
			case now.Sub(intended) > job.MisfireGrace:
				// 迟到超过宽限：放弃该次触发
				logger.Logger.Warn("Job occurrence dropped beyond misfire grace",
					zap.String("job_id", id),
					zap.Time("intended", intended),
					zap.Duration("late_by", now.Sub(intended)),
				)
				metrics.RecordJobMisfire(ctx, id)
			case running[id]:
				// 上一轮还在跑：跳过本次
				logger.Logger.Warn("Job occurrence skipped, previous run still active",
					zap.String("job_id", id),
					zap.Time("intended", intended),
				)
				metrics.RecordJobOverlapSkip(ctx, id)
			default:
				running[id] = true
				go s.runJob(ctx, job)
			}
			nextFire[id] = job.Trigger.Next(now)
		}

		timer := time.NewTimer(sleepUntil(nextFire, now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.drainRunning(running)
			return
		case id := <-s.doneCh:
			timer.Stop()
			delete(running, id)
		case <-s.wakeCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Stop 取消循环并在有限时间内等待进行中的 handler 收尾
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		select {
		case <-s.loopDone:
		case <-time.After(s.stopTimeout):
			logger.Logger.Error("Scheduler loop did not stop within timeout")
		}
	})
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Logger.Error("Job handler panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
			)
			metrics.RecordJobRun(ctx, job.ID, false)
		}
		// doneCh 有缓冲，循环已退出时也不会卡住 handler
		select {
		case s.doneCh <- job.ID:
		default:
		}
	}()

	started := time.Now()
	err := job.Handler(ctx)
	elapsed := time.Since(started)

	if err != nil {
		logger.Logger.Error("Job run failed",
			zap.String("job_id", job.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		metrics.RecordJobRun(ctx, job.ID, false)
		return
	}
	logger.Logger.Info("Job run finished",
		zap.String("job_id", job.ID),
		zap.Duration("elapsed", elapsed),
	)
	metrics.RecordJobRun(ctx, job.ID, true)
}

// drainRunning 停机时等待进行中的 handler，超时则放弃并记录
func (s *Scheduler) drainRunning(running map[string]bool) {
	deadline := time.After(s.stopTimeout)
	for len(running) > 0 {
		select {
		case id := <-s.doneCh:
			delete(running, id)
		case <-deadline:
			for id := range running {
				logger.Logger.Error("Abandoning job still running at shutdown",
					zap.String("job_id", id),
				)
			}
			return
		}
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// sleepUntil 计算距最近一次触发的睡眠时长，空表时定期醒来看一眼
func sleepUntil(nextFire map[string]time.Time, now time.Time) time.Duration {
	const idleWake = time.Minute

	sleep := idleWake
	for _, at := range nextFire {
		if d := at.Sub(now); d < sleep {
			sleep = d
		}
	}
	if sleep < 10*time.Millisecond {
		sleep = 10 * time.Millisecond
	}
	return sleep
}
