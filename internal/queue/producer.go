package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gbalchidi/family-emotions-app/internal/cache"
	"github.com/gbalchidi/family-emotions-app/internal/model"
	"github.com/gbalchidi/family-emotions-app/internal/model/dto"
	"github.com/gbalchidi/family-emotions-app/internal/service"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/metrics"
	"github.com/gbalchidi/family-emotions-app/pkg/snowflake"
	"github.com/gbalchidi/family-emotions-app/storage/mq"
)

// Producer 把到期的打卡任务和生成的周报投递到消息队列
type Producer struct {
	db       *gorm.DB
	checkins *service.CheckinService
}

func NewProducer(db *gorm.DB, checkins *service.CheckinService) *Producer {
	return &Producer{db: db, checkins: checkins}
}

// DispatchPending 派发所有到期未发送的打卡任务。
// Redis 派发标记保证调度重跑不重复投递，消费侧的消息幂等再兜一层。
func (p *Producer) DispatchPending(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	tasks, err := p.checkins.GetPending(ctx, now, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending check-ins: %w", err)
	}

	batchID := uuid.NewString()
	dispatched := 0

	for i := range tasks {
		task := &tasks[i]

		if cache.IsTaskDispatched(ctx, task.PublicID) {
			continue
		}

		msg, err := p.buildDispatchMessage(ctx, task, batchID)
		if err != nil {
			logger.Logger.Error("Failed to build dispatch message",
				zap.Int64("task_id", task.PublicID),
				zap.Error(err),
			)
			continue
		}

		if err := mq.PublishMessage(mq.DispatchExchange, mq.CheckinDispatchRoutingKey, msg); err != nil {
			logger.Logger.Error("Failed to publish check-in dispatch",
				zap.Int64("task_id", task.PublicID),
				zap.String("batch_id", batchID),
				zap.Error(err),
			)
			continue
		}

		cache.MarkTaskDispatched(ctx, task.PublicID)
		metrics.RecordCheckinDispatched(ctx)
		dispatched++
	}

	logger.Logger.Info("Pending check-in dispatch finished",
		zap.String("batch_id", batchID),
		zap.Int("pending", len(tasks)),
		zap.Int("dispatched", dispatched),
	)
	return dispatched, nil
}

// ReportReady 周报生成后通知消息端，实现 service.ReportPublisher
func (p *Producer) ReportReady(ctx context.Context, report *dto.ReportView) {
	id, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to generate message ID", zap.Error(err))
		return
	}

	msg := model.ReportReadyMessage{
		MessageID: fmt.Sprintf("report_%d", id),
		ReportID:  report.ReportID,
		UserID:    report.UserID,
		ChildID:   report.ChildID,
		WeekStart: report.WeekStart.Format(time.RFC3339),
	}

	if err := mq.PublishMessage(mq.DispatchExchange, mq.ReportReadyRoutingKey, msg); err != nil {
		logger.Logger.Error("Failed to publish report ready message",
			zap.Int64("report_id", report.ReportID),
			zap.Error(err),
		)
		return
	}

	logger.Logger.Info("Published report ready message",
		zap.String("message_id", msg.MessageID),
		zap.Int64("report_id", report.ReportID),
	)
}

func (p *Producer) buildDispatchMessage(ctx context.Context, task *model.CheckinTask, batchID string) (*model.CheckinDispatchMessage, error) {
	var user model.User
	if err := p.db.WithContext(ctx).Select("public_id").Where("id = ?", task.UserID).First(&user).Error; err != nil {
		return nil, err
	}

	var childPublicID int64
	if task.ChildID != 0 {
		var child model.Child
		if err := p.db.WithContext(ctx).Select("public_id").Where("id = ?", task.ChildID).First(&child).Error; err == nil {
			childPublicID = child.PublicID
		}
	}

	id, err := snowflake.NextID()
	if err != nil {
		return nil, err
	}

	return &model.CheckinDispatchMessage{
		MessageID:   fmt.Sprintf("checkin_%d", id),
		BatchID:     batchID,
		TaskID:      task.PublicID,
		UserID:      user.PublicID,
		ChildID:     childPublicID,
		Question:    task.Question,
		ScheduledAt: task.ScheduledAt.Format(time.RFC3339),
	}, nil
}
