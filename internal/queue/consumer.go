package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/internal/cache"
	"github.com/gbalchidi/family-emotions-app/internal/model"
	"github.com/gbalchidi/family-emotions-app/internal/notify"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/storage/mq"
)

// StartAllConsumers 启动两个队列的消费循环，每个队列一个 goroutine。
// 消费失败的消息 nack 重新入队，幂等标记会先被清掉让重试生效。
func StartAllConsumers(ctx context.Context, notifier notify.Notifier) {
	go consumeLoop(ctx, mq.ConsumeOptions{
		Queue:         mq.CheckinDispatchQueue,
		ConsumerTag:   "checkin-dispatch-worker",
		PrefetchCount: 10,
		Handler:       checkinDispatchHandler(ctx, notifier),
	})

	go consumeLoop(ctx, mq.ConsumeOptions{
		Queue:         mq.ReportReadyQueue,
		ConsumerTag:   "report-ready-worker",
		PrefetchCount: 10,
		Handler:       reportReadyHandler(ctx, notifier),
	})
}

// consumeLoop Consume 因连接断开返回后重试，直到 ctx 取消
func consumeLoop(ctx context.Context, opts mq.ConsumeOptions) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := mq.Consume(opts); err != nil {
			logger.Logger.Error("Consumer stopped, will restart",
				zap.String("queue", opts.Queue),
				zap.Error(err),
			)
		}
	}
}

func checkinDispatchHandler(ctx context.Context, notifier notify.Notifier) mq.MessageHandler {
	return func(body []byte) error {
		var msg model.CheckinDispatchMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			// 坏消息重试也救不回来，记日志后吞掉
			logger.Logger.Error("Dropping malformed check-in dispatch message", zap.Error(err))
			return nil
		}

		if !cache.TryMarkMessageProcessing(ctx, msg.MessageID) {
			logger.Logger.Info("Skipping duplicate check-in dispatch",
				zap.String("message_id", msg.MessageID),
				zap.Int64("task_id", msg.TaskID),
			)
			return nil
		}

		if err := notifier.SendCheckin(ctx, &msg); err != nil {
			cache.ClearMessageMark(ctx, msg.MessageID)
			return fmt.Errorf("failed to deliver check-in %d: %w", msg.TaskID, err)
		}

		logger.Logger.Info("Check-in delivered",
			zap.String("message_id", msg.MessageID),
			zap.Int64("task_id", msg.TaskID),
			zap.Int64("user_id", msg.UserID),
		)
		return nil
	}
}

func reportReadyHandler(ctx context.Context, notifier notify.Notifier) mq.MessageHandler {
	return func(body []byte) error {
		var msg model.ReportReadyMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			logger.Logger.Error("Dropping malformed report ready message", zap.Error(err))
			return nil
		}

		if !cache.TryMarkMessageProcessing(ctx, msg.MessageID) {
			logger.Logger.Info("Skipping duplicate report notification",
				zap.String("message_id", msg.MessageID),
				zap.Int64("report_id", msg.ReportID),
			)
			return nil
		}

		if err := notifier.SendReportReady(ctx, &msg); err != nil {
			cache.ClearMessageMark(ctx, msg.MessageID)
			return fmt.Errorf("failed to deliver report %d: %w", msg.ReportID, err)
		}

		logger.Logger.Info("Report notification delivered",
			zap.String("message_id", msg.MessageID),
			zap.Int64("report_id", msg.ReportID),
		)
		return nil
	}
}
