package cache

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/storage/redis"
)

const (
	dispatchedMarkPrefix = "checkin:dispatched"
	messageMarkPrefix    = "mq:processed"

	dispatchedMarkTTL = 24 * time.Hour
	messageMarkTTL    = 24 * time.Hour
)

// MarkTaskDispatched 标记任务已派发过，防止调度器重跑时重复投递
func MarkTaskDispatched(ctx context.Context, taskID int64) {
	key := redis.Key(dispatchedMarkPrefix, strconv.FormatInt(taskID, 10))
	if err := redis.Client().Set(ctx, key, "1", dispatchedMarkTTL).Err(); err != nil {
		logger.Logger.Warn("Failed to mark task dispatched",
			zap.Int64("task_id", taskID),
			zap.Error(err),
		)
	}
}

// IsTaskDispatched 检查任务是否已派发。Redis 出错时按未派发处理，
// 重复投递由消费端的消息幂等标记兜底。
func IsTaskDispatched(ctx context.Context, taskID int64) bool {
	key := redis.Key(dispatchedMarkPrefix, strconv.FormatInt(taskID, 10))
	exists, err := redis.Client().Exists(ctx, key).Result()
	if err != nil {
		logger.Logger.Warn("Failed to check dispatch mark",
			zap.Int64("task_id", taskID),
			zap.Error(err),
		)
		return false
	}
	return exists > 0
}

// TryMarkMessageProcessing 消费端幂等标记：SETNX 成功说明是首次处理。
// Redis 出错时返回 true，让消息至少被处理一次。
func TryMarkMessageProcessing(ctx context.Context, messageID string) bool {
	key := redis.Key(messageMarkPrefix, messageID)
	ok, err := redis.Client().SetNX(ctx, key, "1", messageMarkTTL).Result()
	if err != nil {
		logger.Logger.Warn("Failed to set message idempotency mark",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return true
	}
	return ok
}

// ClearMessageMark 处理失败时清除标记，让重投的消息能再次被处理
func ClearMessageMark(ctx context.Context, messageID string) {
	key := redis.Key(messageMarkPrefix, messageID)
	if err := redis.Client().Del(ctx, key).Err(); err != nil {
		logger.Logger.Warn("Failed to clear message idempotency mark",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
