package cache

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/storage/redis"
	"github.com/gbalchidi/family-emotions-app/utils"
)

const (
	subjectQuotaPrefix   = "quota:daily"
	providerMinutePrefix = "provider:minute"
	providerDayPrefix    = "provider:day"
	providerMinuteWindow = time.Minute
)

// SubjectQuota 按用户的每日配额计数器，UTC 零点重置。
// Redis 故障时放行（fail-open），宁可多放几次也不阻塞业务。
type SubjectQuota struct {
	limit int
}

func NewSubjectQuota(limit int) *SubjectQuota {
	return &SubjectQuota{limit: limit}
}

// Consume 消耗一次配额。超限时返回 (false, 距下次重置的时长)。
func (q *SubjectQuota) Consume(ctx context.Context, scope string, subjectID int64) (bool, time.Duration) {
	now := time.Now().UTC()
	key := redis.Key(subjectQuotaPrefix, scope, utils.DateKeyUTC(now), formatID(subjectID))

	count, err := redis.Client().Incr(ctx, key).Result()
	if err != nil {
		logger.Logger.Warn("Subject quota check failed, allowing request",
			zap.String("scope", scope),
			zap.Int64("subject_id", subjectID),
			zap.Error(err),
		)
		return true, 0
	}

	if count == 1 {
		// 键随日期滚动，过期只是兜底清理
		if err := redis.Client().ExpireAt(ctx, key, utils.NextUTCMidnight(now)).Err(); err != nil {
			logger.Logger.Warn("Failed to set quota key expiry", zap.String("key", key), zap.Error(err))
		}
	}

	if int(count) > q.limit {
		return false, time.Until(utils.NextUTCMidnight(now))
	}
	return true, 0
}

// Refund 归还一次配额。只在请求没有交付任何结果时调用，
// 让失败的调用不吃掉用户当天的额度。
func (q *SubjectQuota) Refund(ctx context.Context, scope string, subjectID int64) {
	now := time.Now().UTC()
	key := redis.Key(subjectQuotaPrefix, scope, utils.DateKeyUTC(now), formatID(subjectID))

	if err := redis.Client().Decr(ctx, key).Err(); err != nil {
		logger.Logger.Warn("Failed to refund quota",
			zap.String("scope", scope),
			zap.Int64("subject_id", subjectID),
			zap.Error(err),
		)
	}
}

// Remaining 返回当日剩余配额
func (q *SubjectQuota) Remaining(ctx context.Context, scope string, subjectID int64) int {
	now := time.Now().UTC()
	key := redis.Key(subjectQuotaPrefix, scope, utils.DateKeyUTC(now), formatID(subjectID))

	count, err := redis.Client().Get(ctx, key).Int()
	if err != nil {
		return q.limit
	}
	remaining := q.limit - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ProviderLimiter 对外部 provider 的全局限流：每分钟 + 每天两个窗口。
// 和 SubjectQuota 一样 fail-open。
type ProviderLimiter struct {
	perMinute int
	perDay    int
}

func NewProviderLimiter(perMinute, perDay int) *ProviderLimiter {
	return &ProviderLimiter{perMinute: perMinute, perDay: perDay}
}

// Acquire 占用一次调用额度。拒绝时返回 (false, 建议的重试等待时长)。
func (l *ProviderLimiter) Acquire(ctx context.Context) (bool, time.Duration) {
	now := time.Now().UTC()
	minuteKey := redis.Key(providerMinutePrefix, now.Format("2006-01-02T15:04"))
	dayKey := redis.Key(providerDayPrefix, utils.DateKeyUTC(now))

	minuteCount, err := redis.Client().Incr(ctx, minuteKey).Result()
	if err != nil {
		logger.Logger.Warn("Provider minute limiter unavailable, allowing request", zap.Error(err))
		return true, 0
	}
	if minuteCount == 1 {
		redis.Client().Expire(ctx, minuteKey, 2*providerMinuteWindow)
	}

	dayCount, err := redis.Client().Incr(ctx, dayKey).Result()
	if err != nil {
		logger.Logger.Warn("Provider day limiter unavailable, allowing request", zap.Error(err))
		return true, 0
	}
	if dayCount == 1 {
		redis.Client().ExpireAt(ctx, dayKey, utils.NextUTCMidnight(now))
	}

	if int(dayCount) > l.perDay {
		return false, time.Until(utils.NextUTCMidnight(now))
	}
	if int(minuteCount) > l.perMinute {
		next := now.Truncate(time.Minute).Add(time.Minute)
		return false, time.Until(next)
	}
	return true, 0
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
