package cache

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/internal/model"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/storage/redis"
)

const analysisResultPrefix = "analysis:result"

// AnalysisCache 按指纹缓存分析结果。缓存是建议性的：
// Redis 故障只会造成多余的 provider 调用，Get 一律降级为未命中。
type AnalysisCache struct {
	ttl time.Duration
}

func NewAnalysisCache(ttl time.Duration) *AnalysisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AnalysisCache{ttl: ttl}
}

// Get 查询指纹对应的缓存结果，未命中或 Redis 出错返回 (nil, false)
func (c *AnalysisCache) Get(ctx context.Context, fingerprint string) (*model.AnalysisPayload, bool) {
	key := redis.Key(analysisResultPrefix, fingerprint)

	data, err := redis.Client().Get(ctx, key).Result()
	if err != nil {
		if err != goredis.Nil {
			logger.Logger.Warn("Analysis cache get failed, treating as miss",
				zap.String("fingerprint", fingerprint),
				zap.Error(err),
			)
		}
		return nil, false
	}

	var payload model.AnalysisPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		logger.Logger.Warn("Analysis cache entry corrupted, treating as miss",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return nil, false
	}

	return &payload, true
}

// Set 写入缓存，固定 TTL。写失败只记录日志。
func (c *AnalysisCache) Set(ctx context.Context, fingerprint string, payload *model.AnalysisPayload) {
	key := redis.Key(analysisResultPrefix, fingerprint)

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Logger.Warn("Failed to marshal analysis payload for cache", zap.Error(err))
		return
	}

	if err := redis.Client().Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Logger.Warn("Failed to write analysis cache",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
	}
}

// TTL 返回缓存条目的剩余存活时间，不存在时返回 0
func (c *AnalysisCache) TTL(ctx context.Context, fingerprint string) time.Duration {
	key := redis.Key(analysisResultPrefix, fingerprint)

	ttl, err := redis.Client().TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}
