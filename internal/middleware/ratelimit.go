package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/config"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/response"
	"github.com/gbalchidi/family-emotions-app/storage/redis"
)

// RateLimitConfig HTTP 入口限流配置。
// 这里限的是单个客户端 IP 的请求频率，与业务层的每日额度、
// provider 配额是三套互不相干的限制。
type RateLimitConfig struct {
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
	// 超限后阻塞时长（秒）
	BlockDuration int
}

// DefaultRateLimitConfig 默认限流配置
var DefaultRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   6000,
	KeyPrefix:     "rate:limit",
	BlockDuration: 60,
}

// RateLimiter 基于 redis zset 的滑动窗口限流器
type RateLimiter struct {
	config RateLimitConfig
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{config: config}
}

func (rl *RateLimiter) getKey(c *app.RequestContext) string {
	return redis.Key(rl.config.KeyPrefix, "ip:"+c.ClientIP())
}

// Allow 检查是否允许请求，使用滑动窗口算法
func (rl *RateLimiter) Allow(ctx context.Context, c *app.RequestContext) (bool, int, error) {
	key := rl.getKey(c)
	now := time.Now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	client := redis.Client()
	pipe := client.Pipeline()

	// 每次请求先清掉窗口之外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))

	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})

	zcardCmd := pipe.ZCard(ctx, key)

	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

// Block 超限后把该 IP 拉黑一段时间，期间直接拒绝
func (rl *RateLimiter) Block(ctx context.Context, c *app.RequestContext) error {
	key := redis.Key(rl.config.KeyPrefix+":block", rl.getKey(c))
	return redis.Client().Set(ctx, key, "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, c *app.RequestContext) (bool, error) {
	key := redis.Key(rl.config.KeyPrefix+":block", rl.getKey(c))
	result, err := redis.Client().Exists(ctx, key).Result()
	return result > 0, err
}

// RateLimitMiddleware 创建限流中间件。
// redis 不可用时放行，入口限流挂掉不应该拖垮整个服务。
func RateLimitMiddleware(config RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(config)

	return func(ctx context.Context, c *app.RequestContext) {
		blocked, err := limiter.IsBlocked(ctx, c)
		if err != nil {
			logger.Logger.Error("Failed to check block status, allowing request", zap.Error(err))
			c.Next(ctx)
			return
		}

		if blocked {
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		allowed, count, err := limiter.Allow(ctx, c)
		if err != nil {
			logger.Logger.Error("Failed to check rate limit, allowing request", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := config.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(config.Window)*time.Second).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, c); err != nil {
				logger.Logger.Error("Failed to block client", zap.Error(err))
			}

			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

// GeneralRateLimitMiddleware 按配置的 RPS 构造全局限流中间件
func GeneralRateLimitMiddleware() app.HandlerFunc {
	cfg := DefaultRateLimitConfig
	if config.Cfg.RateLimitRPS > 0 {
		cfg.MaxRequests = config.Cfg.RateLimitRPS * cfg.Window
	}
	return RateLimitMiddleware(cfg)
}
