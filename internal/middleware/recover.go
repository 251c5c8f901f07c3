package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/config"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	// 是否在响应里暴露 panic 详情（生产环境关闭）
	ExposeDetails bool
	// 是否记录堆栈
	EnableStackTrace bool
}

// RecoverMiddleware 兜住 handler panic，返回统一的 500 响应
func RecoverMiddleware() app.HandlerFunc {
	cfg := RecoverConfig{
		ExposeDetails:    !config.Cfg.IsProduction(),
		EnableStackTrace: true,
	}
	return RecoverMiddlewareWithConfig(cfg)
}

func RecoverMiddlewareWithConfig(cfg RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, cfg)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, cfg RecoverConfig) {
	var stack []byte
	if cfg.EnableStackTrace {
		stack = debug.Stack()
	}

	logger.Logger.Error("[PANIC RECOVERED]",
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.ByteString("stack", stack),
	)

	errDef := errors.Definition{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "Internal server error",
	}

	if !cfg.ExposeDetails {
		response.Error(ctx, c, errDef)
		return
	}

	details := map[string]interface{}{
		"panic":     fmt.Sprintf("%v", err),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if cfg.EnableStackTrace {
		details["stack"] = string(stack)
	}
	response.ErrorWithDetails(ctx, c, errDef, details)
}
