package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/config"
	"github.com/gbalchidi/family-emotions-app/internal/notify"
	"github.com/gbalchidi/family-emotions-app/internal/queue"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/metrics"
	otelinit "github.com/gbalchidi/family-emotions-app/pkg/otel"
	"github.com/gbalchidi/family-emotions-app/pkg/snowflake"
	"github.com/gbalchidi/family-emotions-app/storage"
)

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Worker received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for worker", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for worker", zap.Error(err))
	}

	if config.Cfg.OTelEnabled {
		shutdown, err := otelinit.InitOpenTelemetry(ctx, otelinit.Config{
			ServiceName:  config.Cfg.ServiceName + "-worker",
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.OTLPEndpoint,
			SampleRatio:  config.Cfg.SampleRatio,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()

		if err := metrics.InitMetrics(); err != nil {
			logger.Logger.Fatal("Failed to initialize metrics", zap.Error(err))
		}
	}

	// webhook 未配置时 ForURL 退化为只打日志的 notifier
	notifier := notify.ForURL(config.Cfg.FrontendWebhookURL)

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
		zap.Bool("webhook_configured", config.Cfg.FrontendWebhookURL != ""),
	)

	queue.StartAllConsumers(ctx, notifier)

	<-ctx.Done()

	logger.Logger.Info("Worker shutting down gracefully")
}
