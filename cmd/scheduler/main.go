package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/config"
	"github.com/gbalchidi/family-emotions-app/internal/analysis"
	"github.com/gbalchidi/family-emotions-app/internal/cache"
	"github.com/gbalchidi/family-emotions-app/internal/queue"
	"github.com/gbalchidi/family-emotions-app/internal/schedule"
	"github.com/gbalchidi/family-emotions-app/internal/service"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/metrics"
	otelinit "github.com/gbalchidi/family-emotions-app/pkg/otel"
	"github.com/gbalchidi/family-emotions-app/pkg/snowflake"
	"github.com/gbalchidi/family-emotions-app/storage"
	"github.com/gbalchidi/family-emotions-app/storage/database"
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
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 调度器单独部署时机器号要和 server / worker 区分开
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	if config.Cfg.OTelEnabled {
		shutdown, err := otelinit.InitOpenTelemetry(ctx, otelinit.Config{
			ServiceName:  config.Cfg.ServiceName + "-scheduler",
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

	checkinQuota := cache.NewSubjectQuota(config.Cfg.DailyCheckinLimit)
	providerLimiter := cache.NewProviderLimiter(config.Cfg.ProviderRequestsPerMinute, config.Cfg.ProviderRequestsPerDay)
	provider := analysis.NewAnthropicProvider()

	checkinSvc := service.NewCheckinService(database.DB(), nil, checkinQuota, service.CheckinServiceConfig{
		SendTimes:                   config.Cfg.SendTimes(),
		RetentionDays:               config.Cfg.CheckinRetentionDays,
		FailedAnalysisRetentionDays: config.Cfg.FailedAnalysisRetentionDays,
	})

	reportSvc := service.NewReportService(database.DB(), provider, providerLimiter, config.Cfg.ClaudeModel)
	producer := queue.NewProducer(database.DB(), checkinSvc)
	reportSvc.SetPublisher(producer)

	scheduler := schedule.NewScheduler()
	if err := schedule.RegisterDefaultJobs(scheduler, checkinSvc, reportSvc, producer); err != nil {
		logger.Logger.Fatal("Failed to register scheduler jobs", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	scheduler.Start(ctx)

	<-ctx.Done()

	scheduler.Stop()

	logger.Logger.Info("Scheduler shutting down gracefully")
}
