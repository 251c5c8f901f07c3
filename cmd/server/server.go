package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/config"
	"github.com/gbalchidi/family-emotions-app/internal/analysis"
	"github.com/gbalchidi/family-emotions-app/internal/cache"
	"github.com/gbalchidi/family-emotions-app/internal/handler"
	"github.com/gbalchidi/family-emotions-app/internal/middleware"
	"github.com/gbalchidi/family-emotions-app/internal/queue"
	"github.com/gbalchidi/family-emotions-app/internal/router"
	"github.com/gbalchidi/family-emotions-app/internal/service"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/metrics"
	otelinit "github.com/gbalchidi/family-emotions-app/pkg/otel"
	"github.com/gbalchidi/family-emotions-app/pkg/snowflake"
	"github.com/gbalchidi/family-emotions-app/storage"
	"github.com/gbalchidi/family-emotions-app/storage/database"
)

func main() {
	// 日志部分
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// OTel 可选，关闭时中间件和业务指标都退化为空操作
	if config.Cfg.OTelEnabled {
		shutdown, err := otelinit.InitOpenTelemetry(ctx, otelinit.Config{
			ServiceName:  config.Cfg.ServiceName,
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
		if err := middleware.InitMetrics(otel.Meter("hertz-server")); err != nil {
			logger.Logger.Fatal("Failed to initialize HTTP metrics", zap.Error(err))
		}
	}

	// 组装业务依赖
	analysisCache := cache.NewAnalysisCache(time.Duration(config.Cfg.AnalysisCacheTTLSeconds) * time.Second)
	translationQuota := cache.NewSubjectQuota(config.Cfg.DailyTranslationLimit)
	checkinQuota := cache.NewSubjectQuota(config.Cfg.DailyCheckinLimit)
	providerLimiter := cache.NewProviderLimiter(config.Cfg.ProviderRequestsPerMinute, config.Cfg.ProviderRequestsPerDay)
	provider := analysis.NewAnthropicProvider()

	gateway := analysis.NewGateway(database.DB(), provider, analysisCache, providerLimiter, translationQuota)

	checkinSvc := service.NewCheckinService(database.DB(), gateway, checkinQuota, service.CheckinServiceConfig{
		SendTimes:                   config.Cfg.SendTimes(),
		RetentionDays:               config.Cfg.CheckinRetentionDays,
		FailedAnalysisRetentionDays: config.Cfg.FailedAnalysisRetentionDays,
	})

	reportSvc := service.NewReportService(database.DB(), provider, providerLimiter, config.Cfg.ClaudeModel)
	// HTTP 触发生成的报告同样走 MQ 通知
	reportSvc.SetPublisher(queue.NewProducer(database.DB(), checkinSvc))

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	h := server.Default(server.WithHostPorts(addr))

	router.Register(h,
		handler.NewCheckinHandler(checkinSvc),
		handler.NewAnalysisHandler(gateway),
		handler.NewReportHandler(reportSvc),
	)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
