package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/gbalchidi/family-emotions-app/config"
	"github.com/gbalchidi/family-emotions-app/internal/handler"
	"github.com/gbalchidi/family-emotions-app/internal/middleware"
)

// Register 挂载全部路由。handler 由 main 负责组装后传入。
func Register(h *server.Hertz, checkins *handler.CheckinHandler, translations *handler.AnalysisHandler, reports *handler.ReportHandler) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	if config.Cfg.OTelEnabled {
		h.Use(middleware.OpenTelemetryMiddleware())
	}
	if config.Cfg.RateLimitEnabled {
		h.Use(middleware.GeneralRateLimitMiddleware())
	}

	v1 := h.Group("/v1")

	// 打卡路由
	checkIns := v1.Group("/check-ins")
	{
		checkIns.POST("", checkins.Create)
		checkIns.GET("/pending", checkins.Pending)
		checkIns.GET("/history", checkins.History)
		checkIns.POST("/:task_id/complete", checkins.Complete)
		checkIns.POST("/:task_id/skip", checkins.Skip)
		checkIns.PATCH("/:task_id/reschedule", checkins.Reschedule)
	}

	// 情绪翻译路由
	trans := v1.Group("/translations")
	{
		trans.POST("", translations.Translate)
		trans.GET("/history", translations.History)
		trans.GET("/:result_id", translations.Get)
		trans.POST("/:result_id/retry", translations.Retry)
	}

	// 周报路由
	rep := v1.Group("/reports")
	{
		rep.POST("/weekly", reports.Generate)
		rep.GET("/weekly/:report_id", reports.Get)
	}
}
