package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 情绪分析相关指标
	AnalysisRequestsTotal    metric.Int64Counter
	AnalysisCacheHitsTotal   metric.Int64Counter
	QuotaRejectedTotal       metric.Int64Counter
	ProviderRateLimitedTotal metric.Int64Counter
	ParseFallbackTotal       metric.Int64Counter
	ProviderDuration         metric.Float64Histogram

	// 打卡相关指标
	CheckinsScheduledTotal  metric.Int64Counter
	CheckinsCompletedTotal  metric.Int64Counter
	CheckinsDispatchedTotal metric.Int64Counter

	// 调度器指标
	JobRunsTotal        metric.Int64Counter
	JobOverlapSkipTotal metric.Int64Counter
	JobMisfireTotal     metric.Int64Counter

	// 周报指标
	ReportsGeneratedTotal metric.Int64Counter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("family-emotions")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	m := &OTelMetrics{}
	var err error

	m.AnalysisRequestsTotal, err = meter.Int64Counter(
		"analysis_requests_total",
		metric.WithDescription("Total number of analysis requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.AnalysisCacheHitsTotal, err = meter.Int64Counter(
		"analysis_cache_hits_total",
		metric.WithDescription("Total number of analysis cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	m.QuotaRejectedTotal, err = meter.Int64Counter(
		"quota_rejected_total",
		metric.WithDescription("Total number of requests rejected by daily quota"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.ProviderRateLimitedTotal, err = meter.Int64Counter(
		"provider_rate_limited_total",
		metric.WithDescription("Total number of provider calls rejected by rate limiting"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.ParseFallbackTotal, err = meter.Int64Counter(
		"parse_fallback_total",
		metric.WithDescription("Total number of provider responses replaced by the fallback payload"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return err
	}

	m.ProviderDuration, err = meter.Float64Histogram(
		"provider_request_duration_seconds",
		metric.WithDescription("Time spent on provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.CheckinsScheduledTotal, err = meter.Int64Counter(
		"checkins_scheduled_total",
		metric.WithDescription("Total number of check-in tasks scheduled"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return err
	}

	m.CheckinsCompletedTotal, err = meter.Int64Counter(
		"checkins_completed_total",
		metric.WithDescription("Total number of check-in tasks completed"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return err
	}

	m.CheckinsDispatchedTotal, err = meter.Int64Counter(
		"checkins_dispatched_total",
		metric.WithDescription("Total number of check-in tasks dispatched to the message queue"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return err
	}

	m.JobRunsTotal, err = meter.Int64Counter(
		"scheduler_job_runs_total",
		metric.WithDescription("Total number of scheduler job executions"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	m.JobOverlapSkipTotal, err = meter.Int64Counter(
		"scheduler_job_overlap_skips_total",
		metric.WithDescription("Total number of job occurrences skipped because the previous run was still active"),
		metric.WithUnit("{skip}"),
	)
	if err != nil {
		return err
	}

	m.JobMisfireTotal, err = meter.Int64Counter(
		"scheduler_job_misfires_total",
		metric.WithDescription("Total number of job occurrences dropped beyond the misfire grace"),
		metric.WithUnit("{misfire}"),
	)
	if err != nil {
		return err
	}

	m.ReportsGeneratedTotal, err = meter.Int64Counter(
		"reports_generated_total",
		metric.WithDescription("Total number of weekly reports generated"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// 包级封装：未初始化时静默跳过，测试无需先 InitMetrics

// RecordAnalysisRequest 记录一次分析请求及是否命中缓存
func RecordAnalysisRequest(ctx context.Context, fromCache bool) {
	if metrics == nil {
		return
	}
	source := "provider"
	if fromCache {
		source = "cache"
		metrics.AnalysisCacheHitsTotal.Add(ctx, 1)
	}
	metrics.AnalysisRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}

// RecordQuotaRejected 记录一次用户额度拒绝
func RecordQuotaRejected(ctx context.Context, scope string) {
	if metrics == nil {
		return
	}
	metrics.QuotaRejectedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
	))
}

// RecordProviderRateLimited 记录一次 provider 限流
func RecordProviderRateLimited(ctx context.Context) {
	if metrics == nil {
		return
	}
	metrics.ProviderRateLimitedTotal.Add(ctx, 1)
}

// RecordParseFallback 记录一次保底结果替换
func RecordParseFallback(ctx context.Context) {
	if metrics == nil {
		return
	}
	metrics.ParseFallbackTotal.Add(ctx, 1)
}

// RecordProviderDuration 记录 provider 调用耗时
func RecordProviderDuration(ctx context.Context, d time.Duration) {
	if metrics == nil {
		return
	}
	metrics.ProviderDuration.Record(ctx, d.Seconds())
}

// RecordCheckinsScheduled 记录批量排期的任务数
func RecordCheckinsScheduled(ctx context.Context, count int64) {
	if metrics == nil {
		return
	}
	metrics.CheckinsScheduledTotal.Add(ctx, count)
}

// RecordCheckinCompleted 记录一次打卡完成
func RecordCheckinCompleted(ctx context.Context) {
	if metrics == nil {
		return
	}
	metrics.CheckinsCompletedTotal.Add(ctx, 1)
}

// RecordCheckinDispatched 记录一次任务派发
func RecordCheckinDispatched(ctx context.Context) {
	if metrics == nil {
		return
	}
	metrics.CheckinsDispatchedTotal.Add(ctx, 1)
}

// RecordJobRun 记录一次 job 执行及结果
func RecordJobRun(ctx context.Context, jobID string, success bool) {
	if metrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	metrics.JobRunsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_id", jobID),
		attribute.String("status", status),
	))
}

// RecordJobOverlapSkip 记录一次因上轮未结束而跳过
func RecordJobOverlapSkip(ctx context.Context, jobID string) {
	if metrics == nil {
		return
	}
	metrics.JobOverlapSkipTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_id", jobID),
	))
}

// RecordJobMisfire 记录一次超出宽限被放弃的触发
func RecordJobMisfire(ctx context.Context, jobID string) {
	if metrics == nil {
		return
	}
	metrics.JobMisfireTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_id", jobID),
	))
}

// RecordReportGenerated 记录一次周报生成
func RecordReportGenerated(ctx context.Context) {
	if metrics == nil {
		return
	}
	metrics.ReportsGeneratedTotal.Add(ctx, 1)
}
