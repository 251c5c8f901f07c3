package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gbalchidi/family-emotions-app/internal/analysis"
	"github.com/gbalchidi/family-emotions-app/internal/model"
	"github.com/gbalchidi/family-emotions-app/internal/model/dto"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/metrics"
	"github.com/gbalchidi/family-emotions-app/pkg/snowflake"
	"github.com/gbalchidi/family-emotions-app/utils"
)

// ReportPublisher 新报告生成后的通知协作方
type ReportPublisher interface {
	ReportReady(ctx context.Context, report *dto.ReportView)
}

// ReportService 周报生成与查询。周报按 (user, child, week_start) 幂等：
// 已存在的报告直接返回，不会重新生成。
type ReportService struct {
	db           *gorm.DB
	provider     analysis.Provider
	limiter      analysis.ProviderLimiter
	modelVersion string
	publisher    ReportPublisher
}

// SetPublisher 注册生成通知，只有新生成的报告会触发
func (s *ReportService) SetPublisher(p ReportPublisher) {
	s.publisher = p
}

func NewReportService(db *gorm.DB, provider analysis.Provider, limiter analysis.ProviderLimiter, modelVersion string) *ReportService {
	return &ReportService{
		db:           db,
		provider:     provider,
		limiter:      limiter,
		modelVersion: modelVersion,
	}
}

// Generate 生成一份周报，已存在时返回既有报告
func (s *ReportService) Generate(ctx context.Context, req *dto.GenerateReportRequest) (*dto.ReportView, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("public_id = ?", req.UserID).First(&user).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.UserNotFound
		}
		return nil, err
	}

	var child *model.Child
	if req.ChildID != 0 {
		var c model.Child
		err := s.db.WithContext(ctx).
			Where("public_id = ? AND parent_id = ?", req.ChildID, user.ID).
			First(&c).Error
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errors.ChildNotFound
			}
			return nil, err
		}
		child = &c
	}
	var childID int64
	if child != nil {
		childID = child.ID
	}

	// 按需生成默认取本周：最近一个周一。上一周的整周报告由定时任务生成。
	weekStart := utils.WeekStartUTC(time.Now().UTC())
	if req.WeekStart != nil {
		weekStart = utils.WeekStartUTC(*req.WeekStart)
	}
	weekEnd := weekStart.AddDate(0, 0, 7)

	// 幂等：同一份周报只生成一次
	var existing model.WeeklyReport
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND child_id = ? AND week_start = ?", user.ID, childID, weekStart).
		First(&existing).Error
	if err == nil {
		return s.viewOf(ctx, &existing)
	}
	if !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	report, err := s.buildReport(ctx, &user, childID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(report).Error; err != nil {
		// 并发生成时唯一索引兜底，输掉的一方读回赢家的报告
		var winner model.WeeklyReport
		ferr := s.db.WithContext(ctx).
			Where("user_id = ? AND child_id = ? AND week_start = ?", user.ID, childID, weekStart).
			First(&winner).Error
		if ferr == nil {
			return s.viewOf(ctx, &winner)
		}
		return nil, err
	}

	metrics.RecordReportGenerated(ctx)
	view, err := s.viewOf(ctx, report)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		s.publisher.ReportReady(ctx, view)
	}
	return view, nil
}

// Get 查询既有周报
func (s *ReportService) Get(ctx context.Context, reportID int64) (*dto.ReportView, error) {
	var report model.WeeklyReport
	if err := s.db.WithContext(ctx).Where("public_id = ?", reportID).First(&report).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.AnalysisNotFound.WithDetails("report not found")
		}
		return nil, err
	}
	return s.viewOf(ctx, &report)
}

// GenerateForAllActive 为所有活跃用户生成上一周的周报，
// 周报任务每周跑一次，幂等由 Generate 保证。
func (s *ReportService) GenerateForAllActive(ctx context.Context, now time.Time) (int, error) {
	weekStart := utils.WeekStartUTC(now.UTC().AddDate(0, 0, -7))

	var users []model.User
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Preload("Children").
		Find(&users).Error; err != nil {
		return 0, err
	}

	generated := 0
	for i := range users {
		user := &users[i]

		reqs := []*dto.GenerateReportRequest{
			{UserID: user.PublicID, WeekStart: &weekStart},
		}
		for j := range user.Children {
			reqs = append(reqs, &dto.GenerateReportRequest{
				UserID:    user.PublicID,
				ChildID:   user.Children[j].PublicID,
				WeekStart: &weekStart,
			})
		}

		for _, req := range reqs {
			if _, err := s.Generate(ctx, req); err != nil {
				logger.Logger.Error("Failed to generate weekly report",
					zap.Int64("user_id", req.UserID),
					zap.Int64("child_id", req.ChildID),
					zap.Error(err),
				)
				continue
			}
			generated++
		}
	}

	logger.Logger.Info("Weekly report generation finished",
		zap.Int("users", len(users)),
		zap.Int("generated", generated),
	)
	return generated, nil
}

func (s *ReportService) buildReport(ctx context.Context, user *model.User, childID int64, weekStart, weekEnd time.Time) (*model.WeeklyReport, error) {
	publicID, err := snowflake.NextID()
	if err != nil {
		return nil, err
	}

	// 统计窗口按创建时间算：补打卡的任务归属创建它的那一周
	taskQuery := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND created_at >= ? AND created_at < ?",
			user.ID, model.CheckinStatusCompleted, weekStart, weekEnd)
	if childID != 0 {
		taskQuery = taskQuery.Where("child_id = ?", childID)
	}
	var tasks []model.CheckinTask
	if err := taskQuery.Find(&tasks).Error; err != nil {
		return nil, err
	}

	analysisQuery := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND created_at >= ? AND created_at < ?",
			user.ID, model.AnalysisStatusCompleted, weekStart, weekEnd)
	if childID != 0 {
		analysisQuery = analysisQuery.Where("child_id = ?", childID)
	}
	var analyses []model.EmotionAnalysis
	if err := analysisQuery.Find(&analyses).Error; err != nil {
		return nil, err
	}

	emotionTrends := make(map[string]int)
	activity := make(map[string]int)
	var moodSum float64
	var moodCount int

	for i := range tasks {
		task := &tasks[i]
		for _, e := range task.DetectedEmotions {
			emotionTrends[e]++
		}
		if task.MoodScore != nil {
			moodSum += *task.MoodScore
			moodCount++
		}
		if task.CompletedAt != nil {
			activity[task.CompletedAt.UTC().Weekday().String()]++
		}
	}
	for i := range analyses {
		for _, e := range analyses[i].Emotions {
			emotionTrends[e]++
		}
		moodSum += analyses[i].MoodScore
		moodCount++
	}

	var avgMood *float64
	if moodCount > 0 {
		avg := moodSum / float64(moodCount)
		avgMood = &avg
	}

	childName := ""
	if childID != 0 {
		var child model.Child
		if err := s.db.WithContext(ctx).Select("name").Where("id = ?", childID).First(&child).Error; err == nil {
			childName = child.Name
		}
	}

	summary := s.narrative(ctx, childName, emotionTrends, avgMood, len(tasks), user.LanguageCode)

	return &model.WeeklyReport{
		PublicID:          publicID,
		UserID:            user.ID,
		ChildID:           childID,
		WeekStart:         weekStart,
		WeekEnd:           weekEnd,
		Summary:           summary.Summary,
		EmotionTrends:     emotionTrends,
		Insights:          summary.Insights,
		Recommendations:   summary.Recommendations,
		ActivityByWeekday: activity,
		TotalCheckins:     len(tasks),
		TotalAnalyses:     len(analyses),
		AverageMoodScore:  avgMood,
		GeneratedAt:       time.Now().UTC(),
		ModelVersion:      s.modelVersion,
	}, nil
}

// narrative 生成叙述性摘要，provider 不可用或输出不合法时
// 退回确定性的规则摘要，周报生成从不因此失败
func (s *ReportService) narrative(ctx context.Context, childName string, emotionTrends map[string]int, avgMood *float64, totalCheckins int, language string) *analysis.ReportSummary {
	if s.provider != nil && s.limiter != nil && totalCheckins > 0 {
		if ok, _ := s.limiter.Acquire(ctx); ok {
			prompt := analysis.BuildReportSummaryPrompt(childName, emotionTrends, avgMood, totalCheckins, language)
			raw, err := s.provider.Complete(ctx, prompt)
			if err == nil {
				if summary, perr := analysis.ParseReportSummary(raw); perr == nil {
					return summary
				}
			} else {
				logger.Logger.Warn("Report narrative generation failed, using rule-based summary", zap.Error(err))
			}
		}
	}
	return ruleBasedSummary(childName, emotionTrends, avgMood, totalCheckins)
}

// ruleBasedSummary 不依赖外部服务的保底摘要
func ruleBasedSummary(childName string, emotionTrends map[string]int, avgMood *float64, totalCheckins int) *analysis.ReportSummary {
	subject := childName
	if subject == "" {
		subject = "Your family"
	}

	if totalCheckins == 0 {
		return &analysis.ReportSummary{
			Summary: fmt.Sprintf("%s did not complete any check-ins this week.", subject),
			Recommendations: []string{
				"Try answering one check-in together this week to get the conversation going.",
			},
		}
	}

	dominant := ""
	dominantCount := 0
	for emotion, count := range emotionTrends {
		if count > dominantCount || (count == dominantCount && emotion < dominant) {
			dominant = emotion
			dominantCount = count
		}
	}

	summaryText := fmt.Sprintf("%s completed %d check-ins this week.", subject, totalCheckins)
	var insights []string
	if dominant != "" {
		summaryText += fmt.Sprintf(" The most frequent emotion was %s.", dominant)
		insights = append(insights, fmt.Sprintf("%s appeared %d times this week.", dominant, dominantCount))
	}
	if avgMood != nil {
		insights = append(insights, fmt.Sprintf("The average mood score was %.2f on a scale from -1 to 1.", *avgMood))
	}

	return &analysis.ReportSummary{
		Summary:  summaryText,
		Insights: insights,
		Recommendations: []string{
			"Keep the check-in routine going, consistency matters more than depth.",
		},
	}
}

// viewOf 将报告转换为对外视图，ID 一律用 public id
func (s *ReportService) viewOf(ctx context.Context, report *model.WeeklyReport) (*dto.ReportView, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Select("public_id").Where("id = ?", report.UserID).First(&user).Error; err != nil {
		return nil, err
	}
	var childPublicID int64
	if report.ChildID != 0 {
		var child model.Child
		if err := s.db.WithContext(ctx).Select("public_id").Where("id = ?", report.ChildID).First(&child).Error; err == nil {
			childPublicID = child.PublicID
		}
	}
	return &dto.ReportView{
		ReportID:          report.PublicID,
		UserID:            user.PublicID,
		ChildID:           childPublicID,
		WeekStart:         report.WeekStart,
		WeekEnd:           report.WeekEnd,
		Summary:           report.Summary,
		EmotionTrends:     report.EmotionTrends,
		Insights:          report.Insights,
		Recommendations:   report.Recommendations,
		ActivityByWeekday: report.ActivityByWeekday,
		TotalCheckins:     report.TotalCheckins,
		TotalAnalyses:     report.TotalAnalyses,
		AverageMoodScore:  report.AverageMoodScore,
		GeneratedAt:       report.GeneratedAt,
	}, nil
}
