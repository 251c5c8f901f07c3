package service

import (
	"context"
	stderrors "errors"
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

// QuotaScopeCheckin 用户每日创建打卡的额度域，与翻译额度相互独立
const QuotaScopeCheckin = "checkin"

// Translator 完成打卡时做情绪评分的协作方
type Translator interface {
	Translate(ctx context.Context, req *dto.TranslateRequest) (*dto.TranslateResponse, error)
}

// QuotaConsumer 每日额度计数
type QuotaConsumer interface {
	Consume(ctx context.Context, scope string, subjectID int64) (bool, time.Duration)
}

// CheckinService 打卡任务生命周期的唯一入口。
// scheduled 是唯一非终态，completed / skipped 之后不再迁移。
type CheckinService struct {
	db         *gorm.DB
	translator Translator
	quota      QuotaConsumer

	sendTimes                   []string
	retentionDays               int
	failedAnalysisRetentionDays int
}

// CheckinServiceConfig 注入的运行参数
type CheckinServiceConfig struct {
	SendTimes                   []string
	RetentionDays               int
	FailedAnalysisRetentionDays int
}

func NewCheckinService(db *gorm.DB, translator Translator, quota QuotaConsumer, cfg CheckinServiceConfig) *CheckinService {
	if len(cfg.SendTimes) == 0 {
		cfg.SendTimes = []string{"09:00", "18:00"}
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 180
	}
	if cfg.FailedAnalysisRetentionDays <= 0 {
		cfg.FailedAnalysisRetentionDays = 90
	}
	return &CheckinService{
		db:                          db,
		translator:                  translator,
		quota:                       quota,
		sendTimes:                   cfg.SendTimes,
		retentionDays:               cfg.RetentionDays,
		failedAnalysisRetentionDays: cfg.FailedAnalysisRetentionDays,
	}
}

// Create 创建一个打卡任务。问题按孩子年龄段选取，
// 未指定时间时排到下一个配置的发送时刻。
func (s *CheckinService) Create(ctx context.Context, req *dto.CreateCheckinRequest) (*dto.CheckinView, error) {
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

	checkinType := model.CheckinTypeDaily
	switch model.CheckinType(req.Type) {
	case model.CheckinTypeDaily, model.CheckinTypeWeekly, model.CheckinTypeCustom:
		checkinType = model.CheckinType(req.Type)
	case "":
	default:
		return nil, errors.ValidationFailed.WithDetails("unknown check-in type")
	}

	// 参数全部校验通过之后才扣额度，被拒的请求不消耗
	if allowed, resetIn := s.quota.Consume(ctx, QuotaScopeCheckin, user.ID); !allowed {
		metrics.RecordQuotaRejected(ctx, QuotaScopeCheckin)
		return nil, errors.NewRateLimit(errors.SubjectQuotaExceeded, resetIn)
	}

	now := time.Now().UTC()
	scheduledAt, err := s.nextSendTime(now)
	if err != nil {
		return nil, err
	}
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	task, err := s.createTask(ctx, &user, child, checkinType, scheduledAt, now)
	if err != nil {
		return nil, err
	}
	metrics.RecordCheckinsScheduled(ctx, 1)
	return s.viewOf(ctx, task)
}

// Complete 用家长的回复完成打卡。情绪评分失败不阻塞完成，
// 此时情绪字段留空、分数按中性 0 记录。
func (s *CheckinService) Complete(ctx context.Context, taskID int64, req *dto.CompleteCheckinRequest) (*dto.CheckinView, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, errors.CheckinAlreadyCompleted
	}
	if req.ResponseText == "" {
		return nil, errors.ValidationFailed.WithDetails("response_text must not be empty")
	}

	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", task.UserID).First(&user).Error; err != nil {
		return nil, err
	}

	var childPublicID int64
	if task.ChildID != 0 {
		var child model.Child
		if err := s.db.WithContext(ctx).Where("id = ?", task.ChildID).First(&child).Error; err == nil {
			childPublicID = child.PublicID
		}
	}

	emotions, intensity, mood := s.scoreResponse(ctx, user.PublicID, childPublicID, req.ResponseText)

	now := time.Now().UTC()
	task.Status = model.CheckinStatusCompleted
	task.ResponseText = req.ResponseText
	task.ResponseType = model.ResponseTypeText
	if req.ResponseType != "" {
		task.ResponseType = model.ResponseType(req.ResponseType)
	}
	task.ResponseMetadata = req.ResponseMetadata
	task.DetectedEmotions = emotions
	task.EmotionIntensity = intensity
	task.MoodScore = &mood
	task.CompletedAt = &now

	// 条件更新守住终态：并发的完成/跳过只有一个能改到行
	res := s.db.WithContext(ctx).Model(&model.CheckinTask{}).
		Select("status", "response_text", "response_type", "response_metadata",
			"detected_emotions", "emotion_intensity", "mood_score", "completed_at").
		Where("id = ? AND status = ?", task.ID, model.CheckinStatusScheduled).
		Updates(task)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errors.CheckinAlreadyCompleted
	}
	metrics.RecordCheckinCompleted(ctx)
	return s.viewOf(ctx, task)
}

// Skip 跳过一个尚未完成的打卡
func (s *CheckinService) Skip(ctx context.Context, taskID int64, reason string) (*dto.CheckinView, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, errors.CheckinAlreadyCompleted
	}

	task.Status = model.CheckinStatusSkipped
	task.SkipReason = reason
	res := s.db.WithContext(ctx).Model(&model.CheckinTask{}).
		Select("status", "skip_reason").
		Where("id = ? AND status = ?", task.ID, model.CheckinStatusScheduled).
		Updates(task)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errors.CheckinAlreadyCompleted
	}
	return s.viewOf(ctx, task)
}

// Reschedule 改期，仅 scheduled 状态允许
func (s *CheckinService) Reschedule(ctx context.Context, taskID int64, newTime time.Time) (*dto.CheckinView, error) {
	if newTime.IsZero() {
		return nil, errors.ValidationFailed.WithDetails("scheduled_at must be set")
	}

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.CheckinStatusScheduled {
		return nil, errors.CheckinNotReschedulable
	}

	task.ScheduledAt = newTime.UTC()
	res := s.db.WithContext(ctx).Model(&model.CheckinTask{}).
		Select("scheduled_at").
		Where("id = ? AND status = ?", task.ID, model.CheckinStatusScheduled).
		Updates(task)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errors.CheckinNotReschedulable
	}
	return s.viewOf(ctx, task)
}

// GetPending 取出到期未派发的任务，按排期时间先进先出
func (s *CheckinService) GetPending(ctx context.Context, before time.Time, limit int) ([]model.CheckinTask, error) {
	if limit <= 0 {
		limit = 200
	}
	var tasks []model.CheckinTask
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", model.CheckinStatusScheduled, before.UTC()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// GetPendingViews 待派发任务的对外视图，供消息端轮询
func (s *CheckinService) GetPendingViews(ctx context.Context, before time.Time, limit int) ([]*dto.CheckinView, error) {
	tasks, err := s.GetPending(ctx, before, limit)
	if err != nil {
		return nil, err
	}

	views := make([]*dto.CheckinView, 0, len(tasks))
	for i := range tasks {
		view, err := s.viewOf(ctx, &tasks[i])
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// GetUserCheckins 打卡历史，按排期时间倒序
func (s *CheckinService) GetUserCheckins(ctx context.Context, userID int64, days int, limit int) ([]*dto.CheckinView, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("public_id = ?", userID).First(&user).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.UserNotFound
		}
		return nil, err
	}

	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 50
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	var tasks []model.CheckinTask
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND scheduled_at >= ?", user.ID, since).
		Order("scheduled_at DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	views := make([]*dto.CheckinView, 0, len(tasks))
	for i := range tasks {
		view, err := s.viewOf(ctx, &tasks[i])
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// ScheduleDailyForAllActive 为所有活跃用户生成 daily 任务。
// 每个 (user, child) 组合同一时刻最多一条未完成的 daily：
// 只要还有 scheduled 状态的 daily 就跳过，否则排到下一个发送时刻。
func (s *CheckinService) ScheduleDailyForAllActive(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()

	scheduledAt, err := s.nextSendTime(now)
	if err != nil {
		return 0, err
	}

	var users []model.User
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Preload("Children").
		Find(&users).Error; err != nil {
		return 0, err
	}

	created := 0
	for i := range users {
		user := &users[i]

		targets := []*model.Child{nil}
		if len(user.Children) > 0 {
			targets = targets[:0]
			for j := range user.Children {
				targets = append(targets, &user.Children[j])
			}
		}

		for _, child := range targets {
			var childID int64
			if child != nil {
				childID = child.ID
			}

			var pending int64
			err := s.db.WithContext(ctx).Model(&model.CheckinTask{}).
				Where("user_id = ? AND child_id = ? AND type = ? AND status = ?",
					user.ID, childID, model.CheckinTypeDaily, model.CheckinStatusScheduled).
				Count(&pending).Error
			if err != nil {
				return created, err
			}
			if pending > 0 {
				continue
			}

			if _, err := s.createTask(ctx, user, child, model.CheckinTypeDaily, scheduledAt, now); err != nil {
				logger.Logger.Error("Failed to schedule daily check-in",
					zap.Int64("user_id", user.PublicID),
					zap.Error(err),
				)
				continue
			}
			created++
		}
	}

	if created > 0 {
		metrics.RecordCheckinsScheduled(ctx, int64(created))
	}
	logger.Logger.Info("Daily check-in scheduling finished",
		zap.Int("users", len(users)),
		zap.Int("created", created),
	)
	return created, nil
}

// PurgeOld 清理超过保留期的打卡和失败的分析记录
func (s *CheckinService) PurgeOld(ctx context.Context) (int64, int64, error) {
	now := time.Now().UTC()

	checkinCutoff := now.AddDate(0, 0, -s.retentionDays)
	res := s.db.WithContext(ctx).
		Where("scheduled_at < ?", checkinCutoff).
		Delete(&model.CheckinTask{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	checkinsPurged := res.RowsAffected

	analysisCutoff := now.AddDate(0, 0, -s.failedAnalysisRetentionDays)
	res = s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.AnalysisStatusFailed, analysisCutoff).
		Delete(&model.EmotionAnalysis{})
	if res.Error != nil {
		return checkinsPurged, 0, res.Error
	}

	logger.Logger.Info("Retention cleanup finished",
		zap.Int64("checkins_purged", checkinsPurged),
		zap.Int64("failed_analyses_purged", res.RowsAffected),
	)
	return checkinsPurged, res.RowsAffected, nil
}

// nextSendTime 配置的发送时刻里最早的下一次出现
func (s *CheckinService) nextSendTime(now time.Time) (time.Time, error) {
	var next time.Time
	for _, sendTime := range s.sendTimes {
		at, err := utils.NextOccurrence(now, sendTime)
		if err != nil {
			logger.Logger.Warn("Skipping malformed send time", zap.String("send_time", sendTime), zap.Error(err))
			continue
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	if next.IsZero() {
		return time.Time{}, errors.ValidationFailed.WithDetails("no usable send time configured")
	}
	return next, nil
}

func (s *CheckinService) createTask(ctx context.Context, user *model.User, child *model.Child, checkinType model.CheckinType, scheduledAt, now time.Time) (*model.CheckinTask, error) {
	publicID, err := snowflake.NextID()
	if err != nil {
		return nil, err
	}

	var childID int64
	if child != nil {
		childID = child.ID
	}

	task := &model.CheckinTask{
		PublicID:    publicID,
		UserID:      user.ID,
		ChildID:     childID,
		Type:        checkinType,
		Question:    QuestionFor(child.Bucket(), CategoryMood, now.YearDay()),
		Status:      model.CheckinStatusScheduled,
		ScheduledAt: scheduledAt,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// scoreResponse 通过翻译网关评分，任何失败都降级为中性结果
func (s *CheckinService) scoreResponse(ctx context.Context, userPublicID, childPublicID int64, text string) ([]string, map[string]float64, float64) {
	if s.translator == nil {
		return nil, nil, 0
	}

	resp, err := s.translator.Translate(ctx, &dto.TranslateRequest{
		UserID:  userPublicID,
		ChildID: childPublicID,
		Message: text,
	})
	if err != nil {
		logger.Logger.Warn("Emotion scoring failed, completing check-in with neutral result",
			zap.Int64("user_id", userPublicID),
			zap.Error(err),
		)
		return nil, nil, 0
	}

	return resp.Emotions, analysis.IntensityFromEmotions(resp.Emotions), resp.MoodScore
}

func (s *CheckinService) loadTask(ctx context.Context, taskID int64) (*model.CheckinTask, error) {
	var task model.CheckinTask
	if err := s.db.WithContext(ctx).Where("public_id = ?", taskID).First(&task).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.CheckinNotFound
		}
		return nil, err
	}
	return &task, nil
}

// viewOf 将任务转换为对外视图，ID 一律用 public id
func (s *CheckinService) viewOf(ctx context.Context, task *model.CheckinTask) (*dto.CheckinView, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Select("public_id").Where("id = ?", task.UserID).First(&user).Error; err != nil {
		return nil, err
	}

	var childPublicID int64
	if task.ChildID != 0 {
		var child model.Child
		if err := s.db.WithContext(ctx).Select("public_id").Where("id = ?", task.ChildID).First(&child).Error; err == nil {
			childPublicID = child.PublicID
		}
	}

	return &dto.CheckinView{
		TaskID:           task.PublicID,
		UserID:           user.PublicID,
		ChildID:          childPublicID,
		Type:             string(task.Type),
		Question:         task.Question,
		Status:           string(task.Status),
		ScheduledAt:      task.ScheduledAt,
		ResponseText:     task.ResponseText,
		DetectedEmotions: task.DetectedEmotions,
		EmotionIntensity: task.EmotionIntensity,
		MoodScore:        task.MoodScore,
		CompletedAt:      task.CompletedAt,
		SkipReason:       task.SkipReason,
	}, nil
}
