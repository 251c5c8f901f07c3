package analysis

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gbalchidi/family-emotions-app/internal/model"
	"github.com/gbalchidi/family-emotions-app/internal/model/dto"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
	"github.com/gbalchidi/family-emotions-app/pkg/metrics"
	"github.com/gbalchidi/family-emotions-app/pkg/snowflake"
)

// QuotaScopeTranslation 用户每日翻译额度的计数域
const QuotaScopeTranslation = "translation"

// ResultCache 指纹缓存
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) (*model.AnalysisPayload, bool)
	Set(ctx context.Context, fingerprint string, payload *model.AnalysisPayload)
}

// ProviderLimiter provider 侧的全局限流
type ProviderLimiter interface {
	Acquire(ctx context.Context) (bool, time.Duration)
}

// SubjectQuota 用户侧的每日额度。
// Refund 归还一次计数，调用方在没有交付结果时负责退回。
type SubjectQuota interface {
	Consume(ctx context.Context, scope string, subjectID int64) (bool, time.Duration)
	Refund(ctx context.Context, scope string, subjectID int64)
}

// Gateway 情绪翻译入口：额度 -> 缓存 -> provider 限流 -> 调用 -> 解析 -> 落库。
// 两类限流相互独立：用户额度先判，provider 限流只拦真正要出网的调用。
type Gateway struct {
	db       *gorm.DB
	provider Provider
	cache    ResultCache
	limiter  ProviderLimiter
	quota    SubjectQuota
}

func NewGateway(db *gorm.DB, provider Provider, cache ResultCache, limiter ProviderLimiter, quota SubjectQuota) *Gateway {
	return &Gateway{
		db:       db,
		provider: provider,
		cache:    cache,
		limiter:  limiter,
		quota:    quota,
	}
}

// Translate 处理一次情绪翻译请求
func (g *Gateway) Translate(ctx context.Context, req *dto.TranslateRequest) (*dto.TranslateResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.ValidationFailed.WithDetails("message must not be empty")
	}

	var user model.User
	if err := g.db.WithContext(ctx).Where("public_id = ?", req.UserID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.UserNotFound
		}
		return nil, err
	}

	var child *model.Child
	if req.ChildID != 0 {
		var c model.Child
		err := g.db.WithContext(ctx).
			Where("public_id = ? AND parent_id = ?", req.ChildID, user.ID).
			First(&c).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, errors.ChildNotFound
			}
			return nil, err
		}
		child = &c
	}
	var childRef int64
	if child != nil {
		childRef = child.ID
	}

	// 先扣用户额度，缓存命中也计入当日用量。
	// 额度只为交付了结果的请求买单：后面任何失败都要退回。
	allowed, resetIn := g.quota.Consume(ctx, QuotaScopeTranslation, user.ID)
	if !allowed {
		metrics.RecordQuotaRejected(ctx, QuotaScopeTranslation)
		return nil, errors.NewRateLimit(errors.SubjectQuotaExceeded, resetIn)
	}
	refund := func() { g.quota.Refund(ctx, QuotaScopeTranslation, user.ID) }

	fingerprint := Fingerprint(req.Message, child.Bucket(), user.LanguageCode, user.ResponseStyle)

	useCache := req.UseCache == nil || *req.UseCache
	if useCache {
		if payload, ok := g.cache.Get(ctx, fingerprint); ok {
			metrics.RecordAnalysisRequest(ctx, true)
			record, err := g.persistResult(ctx, &user, childRef, req.Message, fingerprint, payload, 0, model.AnalysisStatusCompleted, "")
			if err != nil {
				refund()
				return nil, err
			}
			record.FromCache = true
			return toTranslateResponse(record), nil
		}
	}
	metrics.RecordAnalysisRequest(ctx, false)

	// provider 限流只拦真正出网的调用
	if ok, retryIn := g.limiter.Acquire(ctx); !ok {
		metrics.RecordProviderRateLimited(ctx)
		refund()
		return nil, errors.NewRateLimit(errors.ExternalRateLimited, retryIn)
	}

	prompt := BuildTranslationPrompt(translationContextOf(req.Message, &user, child))

	started := time.Now()
	raw, err := g.provider.Complete(ctx, prompt)
	elapsed := time.Since(started)
	metrics.RecordProviderDuration(ctx, elapsed)

	if err != nil {
		refund()
		var rl *errors.RateLimitError
		if stderrors.As(err, &rl) {
			metrics.RecordProviderRateLimited(ctx)
			return nil, err
		}
		// 服务故障：落一条 failed 记录供后续重试，错误原样上抛
		if _, perr := g.persistResult(ctx, &user, childRef, req.Message, fingerprint, nil, elapsed.Milliseconds(), model.AnalysisStatusFailed, err.Error()); perr != nil {
			logger.Logger.Error("Failed to persist failed analysis", zap.Error(perr))
		}
		return nil, err
	}

	payload, parseErr := ParseProviderResponse(raw)
	fromFallback := false
	if parseErr != nil {
		// 输出格式坏了不影响调用方：退回保底结果，不进缓存
		logger.Logger.Warn("Provider response unparseable, using fallback",
			zap.Int64("user_id", req.UserID),
			zap.Error(parseErr),
		)
		metrics.RecordParseFallback(ctx)
		payload = FallbackPayload()
		fromFallback = true
	}

	record, err := g.persistResult(ctx, &user, childRef, req.Message, fingerprint, payload, elapsed.Milliseconds(), model.AnalysisStatusCompleted, "")
	if err != nil {
		refund()
		return nil, err
	}

	if useCache && !fromFallback {
		g.cache.Set(ctx, fingerprint, payload)
	}

	return toTranslateResponse(record), nil
}

// RetryFailed 对 failed 状态的分析重新发起一次 provider 调用。
// 重试不扣用户额度，但仍受 provider 限流约束。
func (g *Gateway) RetryFailed(ctx context.Context, resultID int64) (*dto.TranslateResponse, error) {
	var record model.EmotionAnalysis
	if err := g.db.WithContext(ctx).Where("public_id = ?", resultID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.AnalysisNotFound
		}
		return nil, err
	}
	if record.Status != model.AnalysisStatusFailed {
		return nil, errors.AnalysisNotRetryable
	}

	var user model.User
	if err := g.db.WithContext(ctx).Where("id = ?", record.UserID).First(&user).Error; err != nil {
		return nil, err
	}
	var child *model.Child
	if record.ChildID != 0 {
		var c model.Child
		if err := g.db.WithContext(ctx).Where("id = ?", record.ChildID).First(&c).Error; err == nil {
			child = &c
		}
	}

	if ok, retryIn := g.limiter.Acquire(ctx); !ok {
		metrics.RecordProviderRateLimited(ctx)
		return nil, errors.NewRateLimit(errors.ExternalRateLimited, retryIn)
	}

	prompt := BuildTranslationPrompt(translationContextOf(record.OriginalMessage, &user, child))

	started := time.Now()
	raw, err := g.provider.Complete(ctx, prompt)
	elapsed := time.Since(started)
	metrics.RecordProviderDuration(ctx, elapsed)

	if err != nil {
		var rl *errors.RateLimitError
		if stderrors.As(err, &rl) {
			metrics.RecordProviderRateLimited(ctx)
			return nil, err
		}
		record.FailureReason = err.Error()
		if uerr := g.db.WithContext(ctx).Model(&record).
			Update("failure_reason", record.FailureReason).Error; uerr != nil {
			logger.Logger.Error("Failed to update failure reason", zap.Error(uerr))
		}
		return nil, err
	}

	payload, parseErr := ParseProviderResponse(raw)
	fromFallback := false
	if parseErr != nil {
		metrics.RecordParseFallback(ctx)
		payload = FallbackPayload()
		fromFallback = true
	}

	record.ApplyPayload(payload)
	record.Status = model.AnalysisStatusCompleted
	record.FailureReason = ""
	record.ProcessingTimeMs = elapsed.Milliseconds()
	if err := g.db.WithContext(ctx).Save(&record).Error; err != nil {
		return nil, err
	}

	if !fromFallback {
		g.cache.Set(ctx, record.Fingerprint, payload)
	}

	return toTranslateResponse(&record), nil
}

// GetResult 查询单条分析记录
func (g *Gateway) GetResult(ctx context.Context, resultID int64) (*dto.TranslateResponse, error) {
	var record model.EmotionAnalysis
	if err := g.db.WithContext(ctx).Where("public_id = ?", resultID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.AnalysisNotFound
		}
		return nil, err
	}
	return toTranslateResponse(&record), nil
}

// GetHistory 某个用户最近的分析记录，按创建时间倒序。
// childID 为 0 时返回该用户全部记录。
func (g *Gateway) GetHistory(ctx context.Context, userID, childID int64, limit int) ([]*dto.TranslateResponse, error) {
	var user model.User
	if err := g.db.WithContext(ctx).Where("public_id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.UserNotFound
		}
		return nil, err
	}

	if limit <= 0 {
		limit = 20
	}

	query := g.db.WithContext(ctx).Where("user_id = ?", user.ID)
	if childID != 0 {
		var child model.Child
		err := g.db.WithContext(ctx).
			Where("public_id = ? AND parent_id = ?", childID, user.ID).
			First(&child).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, errors.ChildNotFound
			}
			return nil, err
		}
		query = query.Where("child_id = ?", child.ID)
	}

	var records []model.EmotionAnalysis
	if err := query.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}

	views := make([]*dto.TranslateResponse, 0, len(records))
	for i := range records {
		views = append(views, toTranslateResponse(&records[i]))
	}
	return views, nil
}

func (g *Gateway) persistResult(
	ctx context.Context,
	user *model.User,
	childID int64,
	message string,
	fingerprint string,
	payload *model.AnalysisPayload,
	processingMs int64,
	status model.AnalysisStatus,
	failureReason string,
) (*model.EmotionAnalysis, error) {
	publicID, err := snowflake.NextID()
	if err != nil {
		return nil, err
	}

	record := &model.EmotionAnalysis{
		PublicID:         publicID,
		UserID:           user.ID,
		ChildID:          childID,
		Fingerprint:      fingerprint,
		OriginalMessage:  message,
		ProcessingTimeMs: processingMs,
		Status:           status,
		FailureReason:    failureReason,
	}
	if payload != nil {
		record.ApplyPayload(payload)
	}

	if err := g.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func translationContextOf(message string, user *model.User, child *model.Child) TranslationContext {
	tc := TranslationContext{
		Message:       message,
		Bucket:        child.Bucket(),
		Language:      user.LanguageCode,
		ResponseStyle: user.ResponseStyle,
	}
	if child != nil {
		tc.ChildName = child.Name
		if child.PersonalityTraits != "" {
			tc.Traits = strings.Split(child.PersonalityTraits, ",")
			for i := range tc.Traits {
				tc.Traits[i] = strings.TrimSpace(tc.Traits[i])
			}
		}
	}
	return tc
}

func toTranslateResponse(record *model.EmotionAnalysis) *dto.TranslateResponse {
	return &dto.TranslateResponse{
		ResultID:         record.PublicID,
		Status:           string(record.Status),
		Emotions:         record.Emotions,
		Confidence:       record.Confidence,
		ResponseOptions:  record.ResponseOptions,
		Explanation:      record.Explanation,
		MoodScore:        record.MoodScore,
		MoodCategory:     record.MoodCategory,
		ProcessingTimeMs: record.ProcessingTimeMs,
		FromCache:        record.FromCache,
	}
}
