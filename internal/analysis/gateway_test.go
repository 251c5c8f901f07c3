package analysis

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gbalchidi/family-emotions-app/internal/model"
	"github.com/gbalchidi/family-emotions-app/internal/model/dto"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/snowflake"
)

type fakeProvider struct {
	response string
	err      error
	calls    int
}

func (p *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

type fakeCache struct {
	store map[string]*model.AnalysisPayload
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string]*model.AnalysisPayload)}
}

func (c *fakeCache) Get(ctx context.Context, fp string) (*model.AnalysisPayload, bool) {
	payload, ok := c.store[fp]
	return payload, ok
}

func (c *fakeCache) Set(ctx context.Context, fp string, payload *model.AnalysisPayload) {
	c.sets++
	c.store[fp] = payload
}

type fakeLimiter struct {
	allow   bool
	retryIn time.Duration
}

func (l *fakeLimiter) Acquire(ctx context.Context) (bool, time.Duration) {
	return l.allow, l.retryIn
}

type fakeQuota struct {
	limit int
	used  map[int64]int
}

func newFakeQuota(limit int) *fakeQuota {
	return &fakeQuota{limit: limit, used: make(map[int64]int)}
}

func (q *fakeQuota) Consume(ctx context.Context, scope string, subjectID int64) (bool, time.Duration) {
	q.used[subjectID]++
	if q.used[subjectID] > q.limit {
		return false, time.Hour
	}
	return true, 0
}

func (q *fakeQuota) Refund(ctx context.Context, scope string, subjectID int64) {
	q.used[subjectID]--
}

func setupGatewayDB(t *testing.T) (*gorm.DB, *model.User) {
	t.Helper()

	if err := snowflake.Init(0, 0); err != nil {
		t.Fatalf("init snowflake: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Child{}, &model.EmotionAnalysis{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	user := &model.User{
		PublicID:      1001,
		TelegramID:    555001,
		Nickname:      "anna",
		IsActive:      true,
		LanguageCode:  "en",
		ResponseStyle: model.ResponseStyleBalanced,
		Timezone:      "UTC",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return db, user
}

func TestTranslateHappyPath(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{response: validProviderJSON}
	cache := newFakeCache()
	gw := NewGateway(db, provider, cache, &fakeLimiter{allow: true}, newFakeQuota(10))

	resp, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID:  user.PublicID,
		Message: "He slammed the door and went quiet",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != string(model.AnalysisStatusCompleted) {
		t.Errorf("status = %s", resp.Status)
	}
	if resp.FromCache {
		t.Error("first call must not be served from cache")
	}
	if len(resp.Emotions) == 0 || len(resp.ResponseOptions) != 3 {
		t.Errorf("payload not populated: %+v", resp)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d", provider.calls)
	}
	if cache.sets != 1 {
		t.Errorf("cache writes = %d", cache.sets)
	}
}

func TestTranslateCacheHit(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{response: validProviderJSON}
	cache := newFakeCache()
	gw := NewGateway(db, provider, cache, &fakeLimiter{allow: true}, newFakeQuota(10))

	req := &dto.TranslateRequest{UserID: user.PublicID, Message: "She cried at bedtime"}

	first, err := gw.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := gw.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if !second.FromCache {
		t.Error("second call should be served from cache")
	}
	if second.ProcessingTimeMs != 0 {
		t.Errorf("cached result processing time = %d, want 0", second.ProcessingTimeMs)
	}
	if provider.calls != 1 {
		t.Errorf("provider must be called once, got %d", provider.calls)
	}

	// 缓存结果与原结果逐项一致
	if second.Confidence != first.Confidence ||
		second.Explanation != first.Explanation ||
		second.MoodScore != first.MoodScore ||
		len(second.Emotions) != len(first.Emotions) ||
		len(second.ResponseOptions) != len(first.ResponseOptions) {
		t.Errorf("cached payload differs from original:\nfirst: %+v\nsecond: %+v", first, second)
	}
}

func TestTranslateUseCacheFalseBypasses(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{response: validProviderJSON}
	cache := newFakeCache()
	gw := NewGateway(db, provider, cache, &fakeLimiter{allow: true}, newFakeQuota(10))

	useCache := false
	req := &dto.TranslateRequest{UserID: user.PublicID, Message: "same message", UseCache: &useCache}

	for i := 0; i < 2; i++ {
		if _, err := gw.Translate(context.Background(), req); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if provider.calls != 2 {
		t.Errorf("use_cache=false must always hit the provider, calls = %d", provider.calls)
	}
	if cache.sets != 0 {
		t.Errorf("use_cache=false must not populate the cache, sets = %d", cache.sets)
	}
}

func TestTranslateSubjectQuotaBoundary(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{response: validProviderJSON}
	useCache := false
	gw := NewGateway(db, provider, newFakeCache(), &fakeLimiter{allow: true}, newFakeQuota(5))

	for i := 0; i < 5; i++ {
		if _, err := gw.Translate(context.Background(), &dto.TranslateRequest{
			UserID: user.PublicID, Message: "message", UseCache: &useCache,
		}); err != nil {
			t.Fatalf("call %d within quota failed: %v", i+1, err)
		}
	}

	_, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "message", UseCache: &useCache,
	})
	if !stderrors.Is(err, errors.SubjectQuotaExceeded) {
		t.Fatalf("6th call should exceed quota, got %v", err)
	}
	if errors.RetryAfterOf(err) <= 0 {
		t.Error("quota error must carry a positive retry-after")
	}
}

func TestTranslateProviderRateLimited(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{err: errors.NewRateLimit(errors.ExternalRateLimited, 30*time.Second)}
	cache := newFakeCache()
	gw := NewGateway(db, provider, cache, &fakeLimiter{allow: true}, newFakeQuota(10))

	_, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "a new message",
	})
	if !stderrors.Is(err, errors.ExternalRateLimited) {
		t.Fatalf("expected ExternalRateLimited, got %v", err)
	}
	if got := errors.RetryAfterOf(err); got != 30*time.Second {
		t.Errorf("retry-after = %v, want 30s", got)
	}
	if cache.sets != 0 {
		t.Error("nothing may be cached on a rate-limited call")
	}

	// 限流不落 failed 记录
	var count int64
	db.Model(&model.EmotionAnalysis{}).Count(&count)
	if count != 0 {
		t.Errorf("rate-limited call must not persist records, found %d", count)
	}
}

func TestTranslateLocalLimiterRejects(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{response: validProviderJSON}
	gw := NewGateway(db, provider, newFakeCache(), &fakeLimiter{allow: false, retryIn: 10 * time.Second}, newFakeQuota(10))

	_, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "a new message",
	})
	if !stderrors.Is(err, errors.ExternalRateLimited) {
		t.Fatalf("expected ExternalRateLimited, got %v", err)
	}
	if provider.calls != 0 {
		t.Error("local limiter rejection must not reach the provider")
	}
}

func TestTranslateFailuresDoNotBurnQuota(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{err: errors.ExternalServiceFailed}
	quota := newFakeQuota(1)
	gw := NewGateway(db, provider, newFakeCache(), &fakeLimiter{allow: true}, quota)
	noCache := false

	// provider 故障的请求没交付结果，额度必须退回
	_, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "the provider is down", UseCache: &noCache,
	})
	if !stderrors.Is(err, errors.ExternalServiceFailed) {
		t.Fatalf("expected ExternalServiceFailed, got %v", err)
	}
	if quota.used[user.ID] != 0 {
		t.Errorf("failed call burned quota: used = %d", quota.used[user.ID])
	}

	// 恢复后同一天的额度仍然可用
	provider.err = nil
	provider.response = validProviderJSON
	if _, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "the provider is back", UseCache: &noCache,
	}); err != nil {
		t.Fatalf("call after refund failed: %v", err)
	}
	if quota.used[user.ID] != 1 {
		t.Errorf("delivered result must consume exactly one credit, used = %d", quota.used[user.ID])
	}
}

func TestTranslateLimiterRejectionRefundsQuota(t *testing.T) {
	db, user := setupGatewayDB(t)
	limiter := &fakeLimiter{allow: false, retryIn: 10 * time.Second}
	quota := newFakeQuota(1)
	gw := NewGateway(db, &fakeProvider{response: validProviderJSON}, newFakeCache(), limiter, quota)
	noCache := false

	if _, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "hello", UseCache: &noCache,
	}); !stderrors.Is(err, errors.ExternalRateLimited) {
		t.Fatalf("expected ExternalRateLimited, got %v", err)
	}
	if quota.used[user.ID] != 0 {
		t.Errorf("limiter rejection burned quota: used = %d", quota.used[user.ID])
	}

	limiter.allow = true
	if _, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "hello again", UseCache: &noCache,
	}); err != nil {
		t.Fatalf("call after limiter recovery failed: %v", err)
	}
}

func TestTranslateProviderFailureThenRetry(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{err: errors.ExternalServiceFailed}
	cache := newFakeCache()
	gw := NewGateway(db, provider, cache, &fakeLimiter{allow: true}, newFakeQuota(10))

	_, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "the provider is down",
	})
	if !stderrors.Is(err, errors.ExternalServiceFailed) {
		t.Fatalf("expected ExternalServiceFailed, got %v", err)
	}
	if cache.sets != 0 {
		t.Error("failures must not be cached")
	}

	// 故障留下了一条可重试的 failed 记录
	var record model.EmotionAnalysis
	if err := db.Where("status = ?", model.AnalysisStatusFailed).First(&record).Error; err != nil {
		t.Fatalf("failed record not persisted: %v", err)
	}

	// provider 恢复后重试成功
	provider.err = nil
	provider.response = validProviderJSON
	resp, err := gw.RetryFailed(context.Background(), record.PublicID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if resp.Status != string(model.AnalysisStatusCompleted) {
		t.Errorf("retried status = %s", resp.Status)
	}
	if cache.sets != 1 {
		t.Errorf("successful retry should populate the cache, sets = %d", cache.sets)
	}

	// 已完成的记录不能再重试
	if _, err := gw.RetryFailed(context.Background(), record.PublicID); !stderrors.Is(err, errors.AnalysisNotRetryable) {
		t.Fatalf("expected AnalysisNotRetryable, got %v", err)
	}
}

func TestTranslateMalformedOutputFallsBack(t *testing.T) {
	db, user := setupGatewayDB(t)
	provider := &fakeProvider{response: "Sorry, I cannot produce JSON today."}
	cache := newFakeCache()
	gw := NewGateway(db, provider, cache, &fakeLimiter{allow: true}, newFakeQuota(10))

	resp, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "he hid under the table",
	})
	if err != nil {
		t.Fatalf("malformed provider output must not surface an error: %v", err)
	}
	if resp.Status != string(model.AnalysisStatusCompleted) {
		t.Errorf("status = %s", resp.Status)
	}
	if resp.Confidence >= 0.5 {
		t.Errorf("fallback confidence should be low, got %v", resp.Confidence)
	}
	if cache.sets != 0 {
		t.Error("fallback payloads must not be cached")
	}
}

func TestTranslateValidation(t *testing.T) {
	db, user := setupGatewayDB(t)
	gw := NewGateway(db, &fakeProvider{response: validProviderJSON}, newFakeCache(), &fakeLimiter{allow: true}, newFakeQuota(10))

	if _, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, Message: "   ",
	}); !stderrors.Is(err, errors.ValidationFailed) {
		t.Errorf("blank message: expected ValidationFailed, got %v", err)
	}

	if _, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: 999999, Message: "hello",
	}); !stderrors.Is(err, errors.UserNotFound) {
		t.Errorf("unknown user: expected UserNotFound, got %v", err)
	}

	if _, err := gw.Translate(context.Background(), &dto.TranslateRequest{
		UserID: user.PublicID, ChildID: 424242, Message: "hello",
	}); !stderrors.Is(err, errors.ChildNotFound) {
		t.Errorf("unknown child: expected ChildNotFound, got %v", err)
	}
}

func TestGetHistory(t *testing.T) {
	db, user := setupGatewayDB(t)
	child := &model.Child{PublicID: 3001, ParentID: user.ID, Name: "Mia", Age: 7}
	if err := db.Create(child).Error; err != nil {
		t.Fatalf("create child: %v", err)
	}

	provider := &fakeProvider{response: validProviderJSON}
	gw := NewGateway(db, provider, newFakeCache(), &fakeLimiter{allow: true}, newFakeQuota(10))

	noCache := false
	messages := []string{"first message", "second message", "third message"}
	for _, msg := range messages {
		if _, err := gw.Translate(context.Background(), &dto.TranslateRequest{
			UserID: user.PublicID, ChildID: child.PublicID, Message: msg, UseCache: &noCache,
		}); err != nil {
			t.Fatalf("translate %q: %v", msg, err)
		}
	}

	views, err := gw.GetHistory(context.Background(), user.PublicID, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("history length = %d, want 3", len(views))
	}

	views, err = gw.GetHistory(context.Background(), user.PublicID, child.PublicID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Errorf("limited history length = %d, want 2", len(views))
	}

	if _, err := gw.GetHistory(context.Background(), 999999, 0, 10); !stderrors.Is(err, errors.UserNotFound) {
		t.Errorf("unknown user: expected UserNotFound, got %v", err)
	}
	if _, err := gw.GetHistory(context.Background(), user.PublicID, 424242, 10); !stderrors.Is(err, errors.ChildNotFound) {
		t.Errorf("unknown child: expected ChildNotFound, got %v", err)
	}
}
