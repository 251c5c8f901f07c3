package service

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

type stubTranslator struct {
	resp   *dto.TranslateResponse
	err    error
	calls  int
	onCall func()
}

func (t *stubTranslator) Translate(ctx context.Context, req *dto.TranslateRequest) (*dto.TranslateResponse, error) {
	t.calls++
	if t.onCall != nil {
		t.onCall()
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.resp, nil
}

type stubQuota struct {
	limit int
	used  map[string]int
}

func newStubQuota(limit int) *stubQuota {
	return &stubQuota{limit: limit, used: make(map[string]int)}
}

func (q *stubQuota) Consume(ctx context.Context, scope string, subjectID int64) (bool, time.Duration) {
	q.used[scope]++
	if q.used[scope] > q.limit {
		return false, time.Hour
	}
	return true, 0
}

func setupServiceDB(t *testing.T) *gorm.DB {
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
	err = db.AutoMigrate(
		&model.User{}, &model.Child{}, &model.CheckinTask{},
		&model.EmotionAnalysis{}, &model.WeeklyReport{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedFamily(t *testing.T, db *gorm.DB) (*model.User, *model.Child) {
	t.Helper()

	user := &model.User{
		PublicID:      2001,
		TelegramID:    555002,
		Nickname:      "maria",
		IsActive:      true,
		LanguageCode:  "en",
		ResponseStyle: model.ResponseStyleBalanced,
		Timezone:      "UTC",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	child := &model.Child{
		PublicID: 3001,
		ParentID: user.ID,
		Name:     "Lev",
		Age:      7,
	}
	if err := db.Create(child).Error; err != nil {
		t.Fatalf("create child: %v", err)
	}
	return user, child
}

func newTestCheckinService(db *gorm.DB, translator Translator, quota QuotaConsumer) *CheckinService {
	return NewCheckinService(db, translator, quota, CheckinServiceConfig{
		SendTimes: []string{"09:00", "18:00"},
	})
}

func happyTranslator() *stubTranslator {
	return &stubTranslator{resp: &dto.TranslateResponse{
		Status:     string(model.AnalysisStatusCompleted),
		Emotions:   []string{"joy"},
		Confidence: 0.9,
		MoodScore:  1,
	}}
}

func TestCheckinLifecycle(t *testing.T) {
	db := setupServiceDB(t)
	user, child := seedFamily(t, db)
	svc := newTestCheckinService(db, happyTranslator(), newStubQuota(10))
	ctx := context.Background()

	created, err := svc.Create(ctx, &dto.CreateCheckinRequest{
		UserID:  user.PublicID,
		ChildID: child.PublicID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != string(model.CheckinStatusScheduled) {
		t.Errorf("status = %s", created.Status)
	}
	if created.Question == "" {
		t.Error("question must be selected at creation")
	}
	if created.ChildID != child.PublicID {
		t.Errorf("view child id = %d, want %d", created.ChildID, child.PublicID)
	}

	completed, err := svc.Complete(ctx, created.TaskID, &dto.CompleteCheckinRequest{
		ResponseText: "He said school was great today!",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != string(model.CheckinStatusCompleted) {
		t.Errorf("status = %s", completed.Status)
	}
	if completed.MoodScore == nil || *completed.MoodScore != 1 {
		t.Errorf("mood score = %v", completed.MoodScore)
	}
	if len(completed.DetectedEmotions) != 1 || completed.DetectedEmotions[0] != "joy" {
		t.Errorf("emotions = %v", completed.DetectedEmotions)
	}
	if completed.CompletedAt == nil {
		t.Error("completed_at must be set")
	}

	// 终态后的任何迁移都被拒绝
	if _, err := svc.Complete(ctx, created.TaskID, &dto.CompleteCheckinRequest{ResponseText: "again"}); !stderrors.Is(err, errors.CheckinAlreadyCompleted) {
		t.Errorf("second complete: expected CheckinAlreadyCompleted, got %v", err)
	}
	if _, err := svc.Skip(ctx, created.TaskID, "changed my mind"); !stderrors.Is(err, errors.CheckinAlreadyCompleted) {
		t.Errorf("skip after complete: expected CheckinAlreadyCompleted, got %v", err)
	}
	if _, err := svc.Reschedule(ctx, created.TaskID, time.Now().Add(time.Hour)); !stderrors.Is(err, errors.CheckinNotReschedulable) {
		t.Errorf("reschedule after complete: expected CheckinNotReschedulable, got %v", err)
	}
}

func TestCheckinCompleteNeutralOnScoringFailure(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	translator := &stubTranslator{err: errors.ExternalServiceFailed}
	svc := newTestCheckinService(db, translator, newStubQuota(10))
	ctx := context.Background()

	created, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	completed, err := svc.Complete(ctx, created.TaskID, &dto.CompleteCheckinRequest{
		ResponseText: "rough evening",
	})
	if err != nil {
		t.Fatalf("scoring failure must not block completion: %v", err)
	}
	if completed.Status != string(model.CheckinStatusCompleted) {
		t.Errorf("status = %s", completed.Status)
	}
	if completed.MoodScore == nil || *completed.MoodScore != 0 {
		t.Errorf("mood score should default to neutral 0, got %v", completed.MoodScore)
	}
	if len(completed.DetectedEmotions) != 0 {
		t.Errorf("emotions should be empty on scoring failure, got %v", completed.DetectedEmotions)
	}
}

func TestCheckinSkip(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	svc := newTestCheckinService(db, happyTranslator(), newStubQuota(10))
	ctx := context.Background()

	created, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	skipped, err := svc.Skip(ctx, created.TaskID, "busy day")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if skipped.Status != string(model.CheckinStatusSkipped) || skipped.SkipReason != "busy day" {
		t.Errorf("skipped view: %+v", skipped)
	}

	if _, err := svc.Complete(ctx, created.TaskID, &dto.CompleteCheckinRequest{ResponseText: "late answer"}); !stderrors.Is(err, errors.CheckinAlreadyCompleted) {
		t.Errorf("complete after skip: expected CheckinAlreadyCompleted, got %v", err)
	}
}

func TestCheckinCreateValidation(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	svc := newTestCheckinService(db, happyTranslator(), newStubQuota(10))
	ctx := context.Background()

	if _, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: 99999}); !stderrors.Is(err, errors.UserNotFound) {
		t.Errorf("unknown user: got %v", err)
	}
	if _, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID, ChildID: 88888}); !stderrors.Is(err, errors.ChildNotFound) {
		t.Errorf("unknown child: got %v", err)
	}
	if _, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID, Type: "hourly"}); !stderrors.Is(err, errors.ValidationFailed) {
		t.Errorf("unknown type: got %v", err)
	}
	if _, err := svc.Complete(ctx, 777777, &dto.CompleteCheckinRequest{ResponseText: "hi"}); !stderrors.Is(err, errors.CheckinNotFound) {
		t.Errorf("unknown task: got %v", err)
	}
}

func TestCheckinCreateQuota(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	svc := newTestCheckinService(db, happyTranslator(), newStubQuota(3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID}); err != nil {
			t.Fatalf("create %d: %v", i+1, err)
		}
	}
	_, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID})
	if !stderrors.Is(err, errors.SubjectQuotaExceeded) {
		t.Fatalf("4th create should exceed quota, got %v", err)
	}
	if errors.RetryAfterOf(err) <= 0 {
		t.Error("quota error must carry a positive retry-after")
	}
}

func TestCheckinCreateInvalidTypeKeepsQuota(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	quota := newStubQuota(3)
	svc := newTestCheckinService(db, happyTranslator(), quota)
	ctx := context.Background()

	_, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID, Type: "hourly"})
	if !stderrors.Is(err, errors.ValidationFailed) {
		t.Fatalf("unknown type: got %v", err)
	}
	if quota.used[QuotaScopeCheckin] != 0 {
		t.Errorf("rejected request consumed quota: used = %d", quota.used[QuotaScopeCheckin])
	}
}

func TestCheckinCompleteRacingTerminalState(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	translator := happyTranslator()
	svc := newTestCheckinService(db, translator, newStubQuota(10))
	ctx := context.Background()

	created, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// 评分进行中任务被另一个请求跳过，完成方不能覆盖终态
	translator.onCall = func() {
		db.Model(&model.CheckinTask{}).
			Where("public_id = ?", created.TaskID).
			Updates(map[string]interface{}{
				"status":      model.CheckinStatusSkipped,
				"skip_reason": "handled elsewhere",
			})
	}

	_, err = svc.Complete(ctx, created.TaskID, &dto.CompleteCheckinRequest{ResponseText: "late answer"})
	if !stderrors.Is(err, errors.CheckinAlreadyCompleted) {
		t.Fatalf("complete over a terminal task: got %v", err)
	}

	var task model.CheckinTask
	if err := db.Where("public_id = ?", created.TaskID).First(&task).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if task.Status != model.CheckinStatusSkipped {
		t.Errorf("status = %s, the skip must win", task.Status)
	}
	if task.ResponseText != "" {
		t.Errorf("losing complete leaked fields: response_text = %q", task.ResponseText)
	}
}

func TestGetPendingFIFO(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	svc := newTestCheckinService(db, happyTranslator(), newStubQuota(10))
	ctx := context.Background()

	now := time.Now().UTC()
	times := []time.Time{
		now.Add(-3 * time.Hour),
		now.Add(-1 * time.Hour),
		now.Add(-2 * time.Hour),
		now.Add(2 * time.Hour), // 未到期，不应返回
	}
	for _, at := range times {
		at := at
		if _, err := svc.Create(ctx, &dto.CreateCheckinRequest{UserID: user.PublicID, ScheduledAt: &at}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	pending, err := svc.GetPending(ctx, now, 0)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].ScheduledAt.Before(pending[i-1].ScheduledAt) {
			t.Error("pending tasks must be ordered by scheduled_at ascending")
		}
	}
}

func TestScheduleDailyForAllActiveIdempotent(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	_ = user

	// 再加一个不活跃用户，不该为其排期
	inactive := &model.User{
		PublicID: 2002, TelegramID: 555003, Nickname: "off",
		IsActive: false, LanguageCode: "en",
		ResponseStyle: model.ResponseStyleBalanced, Timezone: "UTC",
	}
	if err := db.Create(inactive).Error; err != nil {
		t.Fatalf("create inactive user: %v", err)
	}

	svc := newTestCheckinService(db, happyTranslator(), newStubQuota(100))
	ctx := context.Background()

	// 固定在 UTC 早上跑，两个发送时刻都还没过
	now := time.Date(2026, 8, 17, 8, 0, 0, 0, time.UTC)

	created, err := svc.ScheduleDailyForAllActive(ctx, now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	// 1 个活跃用户 × 1 个孩子：即便配置了两个发送时刻，
	// 每个组合也只挂一条未完成的 daily
	if created != 1 {
		t.Fatalf("first run created %d, want 1", created)
	}

	again, err := svc.ScheduleDailyForAllActive(ctx, now)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again != 0 {
		t.Errorf("re-run must not duplicate schedules, created %d", again)
	}

	var total int64
	db.Model(&model.CheckinTask{}).Count(&total)
	if total != 1 {
		t.Errorf("total tasks = %d, want 1", total)
	}

	var pending int64
	db.Model(&model.CheckinTask{}).
		Where("status = ? AND type = ?", model.CheckinStatusScheduled, model.CheckinTypeDaily).
		Count(&pending)
	if pending != 1 {
		t.Errorf("scheduled daily tasks = %d, want exactly 1 per (user, child)", pending)
	}
}

func TestScheduleDailySkipsExistingUncompleted(t *testing.T) {
	db := setupServiceDB(t)
	user, child := seedFamily(t, db)
	svc := newTestCheckinService(db, happyTranslator(), newStubQuota(100))
	ctx := context.Background()

	// 前一天的任务还挂着没完成
	leftover := &model.CheckinTask{
		PublicID: 91001, UserID: user.ID, ChildID: child.ID,
		Type: model.CheckinTypeDaily, Question: "q",
		Status:      model.CheckinStatusScheduled,
		ScheduledAt: time.Date(2026, 8, 16, 9, 0, 0, 0, time.UTC),
	}
	if err := db.Create(leftover).Error; err != nil {
		t.Fatalf("seed leftover task: %v", err)
	}

	now := time.Date(2026, 8, 17, 8, 0, 0, 0, time.UTC)
	created, err := svc.ScheduleDailyForAllActive(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if created != 0 {
		t.Fatalf("unfinished daily must block new schedules, created %d", created)
	}

	// 完成之后，下一次执行重新排期
	if _, err := svc.Complete(ctx, leftover.PublicID, &dto.CompleteCheckinRequest{ResponseText: "all good"}); err != nil {
		t.Fatalf("complete leftover: %v", err)
	}
	created, err = svc.ScheduleDailyForAllActive(ctx, now)
	if err != nil {
		t.Fatalf("run after completion: %v", err)
	}
	if created != 1 {
		t.Errorf("created %d after completion, want 1", created)
	}
}

func TestPurgeOld(t *testing.T) {
	db := setupServiceDB(t)
	user, _ := seedFamily(t, db)
	svc := NewCheckinService(db, happyTranslator(), newStubQuota(10), CheckinServiceConfig{
		SendTimes:                   []string{"09:00"},
		RetentionDays:               30,
		FailedAnalysisRetentionDays: 10,
	})
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -60)
	recent := time.Now().UTC().AddDate(0, 0, -1)
	for _, at := range []time.Time{old, recent} {
		task := &model.CheckinTask{
			PublicID: at.UnixNano(), UserID: user.ID,
			Type: model.CheckinTypeDaily, Question: "q",
			Status: model.CheckinStatusScheduled, ScheduledAt: at,
		}
		if err := db.Create(task).Error; err != nil {
			t.Fatalf("seed task: %v", err)
		}
	}

	oldFailed := &model.EmotionAnalysis{
		PublicID: 1, UserID: user.ID, Fingerprint: "f1",
		OriginalMessage: "m", Status: model.AnalysisStatusFailed,
	}
	if err := db.Create(oldFailed).Error; err != nil {
		t.Fatalf("seed analysis: %v", err)
	}
	db.Model(oldFailed).Update("created_at", time.Now().UTC().AddDate(0, 0, -20))

	checkins, analyses, err := svc.PurgeOld(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if checkins != 1 {
		t.Errorf("purged checkins = %d, want 1", checkins)
	}
	if analyses != 1 {
		t.Errorf("purged analyses = %d, want 1", analyses)
	}

	var remaining int64
	db.Model(&model.CheckinTask{}).Count(&remaining)
	if remaining != 1 {
		t.Errorf("remaining tasks = %d, want 1", remaining)
	}
}
