package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/gbalchidi/family-emotions-app/internal/model/dto"
	"github.com/gbalchidi/family-emotions-app/internal/service"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/response"
)

// CheckinHandler 打卡相关接口
type CheckinHandler struct {
	svc *service.CheckinService
}

func NewCheckinHandler(svc *service.CheckinService) *CheckinHandler {
	return &CheckinHandler{svc: svc}
}

// Create 创建打卡任务
// POST /v1/check-ins
func (h *CheckinHandler) Create(ctx context.Context, c *app.RequestContext) {
	var req dto.CreateCheckinRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	view, err := h.svc.Create(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

// Complete 提交回复并完成打卡
// POST /v1/check-ins/:task_id/complete
func (h *CheckinHandler) Complete(ctx context.Context, c *app.RequestContext) {
	taskID, ok := pathID(ctx, c, "task_id")
	if !ok {
		return
	}

	var req dto.CompleteCheckinRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	view, err := h.svc.Complete(ctx, taskID, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

// Skip 跳过打卡
// POST /v1/check-ins/:task_id/skip
func (h *CheckinHandler) Skip(ctx context.Context, c *app.RequestContext) {
	taskID, ok := pathID(ctx, c, "task_id")
	if !ok {
		return
	}

	var req dto.SkipCheckinRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	view, err := h.svc.Skip(ctx, taskID, req.Reason)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

// Reschedule 改期
// PATCH /v1/check-ins/:task_id/reschedule
func (h *CheckinHandler) Reschedule(ctx context.Context, c *app.RequestContext) {
	taskID, ok := pathID(ctx, c, "task_id")
	if !ok {
		return
	}

	var req dto.RescheduleCheckinRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	view, err := h.svc.Reschedule(ctx, taskID, req.ScheduledAt)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

// Pending 到期待派发的任务
// GET /v1/check-ins/pending?before=&limit=
func (h *CheckinHandler) Pending(ctx context.Context, c *app.RequestContext) {
	before := time.Now().UTC()
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(ctx, c, errors.ValidationFailed.WithDetails("before must be RFC3339"))
			return
		}
		before = parsed
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	views, err := h.svc.GetPendingViews(ctx, before, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, views, map[string]interface{}{
		"count": len(views),
	})
}

// History 打卡历史
// GET /v1/check-ins/history?user_id=&days=&limit=
func (h *CheckinHandler) History(ctx context.Context, c *app.RequestContext) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(ctx, c, errors.ValidationFailed.WithDetails("user_id is required"))
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	views, err := h.svc.GetUserCheckins(ctx, userID, days, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, views, map[string]interface{}{
		"count": len(views),
		"days":  days,
	})
}

// pathID 解析路径里的数字 ID，失败时直接写响应
func pathID(ctx context.Context, c *app.RequestContext, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(ctx, c, errors.ValidationFailed.WithDetails(name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}
