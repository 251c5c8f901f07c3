package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/gbalchidi/family-emotions-app/internal/analysis"
	"github.com/gbalchidi/family-emotions-app/internal/model/dto"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/response"
)

// AnalysisHandler 情绪翻译相关接口
type AnalysisHandler struct {
	gateway *analysis.Gateway
}

func NewAnalysisHandler(gateway *analysis.Gateway) *AnalysisHandler {
	return &AnalysisHandler{gateway: gateway}
}

// Translate 发起情绪翻译
// POST /v1/translations
func (h *AnalysisHandler) Translate(ctx context.Context, c *app.RequestContext) {
	var req dto.TranslateRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	resp, err := h.gateway.Translate(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, resp)
}

// Retry 重试一次失败的分析
// POST /v1/translations/:result_id/retry
func (h *AnalysisHandler) Retry(ctx context.Context, c *app.RequestContext) {
	resultID, ok := pathID(ctx, c, "result_id")
	if !ok {
		return
	}

	resp, err := h.gateway.RetryFailed(ctx, resultID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, resp)
}

// History 最近的分析记录
// GET /v1/translations/history?user_id=&child_id=&limit=
func (h *AnalysisHandler) History(ctx context.Context, c *app.RequestContext) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(ctx, c, errors.ValidationFailed.WithDetails("user_id is required"))
		return
	}
	childID, _ := strconv.ParseInt(c.Query("child_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	views, err := h.gateway.GetHistory(ctx, userID, childID, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, views, map[string]interface{}{
		"count": len(views),
	})
}

// Get 查询一条分析结果
// GET /v1/translations/:result_id
func (h *AnalysisHandler) Get(ctx context.Context, c *app.RequestContext) {
	resultID, ok := pathID(ctx, c, "result_id")
	if !ok {
		return
	}

	resp, err := h.gateway.GetResult(ctx, resultID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, resp)
}
