package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/gbalchidi/family-emotions-app/internal/model/dto"
	"github.com/gbalchidi/family-emotions-app/internal/service"
	"github.com/gbalchidi/family-emotions-app/pkg/response"
)

// ReportHandler 周报相关接口
type ReportHandler struct {
	svc *service.ReportService
}

func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// Generate 生成（或取回）一份周报
// POST /v1/reports/weekly
func (h *ReportHandler) Generate(ctx context.Context, c *app.RequestContext) {
	var req dto.GenerateReportRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	view, err := h.svc.Generate(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

// Get 查询一份周报
// GET /v1/reports/weekly/:report_id
func (h *ReportHandler) Get(ctx context.Context, c *app.RequestContext) {
	reportID, ok := pathID(ctx, c, "report_id")
	if !ok {
		return
	}

	view, err := h.svc.Get(ctx, reportID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}
