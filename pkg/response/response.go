package response

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/gbalchidi/family-emotions-app/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func errorToHTTPStatus(def errors.Definition) int {
	switch def.Code {
	case "SUBJECT_QUOTA_EXCEEDED", "EXTERNAL_RATE_LIMITED", "TOO_MANY_REQUESTS":
		return http.StatusTooManyRequests // 429
	case "VALIDATION_FAILED", "CHECKIN_NOT_RESCHEDULABLE", "ANALYSIS_NOT_RETRYABLE":
		return http.StatusBadRequest // 400
	case "USER_NOT_FOUND", "CHILD_NOT_FOUND", "CHECKIN_NOT_FOUND", "ANALYSIS_NOT_FOUND":
		return http.StatusNotFound // 404
	case "CHECKIN_ALREADY_COMPLETED":
		return http.StatusConflict // 409
	case "EXTERNAL_SERVICE_FAILED":
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// Error 返回错误响应；限流错误附带 Retry-After 头和 retry_after_seconds 详情
func Error(ctx context.Context, c *app.RequestContext, err error) {
	var code, message string
	var details map[string]interface{}
	statusCode := http.StatusInternalServerError

	var def errors.Definition
	if stderrors.As(err, &def) {
		code = def.Code
		message = def.Message
		statusCode = errorToHTTPStatus(def)
	} else {
		code = "INTERNAL_ERROR"
		message = err.Error()
	}

	if retryAfter := errors.RetryAfterOf(err); retryAfter > 0 {
		seconds := int(retryAfter.Seconds())
		c.Header("Retry-After", strconv.Itoa(seconds))
		details = map[string]interface{}{"retry_after_seconds": seconds}
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	var code, message string
	statusCode := http.StatusInternalServerError

	var def errors.Definition
	if stderrors.As(err, &def) {
		code = def.Code
		message = def.Message
		statusCode = errorToHTTPStatus(def)
	} else {
		code = "INTERNAL_ERROR"
		message = err.Error()
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
