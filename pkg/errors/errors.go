package errors

import (
	"errors"
	"fmt"
	"time"
)

func (d Definition) Error() string {
	return d.Message
}

// Is 按 Code 匹配，附加过细节的错误仍能被 errors.Is 识别。
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// WithDetails 在默认信息后附加细节，Code 不变。
func (d Definition) WithDetails(details string) Definition {
	if details == "" {
		return d
	}
	return Definition{Code: d.Code, Message: d.Message + ": " + details}
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 校验与资源错误。
var (
	ValidationFailed = Definition{Code: "VALIDATION_FAILED", Message: "Validation failed"}
	UserNotFound     = Definition{Code: "USER_NOT_FOUND", Message: "User not found"}
	ChildNotFound    = Definition{Code: "CHILD_NOT_FOUND", Message: "Child not found for user"}
	CheckinNotFound  = Definition{Code: "CHECKIN_NOT_FOUND", Message: "Check-in not found"}
	AnalysisNotFound = Definition{Code: "ANALYSIS_NOT_FOUND", Message: "Analysis result not found"}
)

// 打卡生命周期错误。
var (
	CheckinAlreadyCompleted = Definition{Code: "CHECKIN_ALREADY_COMPLETED", Message: "Check-in already completed"}
	CheckinNotReschedulable = Definition{Code: "CHECKIN_NOT_RESCHEDULABLE", Message: "Check-in can only be rescheduled while scheduled"}
)

// 额度与速率限制，两类限流相互独立：
// SubjectQuotaExceeded 面向用户的每日额度，ExternalRateLimited 面向分析服务。
var (
	SubjectQuotaExceeded = Definition{Code: "SUBJECT_QUOTA_EXCEEDED", Message: "Daily quota exceeded"}
	ExternalRateLimited  = Definition{Code: "EXTERNAL_RATE_LIMITED", Message: "Analysis provider rate limited"}
	TooManyRequests      = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, please slow down"}
)

// 外部服务错误。
var (
	ProviderParseFailed   = Definition{Code: "PROVIDER_PARSE_FAILED", Message: "Analysis provider returned malformed payload"}
	ExternalServiceFailed = Definition{Code: "EXTERNAL_SERVICE_FAILED", Message: "Analysis provider unavailable"}
	AnalysisNotRetryable  = Definition{Code: "ANALYSIS_NOT_RETRYABLE", Message: "Only failed analyses can be retried"}
)

// 调度错误，仅在注册 job 时出现。
var (
	SchedulingInvalid = Definition{Code: "SCHEDULING_INVALID", Message: "Invalid job definition"}
)

// RateLimitError 在 Definition 之上附带 retry-after，
// 两类限流（用户额度 / provider）都通过它向调用方传递可重试时间。
type RateLimitError struct {
	Definition
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", e.Message, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return e.Definition
}

// NewRateLimit 构造带 retry-after 的限流错误。
func NewRateLimit(def Definition, retryAfter time.Duration) *RateLimitError {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return &RateLimitError{Definition: def, RetryAfter: retryAfter}
}

// RetryAfterOf 提取错误中的 retry-after，若不是限流错误返回 0。
func RetryAfterOf(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	ValidationFailed.Code:        ValidationFailed,
	UserNotFound.Code:            UserNotFound,
	ChildNotFound.Code:           ChildNotFound,
	CheckinNotFound.Code:         CheckinNotFound,
	AnalysisNotFound.Code:        AnalysisNotFound,
	CheckinAlreadyCompleted.Code: CheckinAlreadyCompleted,
	CheckinNotReschedulable.Code: CheckinNotReschedulable,
	SubjectQuotaExceeded.Code:    SubjectQuotaExceeded,
	ExternalRateLimited.Code:     ExternalRateLimited,
	TooManyRequests.Code:         TooManyRequests,
	ProviderParseFailed.Code:     ProviderParseFailed,
	ExternalServiceFailed.Code:   ExternalServiceFailed,
	AnalysisNotRetryable.Code:    AnalysisNotRetryable,
	SchedulingInvalid.Code:       SchedulingInvalid,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
