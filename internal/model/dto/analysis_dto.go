package dto

import "github.com/gbalchidi/family-emotions-app/internal/model"

// TranslateRequest 情绪翻译请求
type TranslateRequest struct {
	UserID   int64  `json:"user_id" vd:"$>0"`
	ChildID  int64  `json:"child_id,omitempty"`
	Message  string `json:"message" vd:"len($)>0"`
	UseCache *bool  `json:"use_cache,omitempty"` // 缺省为 true
}

// TranslateResponse 情绪翻译结果
type TranslateResponse struct {
	ResultID         int64                  `json:"result_id"`
	Status           string                 `json:"status"`
	Emotions         []string               `json:"emotions,omitempty"`
	Confidence       float64                `json:"confidence"`
	ResponseOptions  []model.ResponseOption `json:"response_options,omitempty"`
	Explanation      string                 `json:"explanation,omitempty"`
	MoodScore        float64                `json:"mood_score"`
	MoodCategory     string                 `json:"mood_category"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
	FromCache        bool                   `json:"from_cache"`
}
