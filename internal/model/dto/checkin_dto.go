package dto

import "time"

// CreateCheckinRequest 创建打卡任务
type CreateCheckinRequest struct {
	UserID      int64      `json:"user_id" vd:"$>0"`
	ChildID     int64      `json:"child_id,omitempty"`
	Type        string     `json:"type,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// CompleteCheckinRequest 完成打卡
type CompleteCheckinRequest struct {
	ResponseText     string            `json:"response_text" vd:"len($)>0"`
	ResponseType     string            `json:"response_type,omitempty"`
	ResponseMetadata map[string]string `json:"response_metadata,omitempty"`
}

// SkipCheckinRequest 跳过打卡
type SkipCheckinRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RescheduleCheckinRequest 改期
type RescheduleCheckinRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// CheckinView 返回给消息端的任务视图
type CheckinView struct {
	TaskID           int64              `json:"task_id"`
	UserID           int64              `json:"user_id"`
	ChildID          int64              `json:"child_id,omitempty"`
	Type             string             `json:"type"`
	Question         string             `json:"question"`
	Status           string             `json:"status"`
	ScheduledAt      time.Time          `json:"scheduled_at"`
	ResponseText     string             `json:"response_text,omitempty"`
	DetectedEmotions []string           `json:"detected_emotions,omitempty"`
	EmotionIntensity map[string]float64 `json:"emotion_intensity,omitempty"`
	MoodScore        *float64           `json:"mood_score,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	SkipReason       string             `json:"skip_reason,omitempty"`
}
