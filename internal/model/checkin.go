package model

import "time"

// CheckinStatus 打卡任务状态，Scheduled 为唯一非终态
type CheckinStatus string

const (
	CheckinStatusScheduled CheckinStatus = "scheduled"
	CheckinStatusCompleted CheckinStatus = "completed"
	CheckinStatusSkipped   CheckinStatus = "skipped"
)

// IsTerminal 终态之后不允许任何状态迁移
func (s CheckinStatus) IsTerminal() bool {
	return s == CheckinStatusCompleted || s == CheckinStatusSkipped
}

// CheckinType 任务类型
type CheckinType string

const (
	CheckinTypeDaily  CheckinType = "daily"
	CheckinTypeWeekly CheckinType = "weekly"
	CheckinTypeCustom CheckinType = "custom"
)

// ResponseType 家长回复的形式
type ResponseType string

const (
	ResponseTypeText  ResponseType = "text"
	ResponseTypeVoice ResponseType = "voice"
	ResponseTypeEmoji ResponseType = "emoji"
)

// CheckinTask 打卡任务，仅由 CheckinService 创建和变更
// ChildID 为 0 表示面向全家的通用任务
type CheckinTask struct {
	BaseModel
	PublicID int64 `gorm:"uniqueIndex;not null" json:"public_id"`
	UserID   int64 `gorm:"not null;index:idx_checkins_user_status" json:"user_id"`
	ChildID  int64 `gorm:"not null;default:0;index:idx_checkins_child" json:"child_id"`

	Type        CheckinType   `gorm:"type:varchar(16);not null;default:'daily'" json:"type"`
	Question    string        `gorm:"type:text;not null" json:"question"`
	Status      CheckinStatus `gorm:"type:varchar(16);not null;default:'scheduled';index:idx_checkins_user_status;index:idx_checkins_status_sched" json:"status"`
	ScheduledAt time.Time     `gorm:"not null;index:idx_checkins_status_sched" json:"scheduled_at"`

	// 完成后填充
	ResponseText     string             `gorm:"type:text;not null;default:''" json:"response_text"`
	ResponseType     ResponseType       `gorm:"type:varchar(16);not null;default:'text'" json:"response_type"`
	ResponseMetadata map[string]string  `gorm:"serializer:json" json:"response_metadata,omitempty"`
	DetectedEmotions []string           `gorm:"serializer:json" json:"detected_emotions,omitempty"`
	EmotionIntensity map[string]float64 `gorm:"serializer:json" json:"emotion_intensity,omitempty"`
	MoodScore        *float64           `json:"mood_score,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`

	// 跳过时填充
	SkipReason string `gorm:"type:varchar(255);not null;default:''" json:"skip_reason"`
}

// TableName 指定表名
func (CheckinTask) TableName() string {
	return "checkin_tasks"
}
