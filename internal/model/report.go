package model

import "time"

// WeeklyReport 周报，按 (user_id, child_id, week_start) 唯一，生成后不再修改。
// child_id 用 0 表示家庭整体报告，这样唯一索引不会被 NULL 绕开。
type WeeklyReport struct {
	BaseModel
	PublicID int64 `gorm:"uniqueIndex;not null" json:"public_id"`
	UserID   int64 `gorm:"not null;uniqueIndex:idx_reports_owner_week" json:"user_id"`
	ChildID  int64 `gorm:"not null;default:0;uniqueIndex:idx_reports_owner_week" json:"child_id"`

	WeekStart time.Time `gorm:"not null;uniqueIndex:idx_reports_owner_week" json:"week_start"`
	WeekEnd   time.Time `gorm:"not null" json:"week_end"`

	Summary         string         `gorm:"type:text;not null;default:''" json:"summary"`
	EmotionTrends   map[string]int `gorm:"serializer:json" json:"emotion_trends,omitempty"`
	Insights        []string       `gorm:"serializer:json" json:"insights,omitempty"`
	Recommendations []string       `gorm:"serializer:json" json:"recommendations,omitempty"`

	// 活跃度直方图，key 为 Monday..Sunday
	ActivityByWeekday map[string]int `gorm:"serializer:json" json:"activity_by_weekday,omitempty"`

	TotalCheckins    int      `gorm:"not null;default:0" json:"total_checkins"`
	TotalAnalyses    int      `gorm:"not null;default:0" json:"total_analyses"`
	AverageMoodScore *float64 `json:"average_mood_score,omitempty"`

	GeneratedAt  time.Time `gorm:"not null" json:"generated_at"`
	ModelVersion string    `gorm:"type:varchar(64);not null;default:''" json:"model_version"`
}

// TableName 指定表名
func (WeeklyReport) TableName() string {
	return "weekly_reports"
}
