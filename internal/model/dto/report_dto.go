package dto

import "time"

// GenerateReportRequest 生成（或取回已生成的）周报
type GenerateReportRequest struct {
	UserID    int64      `json:"user_id" vd:"$>0"`
	ChildID   int64      `json:"child_id,omitempty"`
	WeekStart *time.Time `json:"week_start,omitempty"` // 缺省为最近的周一 00:00 UTC
}

// ReportView 周报视图
type ReportView struct {
	ReportID          int64          `json:"report_id"`
	UserID            int64          `json:"user_id"`
	ChildID           int64          `json:"child_id,omitempty"`
	WeekStart         time.Time      `json:"week_start"`
	WeekEnd           time.Time      `json:"week_end"`
	Summary           string         `json:"summary"`
	EmotionTrends     map[string]int `json:"emotion_trends,omitempty"`
	Insights          []string       `json:"insights,omitempty"`
	Recommendations   []string       `json:"recommendations,omitempty"`
	ActivityByWeekday map[string]int `json:"activity_by_weekday,omitempty"`
	TotalCheckins     int            `json:"total_checkins"`
	TotalAnalyses     int            `json:"total_analyses"`
	AverageMoodScore  *float64       `json:"average_mood_score,omitempty"`
	GeneratedAt       time.Time      `json:"generated_at"`
}
