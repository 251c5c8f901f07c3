package model

// CheckinDispatchMessage 派发一条待发送的打卡任务给消息端
type CheckinDispatchMessage struct {
	MessageID   string `json:"message_id"`
	BatchID     string `json:"batch_id"`
	TaskID      int64  `json:"task_id"`
	UserID      int64  `json:"user_id"`
	ChildID     int64  `json:"child_id,omitempty"`
	Question    string `json:"question"`
	ScheduledAt string `json:"scheduled_at"` // RFC3339
}

// ReportReadyMessage 通知消息端周报已生成
type ReportReadyMessage struct {
	MessageID string `json:"message_id"`
	ReportID  int64  `json:"report_id"`
	UserID    int64  `json:"user_id"`
	ChildID   int64  `json:"child_id,omitempty"`
	WeekStart string `json:"week_start"` // RFC3339
}
