package database

import (
	"gorm.io/gorm"

	"github.com/gbalchidi/family-emotions-app/internal/model"
)

// Migrate 执行自动迁移。
// weekly_reports 的 (user_id, child_id, week_start) 唯一索引由模型 tag 声明，
// child_id 用 0 表示「无 child」，避免 NULL 绕过唯一约束。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Child{},
		&model.CheckinTask{},
		&model.EmotionAnalysis{},
		&model.WeeklyReport{},
	)
}
