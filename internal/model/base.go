package model

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel 时间戳由 gorm 自动维护，不依赖数据库默认值，
// 测试里的 sqlite 和线上的 postgres 共用同一套模型。
type BaseModel struct {
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
}
