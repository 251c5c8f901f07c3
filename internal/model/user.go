package model

import "time"

// ResponseStyle 家长偏好的回复风格，影响提示词与缓存指纹
type ResponseStyle string

const (
	ResponseStyleGentle   ResponseStyle = "gentle"
	ResponseStyleBalanced ResponseStyle = "balanced"
	ResponseStyleDirect   ResponseStyle = "direct"
)

// User 家长账号（Subject）

type User struct {
	BaseModel
	PublicID   int64  `gorm:"uniqueIndex;not null" json:"public_id"`
	TelegramID int64  `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Nickname   string `gorm:"type:varchar(64);not null;default:''" json:"nickname"`
	IsActive   bool   `gorm:"not null;default:true;index:idx_users_active" json:"is_active"`

	// 个性化设置
	LanguageCode  string        `gorm:"type:varchar(8);not null;default:'en'" json:"language_code"`
	ResponseStyle ResponseStyle `gorm:"type:varchar(16);not null;default:'balanced'" json:"response_style"`
	Timezone      string        `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`

	// 每日请求计数镜像，额度判定以 Redis 计数为准（按 UTC 零点重置）
	DailyRequestsCount int        `gorm:"not null;default:0" json:"daily_requests_count"`
	LastRequestReset   *time.Time `json:"last_request_reset,omitempty"`

	Children []Child `gorm:"foreignKey:ParentID;references:ID" json:"children,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Child 孩子档案（Dependent），归属唯一的家长
type Child struct {
	BaseModel
	PublicID int64  `gorm:"uniqueIndex;not null" json:"public_id"`
	ParentID int64  `gorm:"not null;index:idx_children_parent" json:"parent_id"`
	Name     string `gorm:"type:varchar(64);not null" json:"name"`
	Age      int    `gorm:"not null" json:"age"`

	// 提示词上下文
	PersonalityTraits string `gorm:"type:text;not null;default:''" json:"personality_traits"`
	Interests         string `gorm:"type:text;not null;default:''" json:"interests"`
	SpecialNeeds      string `gorm:"type:text;not null;default:''" json:"special_needs"`
}

// TableName 指定表名
func (Child) TableName() string {
	return "children"
}

// AgeBucket 年龄分桶，问题库和缓存指纹都按桶区分
type AgeBucket string

const (
	AgeBucketToddler   AgeBucket = "toddler"    // 0-3 岁
	AgeBucketPreschool AgeBucket = "preschool"  // 4-5 岁
	AgeBucketSchoolAge AgeBucket = "school_age" // 6-12 岁
	AgeBucketTeen      AgeBucket = "teen"       // 13+ 岁
	AgeBucketGeneric   AgeBucket = "generic"    // 无 child 上下文
)

// BucketForAge 年龄到分桶的全函数，任何输入都有归属
func BucketForAge(age int) AgeBucket {
	switch {
	case age <= 3:
		return AgeBucketToddler
	case age <= 5:
		return AgeBucketPreschool
	case age <= 12:
		return AgeBucketSchoolAge
	default:
		return AgeBucketTeen
	}
}

// Bucket 返回该孩子所属年龄分桶
func (c *Child) Bucket() AgeBucket {
	if c == nil {
		return AgeBucketGeneric
	}
	return BucketForAge(c.Age)
}
