package model

// AnalysisStatus 分析结果状态
type AnalysisStatus string

const (
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// ResponseOption 给家长的一种回应方式
type ResponseOption struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	Approach string `json:"approach"` // validation, teaching, redirection ...
}

// AnalysisPayload 一次情绪分析的结构化结果，
// 同一指纹的缓存条目在 TTL 内逐字节一致
type AnalysisPayload struct {
	Emotions        []string         `json:"emotions"`
	Confidence      float64          `json:"confidence"`
	ResponseOptions []ResponseOption `json:"response_options"`
	Explanation     string           `json:"explanation"`
	MoodScore       float64          `json:"mood_score"`
	MoodCategory    string           `json:"mood_category"`
}

// EmotionAnalysis 持久化的分析记录（AnalysisResult）
// ChildID 为 0 表示无 child 上下文
type EmotionAnalysis struct {
	BaseModel
	PublicID int64 `gorm:"uniqueIndex;not null" json:"public_id"`
	UserID   int64 `gorm:"not null;index:idx_analyses_user_created" json:"user_id"`
	ChildID  int64 `gorm:"not null;default:0" json:"child_id"`

	Fingerprint     string `gorm:"type:char(64);not null;index:idx_analyses_fingerprint" json:"fingerprint"`
	OriginalMessage string `gorm:"type:text;not null" json:"original_message"`

	Emotions         []string         `gorm:"serializer:json" json:"emotions,omitempty"`
	Confidence       float64          `gorm:"not null;default:0" json:"confidence"`
	ResponseOptions  []ResponseOption `gorm:"serializer:json" json:"response_options,omitempty"`
	Explanation      string           `gorm:"type:text;not null;default:''" json:"explanation"`
	MoodScore        float64          `gorm:"not null;default:0" json:"mood_score"`
	MoodCategory     string           `gorm:"type:varchar(16);not null;default:'neutral'" json:"mood_category"`
	ProcessingTimeMs int64            `gorm:"not null;default:0" json:"processing_time_ms"`

	Status        AnalysisStatus `gorm:"type:varchar(16);not null;default:'completed';index:idx_analyses_status" json:"status"`
	FailureReason string         `gorm:"type:varchar(255);not null;default:''" json:"failure_reason"`

	// 仅用于响应，标记结果来自缓存
	FromCache bool `gorm:"-" json:"from_cache"`
}

// TableName 指定表名
func (EmotionAnalysis) TableName() string {
	return "emotion_analyses"
}

// Payload 导出可缓存的结构化结果
func (a *EmotionAnalysis) Payload() *AnalysisPayload {
	return &AnalysisPayload{
		Emotions:        a.Emotions,
		Confidence:      a.Confidence,
		ResponseOptions: a.ResponseOptions,
		Explanation:     a.Explanation,
		MoodScore:       a.MoodScore,
		MoodCategory:    a.MoodCategory,
	}
}

// ApplyPayload 将结构化结果写回记录
func (a *EmotionAnalysis) ApplyPayload(p *AnalysisPayload) {
	a.Emotions = p.Emotions
	a.Confidence = p.Confidence
	a.ResponseOptions = p.ResponseOptions
	a.Explanation = p.Explanation
	a.MoodScore = p.MoodScore
	a.MoodCategory = p.MoodCategory
}

// MoodCategoryOf 将 [-1,1] 的情绪分映射为类别标签
func MoodCategoryOf(score float64) string {
	switch {
	case score <= -0.6:
		return "very_negative"
	case score <= -0.2:
		return "negative"
	case score < 0.2:
		return "neutral"
	case score < 0.6:
		return "positive"
	default:
		return "very_positive"
	}
}
