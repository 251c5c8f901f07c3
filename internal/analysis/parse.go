package analysis

import (
	"encoding/json"
	"strings"

	"github.com/gbalchidi/family-emotions-app/internal/model"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
)

// providerResult provider 返回的 JSON 结构
type providerResult struct {
	Emotions    []string               `json:"emotions"`
	Confidence  float64                `json:"confidence"`
	Responses   []model.ResponseOption `json:"responses"`
	Explanation string                 `json:"explanation"`
}

// ParseProviderResponse 从 provider 的原始文本中提取并校验结构化结果。
// provider 偶尔会在 JSON 外包一段说明文字，先裁出首尾花括号之间的部分。
func ParseProviderResponse(raw string) (*model.AnalysisPayload, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errors.ProviderParseFailed.WithDetails("no JSON object in provider response")
	}

	var result providerResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, errors.ProviderParseFailed.WithDetails(err.Error())
	}

	if len(result.Emotions) == 0 {
		return nil, errors.ProviderParseFailed.WithDetails("emotions list is empty")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, errors.ProviderParseFailed.WithDetails("confidence out of range")
	}
	if len(result.Responses) != 3 {
		return nil, errors.ProviderParseFailed.WithDetails("expected exactly 3 response options")
	}
	for _, r := range result.Responses {
		if r.Title == "" || r.Text == "" || r.Approach == "" {
			return nil, errors.ProviderParseFailed.WithDetails("response option missing fields")
		}
	}

	emotions := make([]string, 0, len(result.Emotions))
	for _, e := range result.Emotions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			emotions = append(emotions, e)
		}
	}
	if len(emotions) == 0 {
		return nil, errors.ProviderParseFailed.WithDetails("emotions list is empty")
	}

	score := MoodScore(IntensityFromEmotions(emotions))
	return &model.AnalysisPayload{
		Emotions:        emotions,
		Confidence:      result.Confidence,
		ResponseOptions: result.Responses,
		Explanation:     result.Explanation,
		MoodScore:       score,
		MoodCategory:    model.MoodCategoryOf(score),
	}, nil
}

// FallbackPayload provider 输出无法解析时的保底结果：
// 低置信度的通用建议，保证调用方总能拿到可用的回应。
func FallbackPayload() *model.AnalysisPayload {
	return &model.AnalysisPayload{
		Emotions:   []string{"unclear"},
		Confidence: 0.3,
		ResponseOptions: []model.ResponseOption{
			{
				Title:    "Acknowledge the feeling",
				Text:     "I can see something is bothering you. Want to tell me about it?",
				Approach: "empathetic",
			},
			{
				Title:    "Offer presence",
				Text:     "I'm here with you. We can just sit together for a bit.",
				Approach: "supportive",
			},
			{
				Title:    "Shift the scene",
				Text:     "How about we take a short break and do something different together?",
				Approach: "redirection",
			},
		},
		Explanation:  "The message could not be analyzed in detail. These are general supportive responses that work in most situations.",
		MoodScore:    0,
		MoodCategory: "neutral",
	}
}

// ReportSummary 周报摘要的结构化结果
type ReportSummary struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// ParseReportSummary 解析周报摘要，失败时返回错误由调用方降级
func ParseReportSummary(raw string) (*ReportSummary, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errors.ProviderParseFailed.WithDetails("no JSON object in provider response")
	}

	var summary ReportSummary
	if err := json.Unmarshal([]byte(raw[start:end+1]), &summary); err != nil {
		return nil, errors.ProviderParseFailed.WithDetails(err.Error())
	}
	if summary.Summary == "" {
		return nil, errors.ProviderParseFailed.WithDetails("summary text is empty")
	}
	return &summary, nil
}
