package analysis

import (
	"fmt"
	"strings"

	"github.com/gbalchidi/family-emotions-app/internal/model"
)

// TranslationContext 构造提示词需要的上下文
type TranslationContext struct {
	Message       string
	Bucket        model.AgeBucket
	ChildName     string
	Traits        []string
	Language      string
	ResponseStyle model.ResponseStyle
}

var bucketDescriptions = map[model.AgeBucket]string{
	model.AgeBucketToddler:   "a toddler (1-3 years old), communicating mostly through behavior and simple words",
	model.AgeBucketPreschool: "a preschooler (4-5 years old), learning to name feelings but often overwhelmed by them",
	model.AgeBucketSchoolAge: "a school-age child (6-12 years old), capable of conversation but still developing emotional vocabulary",
	model.AgeBucketTeen:      "a teenager (13+ years old), sensitive to being patronized and valuing autonomy",
	model.AgeBucketGeneric:   "a child of unspecified age",
}

var styleDescriptions = map[model.ResponseStyle]string{
	model.ResponseStyleGentle:   "Keep suggestions soft and validating. Avoid anything that could sound like criticism of the parent.",
	model.ResponseStyleBalanced: "Balance empathy with practical guidance.",
	model.ResponseStyleDirect:   "Be concise and practical. Parents using this style prefer actionable steps over reassurance.",
}

// BuildTranslationPrompt 生成情绪翻译的提示词。
// 输出格式必须是严格 JSON，解析端依赖这个结构。
func BuildTranslationPrompt(tc TranslationContext) string {
	var b strings.Builder

	b.WriteString("You are a child psychology expert helping a parent understand what their child's words or behavior really mean emotionally.\n\n")

	name := tc.ChildName
	if name == "" {
		name = "the child"
	}
	b.WriteString(fmt.Sprintf("The child is %s.\n", bucketDescriptions[tc.Bucket]))
	if len(tc.Traits) > 0 {
		b.WriteString(fmt.Sprintf("Known traits of %s: %s.\n", name, strings.Join(tc.Traits, ", ")))
	}

	b.WriteString(fmt.Sprintf("\nThe parent reports:\n\"%s\"\n\n", tc.Message))

	b.WriteString("Analyze the emotional content and suggest how the parent could respond.\n")
	if desc, ok := styleDescriptions[tc.ResponseStyle]; ok {
		b.WriteString(desc)
		b.WriteString("\n")
	}
	if tc.Language != "" && tc.Language != "en" {
		b.WriteString(fmt.Sprintf("Write all human-readable text in language code %q.\n", tc.Language))
	}

	b.WriteString(`
Respond with ONLY a JSON object in exactly this format, no other text:
{
  "emotions": ["emotion1", "emotion2"],
  "confidence": 0.85,
  "responses": [
    {"title": "short label", "text": "what the parent could say or do", "approach": "empathetic"},
    {"title": "short label", "text": "what the parent could say or do", "approach": "practical"},
    {"title": "short label", "text": "what the parent could say or do", "approach": "playful"}
  ],
  "explanation": "one paragraph explaining what is likely going on emotionally"
}

Use lowercase English words for emotions (e.g. joy, sadness, anger, fear, frustration, anxiety).
Provide exactly 3 response options. Confidence must be between 0 and 1.`)

	return b.String()
}

// BuildReportSummaryPrompt 生成周报摘要的提示词
func BuildReportSummaryPrompt(name string, emotionCounts map[string]int, avgMood *float64, totalCheckins int, language string) string {
	var b strings.Builder

	b.WriteString("You are a child psychology expert writing a short weekly emotional summary for a parent.\n\n")

	subject := name
	if subject == "" {
		subject = "the family"
	}
	b.WriteString(fmt.Sprintf("This week %s completed %d check-ins.\n", subject, totalCheckins))

	if len(emotionCounts) > 0 {
		b.WriteString("Observed emotions and how often they appeared:\n")
		for emotion, count := range emotionCounts {
			b.WriteString(fmt.Sprintf("- %s: %d\n", emotion, count))
		}
	}
	if avgMood != nil {
		b.WriteString(fmt.Sprintf("Average mood score: %.2f (scale -1 to 1).\n", *avgMood))
	}

	b.WriteString(`
Respond with ONLY a JSON object in exactly this format, no other text:
{
  "summary": "2-3 sentences describing the emotional week",
  "insights": ["observation 1", "observation 2"],
  "recommendations": ["suggestion 1", "suggestion 2"]
}

Keep the tone warm and non-judgmental. Never diagnose.`)
	if language != "" && language != "en" {
		b.WriteString(fmt.Sprintf("\nWrite all human-readable text in language code %q.", language))
	}

	return b.String()
}
