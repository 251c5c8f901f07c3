package service

import "github.com/gbalchidi/family-emotions-app/internal/model"

// QuestionCategory 打卡问题类别
type QuestionCategory string

const (
	CategoryMood     QuestionCategory = "mood"
	CategoryBehavior QuestionCategory = "behavior"
	CategorySocial   QuestionCategory = "social"
)

// genericMoodQuestion 任何组合都兜得住的保底问题。
// 回答人始终是家长，所以问题问的是家长对孩子（或全家）的观察。
const genericMoodQuestion = "How is your family feeling today?"

// questionBank 按类别和年龄段组织的问题库，列表有序，
// 轮换靠日期取模，同一天重跑选题不变
var questionBank = map[QuestionCategory]map[model.AgeBucket][]string{
	CategoryMood: {
		model.AgeBucketToddler: {
			"How was your little one's mood today?",
			"Did they have any big feelings today?",
			"What made them happy today?",
		},
		model.AgeBucketPreschool: {
			"How did your child express their feelings today?",
			"What activities brought them joy?",
		},
		model.AgeBucketSchoolAge: {
			"How was your child's emotional day?",
			"What are they excited or worried about?",
			"What made them proud today?",
		},
		model.AgeBucketTeen: {
			"How has your teenager been feeling lately?",
			"What's been on their mind recently?",
			"Have you noticed any mood changes?",
		},
		model.AgeBucketGeneric: {
			genericMoodQuestion,
		},
	},
	CategoryBehavior: {
		model.AgeBucketToddler: {
			"Were there any challenging moments?",
			"How did they respond to comfort?",
		},
		model.AgeBucketPreschool: {
			"Were there any meltdowns or difficult moments?",
			"What helped them feel better when upset?",
		},
		model.AgeBucketSchoolAge: {
			"What challenged them today?",
			"How did they handle their feelings?",
		},
		model.AgeBucketTeen: {
			"How are they coping with stress?",
			"What support do they seem to need?",
		},
	},
	CategorySocial: {
		model.AgeBucketPreschool: {
			"How did they interact with others?",
		},
		model.AgeBucketSchoolAge: {
			"How did they get along with friends and family today?",
		},
		model.AgeBucketTeen: {
			"How have they been connecting with friends lately?",
		},
	},
}

// QuestionFor 为年龄段和类别选一个问题。全函数：
// 类别或年龄段没有条目时逐级降级，最终落到保底问题。
func QuestionFor(bucket model.AgeBucket, category QuestionCategory, rotation int) string {
	if rotation < 0 {
		rotation = -rotation
	}

	if byBucket, ok := questionBank[category]; ok {
		if questions, ok := byBucket[bucket]; ok && len(questions) > 0 {
			return questions[rotation%len(questions)]
		}
	}

	// 类别下没有该年龄段的条目时退回 mood 问题
	if questions, ok := questionBank[CategoryMood][bucket]; ok && len(questions) > 0 {
		return questions[rotation%len(questions)]
	}
	return genericMoodQuestion
}
