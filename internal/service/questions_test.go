package service

import (
	"strings"
	"testing"

	"github.com/gbalchidi/family-emotions-app/internal/model"
)

func TestQuestionForEveryBucketAndCategory(t *testing.T) {
	buckets := []model.AgeBucket{
		model.AgeBucketToddler,
		model.AgeBucketPreschool,
		model.AgeBucketSchoolAge,
		model.AgeBucketTeen,
		model.AgeBucketGeneric,
	}
	categories := []QuestionCategory{CategoryMood, CategoryBehavior, CategorySocial, "nonsense"}

	for _, bucket := range buckets {
		for _, category := range categories {
			if q := QuestionFor(bucket, category, 0); q == "" {
				t.Errorf("no question for bucket=%s category=%s", bucket, category)
			}
		}
	}
}

func TestQuestionForRotationDeterministic(t *testing.T) {
	a := QuestionFor(model.AgeBucketSchoolAge, CategoryMood, 42)
	b := QuestionFor(model.AgeBucketSchoolAge, CategoryMood, 42)
	if a != b {
		t.Error("same rotation must pick the same question")
	}
}

func TestQuestionForRotationCyclesThroughBank(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		seen[QuestionFor(model.AgeBucketSchoolAge, CategoryMood, i)] = struct{}{}
	}
	if len(seen) < 2 {
		t.Error("rotation should vary questions across days")
	}
}

func TestQuestionForNegativeRotation(t *testing.T) {
	if q := QuestionFor(model.AgeBucketTeen, CategoryMood, -5); q == "" {
		t.Error("negative rotation must still resolve a question")
	}
}

func TestQuestionForAsksTheParent(t *testing.T) {
	// 回答人是家长：问题必须是对孩子的观察，而不是直接问孩子
	wantFirst := map[model.AgeBucket]string{
		model.AgeBucketToddler:   "How was your little one's mood today?",
		model.AgeBucketPreschool: "How did your child express their feelings today?",
		model.AgeBucketSchoolAge: "How was your child's emotional day?",
		model.AgeBucketTeen:      "How has your teenager been feeling lately?",
	}
	for bucket, want := range wantFirst {
		if got := QuestionFor(bucket, CategoryMood, 0); got != want {
			t.Errorf("bucket %s: got %q, want %q", bucket, got, want)
		}
	}

	for category, byBucket := range questionBank {
		for bucket, questions := range byBucket {
			for _, q := range questions {
				if strings.Contains(q, "you feeling") || strings.HasPrefix(q, "Were you") {
					t.Errorf("question addresses the child directly: category=%s bucket=%s %q", category, bucket, q)
				}
			}
		}
	}
}

func TestQuestionForGenericFallback(t *testing.T) {
	// generic 段在 behavior/social 没有条目，必须降级到 mood
	q := QuestionFor(model.AgeBucketGeneric, CategoryBehavior, 0)
	if q != genericMoodQuestion {
		t.Errorf("generic bucket should fall back to the generic mood question, got %q", q)
	}
}
