package analysis

// 情绪词表：provider 返回的 emotions 按正负分类，
// 命中不了的情绪（如 surprise、confusion）不参与计分
var (
	positiveEmotions = map[string]struct{}{
		"joy": {}, "happiness": {}, "excitement": {}, "love": {}, "gratitude": {},
		"contentment": {}, "pride": {}, "hope": {}, "amusement": {}, "relief": {},
	}
	negativeEmotions = map[string]struct{}{
		"sadness": {}, "anger": {}, "fear": {}, "disgust": {}, "frustration": {},
		"disappointment": {}, "anxiety": {}, "guilt": {}, "shame": {}, "loneliness": {},
	}
)

// MoodScore 根据情绪强度计算 [-1, 1] 的心情分。
// 公式 (pos - neg) / (pos + neg)，全部未命中词表时返回 0。
func MoodScore(intensity map[string]float64) float64 {
	var pos, neg float64
	for emotion, weight := range intensity {
		if weight <= 0 {
			continue
		}
		if _, ok := positiveEmotions[emotion]; ok {
			pos += weight
		} else if _, ok := negativeEmotions[emotion]; ok {
			neg += weight
		}
	}

	total := pos + neg
	if total == 0 {
		return 0
	}

	score := (pos - neg) / total
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}

// IntensityFromEmotions 没有逐项强度时按等权处理
func IntensityFromEmotions(emotions []string) map[string]float64 {
	intensity := make(map[string]float64, len(emotions))
	for _, e := range emotions {
		intensity[e] = 1.0
	}
	return intensity
}
