package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gbalchidi/family-emotions-app/internal/model"
)

// Fingerprint 对一次分析请求的关键输入求稳定指纹，作为缓存键。
// 文本先做归一化（小写、压缩空白、截断前 100 字符），
// 再拼上年龄段、语言和回应风格。同样的输入必然命中同一条缓存。
func Fingerprint(message string, bucket model.AgeBucket, language string, style model.ResponseStyle) string {
	normalized := normalizeMessage(message)

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(bucket))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(language)))
	h.Write([]byte{0})
	h.Write([]byte(style))

	return hex.EncodeToString(h.Sum(nil))
}

func normalizeMessage(message string) string {
	lowered := strings.ToLower(strings.TrimSpace(message))
	collapsed := strings.Join(strings.Fields(lowered), " ")

	runes := []rune(collapsed)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return string(runes)
}
