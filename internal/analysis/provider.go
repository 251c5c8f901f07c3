package analysis

import "context"

// Provider 外部分析服务的最小抽象。
// 实现负责把限流/不可用映射为 pkg/errors 里的
// ExternalRateLimited（带 retry-after）和 ExternalServiceFailed。
type Provider interface {
	// Complete 发送提示词并返回原始文本输出
	Complete(ctx context.Context, prompt string) (string, error)
}
