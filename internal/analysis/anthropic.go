package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/config"
	"github.com/gbalchidi/family-emotions-app/pkg/errors"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider 通过 Messages API 调用 Claude
type AnthropicProvider struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:      config.Cfg.ClaudeAPIKey,
		baseURL:     config.Cfg.ClaudeBaseURL,
		model:       config.Cfg.ClaudeModel,
		maxTokens:   config.Cfg.ClaudeMaxTokens,
		temperature: config.Cfg.ClaudeTemperature,
		client:      &http.Client{Timeout: 60 * time.Second},
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete 调用一次 Messages API。
// 429 映射为带 retry-after 的 ExternalRateLimited，
// 5xx 与网络错误映射为 ExternalServiceFailed。
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", errors.ExternalServiceFailed.WithDetails(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", errors.ExternalServiceFailed.WithDetails(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Logger.Error("Provider request failed", zap.Error(err))
		return "", errors.ExternalServiceFailed.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.ExternalServiceFailed.WithDetails(err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		logger.Logger.Warn("Provider rate limited",
			zap.Duration("retry_after", retryAfter),
		)
		return "", errors.NewRateLimit(errors.ExternalRateLimited, retryAfter)
	case resp.StatusCode >= 500:
		logger.Logger.Error("Provider server error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return "", errors.ExternalServiceFailed
	case resp.StatusCode != http.StatusOK:
		logger.Logger.Error("Provider rejected request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return "", errors.ExternalServiceFailed.WithDetails("unexpected status " + strconv.Itoa(resp.StatusCode))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.ExternalServiceFailed.WithDetails(err.Error())
	}
	if parsed.Error != nil {
		return "", errors.ExternalServiceFailed.WithDetails(parsed.Error.Message)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", errors.ExternalServiceFailed.WithDetails("empty completion")
	}
	return text, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 60 * time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 60 * time.Second
}
