package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gbalchidi/family-emotions-app/internal/model"
	"github.com/gbalchidi/family-emotions-app/pkg/logger"
)

// Notifier 消息端（Telegram bot 等前端）的投递抽象
type Notifier interface {
	SendCheckin(ctx context.Context, msg *model.CheckinDispatchMessage) error
	SendReportReady(ctx context.Context, msg *model.ReportReadyMessage) error
}

// WebhookNotifier 通过 HTTP webhook 把消息推给前端服务
type WebhookNotifier struct {
	baseURL string
	client  *http.Client
}

func NewWebhookNotifier(baseURL string) *WebhookNotifier {
	return &WebhookNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (n *WebhookNotifier) SendCheckin(ctx context.Context, msg *model.CheckinDispatchMessage) error {
	return n.post(ctx, "/webhooks/checkin", msg)
}

func (n *WebhookNotifier) SendReportReady(ctx context.Context, msg *model.ReportReadyMessage) error {
	return n.post(ctx, "/webhooks/report", msg)
}

func (n *WebhookNotifier) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier 未配置 webhook 时的降级实现，只记录日志。
// 消息仍然视为投递成功，避免无前端的环境里队列无限重试。
type LogNotifier struct{}

func (LogNotifier) SendCheckin(ctx context.Context, msg *model.CheckinDispatchMessage) error {
	logger.Logger.Info("Check-in dispatch (no webhook configured)",
		zap.String("message_id", msg.MessageID),
		zap.Int64("task_id", msg.TaskID),
		zap.Int64("user_id", msg.UserID),
		zap.String("question", msg.Question),
	)
	return nil
}

func (LogNotifier) SendReportReady(ctx context.Context, msg *model.ReportReadyMessage) error {
	logger.Logger.Info("Report ready (no webhook configured)",
		zap.String("message_id", msg.MessageID),
		zap.Int64("report_id", msg.ReportID),
		zap.Int64("user_id", msg.UserID),
	)
	return nil
}

// ForURL 按配置选择实现
func ForURL(webhookURL string) Notifier {
	if webhookURL == "" {
		return LogNotifier{}
	}
	return NewWebhookNotifier(webhookURL)
}
