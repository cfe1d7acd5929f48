package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog     Channel = "log"
	ChannelWebhook Channel = "webhook"
	ChannelSlack   Channel = "slack"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code          xerrors.Code      `json:"code"`
	Message       string            `json:"message"`
	Severity      xerrors.Severity  `json:"severity"`
	TaskID        string            `json:"task_id"`
	Operation     string            `json:"operation,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Attempts      int               `json:"attempts"`
	MaxRetries    int               `json:"max_retries"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func (e Event) summary() string {
	s := fmt.Sprintf("[%s] %s 任务 %s", e.Severity, e.Code, e.TaskID)
	if e.Operation != "" {
		s += " 操作 " + e.Operation
	}
	if e.TransactionID != "" {
		s += " 交易 " + e.TransactionID
	}
	return fmt.Sprintf("%s (重试 %d/%d): %s", s, e.Attempts, e.MaxRetries, e.Message)
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 将事件投递到全部注册的通知器，低于 MinSeverity 的事件被忽略。
type FanoutDispatcher struct {
	notifiers   map[Channel]Notifier
	minSeverity xerrors.Severity
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(minSeverity xerrors.Severity, notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set, minSeverity: minSeverity}
}

// Channels 返回已注册的渠道。
func (d *FanoutDispatcher) Channels() []Channel {
	out := make([]Channel, 0, len(d.notifiers))
	for ch := range d.notifiers {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil || !event.Severity.AtLeast(d.minSeverity) {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 将告警写入审计日志。
type LogNotifier struct{}

// Channel 返回日志渠道。
func (LogNotifier) Channel() Channel { return ChannelLog }

// Notify 记录告警事件。
func (LogNotifier) Notify(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("task_id", event.TaskID),
		slog.String("operation", event.Operation),
		slog.Int("attempts", event.Attempts),
		slog.String("message", event.Message),
	}
	if event.TransactionID != "" {
		attrs = append(attrs, slog.String("transaction_id", event.TransactionID))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String("meta."+k, v))
	}
	logger.AuditEvent(ctx, "alert", attrs...)
	return nil
}

// WebhookNotifier 以 JSON 形式将事件 POST 到任意 HTTP 端点。
type WebhookNotifier struct {
	URL     string
	Headers map[string]string
	client  *resty.Client
}

// NewWebhookNotifier 创建 WebhookNotifier。
func NewWebhookNotifier(url string, timeout time.Duration, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Headers: headers, client: newClient(timeout)}
}

// Channel 返回 webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 发送事件。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || strings.TrimSpace(n.URL) == "" {
		logger.L().Warn("WebhookNotifier 未正确配置，跳过发送", slog.String("task_id", event.TaskID))
		return nil
	}
	return post(ctx, n.client, n.URL, n.Headers, event)
}

// SlackNotifier 通过 Slack incoming webhook 发送告警。
type SlackNotifier struct {
	WebhookURL string
	client     *resty.Client
}

// NewSlackNotifier 创建 SlackNotifier。
func NewSlackNotifier(webhookURL string, timeout time.Duration) *SlackNotifier {
	return &SlackNotifier{WebhookURL: webhookURL, client: newClient(timeout)}
}

// Channel 返回 Slack 渠道。
func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

// Notify 发送 Slack 消息。
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || strings.TrimSpace(n.WebhookURL) == "" {
		logger.L().Warn("SlackNotifier 未正确配置，跳过发送", slog.String("task_id", event.TaskID))
		return nil
	}
	return post(ctx, n.client, n.WebhookURL, nil, map[string]string{"text": event.summary()})
}

func newClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json")
}

func post(ctx context.Context, client *resty.Client, url string, headers map[string]string, body any) error {
	if client == nil {
		client = newClient(0)
	}
	resp, err := client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("告警端点返回状态码 %d", resp.StatusCode())
	}
	return nil
}
