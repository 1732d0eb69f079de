package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fentz26/timereports/internal/connectors"
)

// Notifier posts a user-visible notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// DesktopNotifier posts through notify-send on the session bus.
type DesktopNotifier struct {
	conn connectors.Connector
}

func NewDesktopNotifier(conn connectors.Connector) *DesktopNotifier {
	return &DesktopNotifier{conn: conn}
}

func (n *DesktopNotifier) Notify(ctx context.Context, title, body string) error {
	args := []string{"-a", "timereports", "-u", "critical", "-i", "alarm-clock", title, body}
	res, err := n.conn.Execute(ctx, "notify-send", args)
	if err != nil {
		return fmt.Errorf("notify-send: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("notify-send exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// WebhookNotifier posts text messages to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookMessage struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookOption customises a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient replaces the default 10s client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(n *WebhookNotifier) { n.client = c }
}

func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *WebhookNotifier) Notify(ctx context.Context, title, body string) error {
	msg := webhookMessage{
		MsgType: "text",
		Text:    webhookText{Content: title + "\n" + body},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// LogNotifier writes notifications to the log. Used headless and in tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, title, body string) error {
	n.logger.Info("notification", "title", title, "body", body)
	return nil
}

// MultiNotifier notifies every target and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
