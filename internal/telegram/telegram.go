// Package telegram sends operator alerts to a Telegram chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/newsbot/internal/logger"
	"github.com/deusflow/newsbot/internal/retry"
)

const DefaultBaseURL = "https://api.telegram.org"

// Notifier posts plain-text alerts. The zero Token disables it.
type Notifier struct {
	Token   string
	ChatID  string
	BaseURL string
	HTTP    *http.Client
	Retry   retry.Config
}

func New(token, chatID string) *Notifier {
	return &Notifier{
		Token:   token,
		ChatID:  chatID,
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Retry:   retry.Config{Name: "telegram", MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
	}
}

func (n *Notifier) Enabled() bool { return n != nil && n.Token != "" && n.ChatID != "" }

// Notify sends text, retrying server errors. It is a no-op when the
// notifier is not configured.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if !n.Enabled() {
		return nil
	}
	err := retry.Do(ctx, n.Retry, func(ctx context.Context) error {
		return n.send(ctx, text)
	})
	if err != nil {
		logger.Error("telegram alert failed", "error", err)
		return err
	}
	logger.Debug("telegram alert sent")
	return nil
}

// Notifyf formats and sends; errors are logged only.
func (n *Notifier) Notifyf(ctx context.Context, format string, args ...any) {
	_ = n.Notify(ctx, fmt.Sprintf(format, args...))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(n.BaseURL, "/"), n.Token)

	payload := map[string]interface{}{
		"chat_id":                  n.ChatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("telegram: encode: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: request failed: %w", redact(err, n.Token))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	default:
		return retry.Permanent(fmt.Errorf("telegram API error: status %d", resp.StatusCode))
	}
}

// redact hides the bot token, which is part of the request path.
func redact(err error, token string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: strings.ReplaceAll(ue.URL, token, "REDACTED"), Err: ue.Err}
	}
	return err
}
