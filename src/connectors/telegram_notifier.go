package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// Notifier delivers plain-text operator messages.
type Notifier interface {
	SendText(ctx context.Context, text string) error
}

// TelegramNotifier posts to the Bot API sendMessage endpoint. Without a token
// or chat id it only logs.
type TelegramNotifier struct {
	token   string
	chatID  string
	enabled bool
	http    *resty.Client
}

func NewTelegramNotifier(cfg Config) *TelegramNotifier {
	baseURL := strings.TrimRight(cfg.TelegramBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableStatus)

	return &TelegramNotifier{
		token:   cfg.TelegramBotToken,
		chatID:  cfg.TelegramChatID,
		enabled: cfg.TelegramBotToken != "" && cfg.TelegramChatID != "",
		http:    httpClient,
	}
}

// isRetryableStatus is isRetryableResp without the idempotency guard;
// a duplicated chat message is harmless.
func isRetryableStatus(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) SendText(ctx context.Context, text string) error {
	if !t.enabled {
		logger.WithFields(map[string]interface{}{
			"component": "telegram",
		}).Info("telegram disabled - " + text)
		return nil
	}

	var out telegramResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id":                  t.chatID,
			"text":                     text,
			"disable_web_page_preview": true,
		}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	if resp.StatusCode() != 200 || !out.OK {
		return fmt.Errorf("telegram status=%d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}
