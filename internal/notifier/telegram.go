package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"ForecastMailer/internal/model"
)

const (
	DefaultTelegramBaseURL = "https://api.telegram.org"

	// telegramMaxText is the Bot API sendMessage limit.
	telegramMaxText = 4096
)

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string

	client      *resty.Client
	maxRetries  int
	backoffUnit time.Duration
	log         zerolog.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(baseURL, botToken, chatID, proxyURL string, log zerolog.Logger) *TelegramNotifier {
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(35*time.Second).
		SetHeader("Content-Type", "application/json").
		SetPathParam("token", botToken)
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &TelegramNotifier{
		BotToken:    botToken,
		ChatID:      chatID,
		client:      client,
		maxRetries:  3,
		backoffUnit: time.Second,
		log:         log,
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Close() error { return t.client.Close() }

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	var out apiResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.ChatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !resp.IsSuccess() || !out.OK {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := t.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := time.Duration(1<<uint(i)) * t.backoffUnit
		t.log.Warn().Err(err).Int("attempt", i+1).Int("of", maxRetries+1).Dur("backoff", backoff).Msg("telegram send failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// Deliver sends the digest, split into as many messages as the size limit requires.
func (t *TelegramNotifier) Deliver(ctx context.Context, d *model.Digest) error {
	for i, chunk := range SplitMessage(FormatDigest(d), telegramMaxText) {
		if err := t.SendWithRetry(ctx, chunk, t.maxRetries); err != nil {
			return fmt.Errorf("digest part %d: %w", i+1, err)
		}
	}
	t.log.Info().Str("run_id", d.RunID).Msg("digest sent to telegram")
	return nil
}
