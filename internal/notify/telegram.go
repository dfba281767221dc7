package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/shanehull/kindwatch/internal/config"
	"github.com/shanehull/kindwatch/internal/types"
)

const defaultTelegramAPI = "https://api.telegram.org"

// ErrDeliveryFailed marks an alert whose delivery retries were
// exhausted. Per-event; the run continues.
var ErrDeliveryFailed = errors.New("alert delivery failed")

// DeliveryReceipt acknowledges a delivered alert.
type DeliveryReceipt struct {
	MessageID int64
	SentAt    time.Time
}

// telegramResponse is the Bot API envelope for sendMessage.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Telegram sends alert messages through the Bot API with a minimum
// inter-message delay and bounded retries for transient failures.
type Telegram struct {
	apiBase    string
	botToken   string
	chatID     string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	loc        *time.Location
	logger     *log.Logger
}

// NewTelegram builds a sender from configuration.
func NewTelegram(cfg config.TelegramConfig, loc *time.Location, logger *log.Logger) *Telegram {
	return newTelegram(defaultTelegramAPI, cfg, loc, logger)
}

func newTelegram(apiBase string, cfg config.TelegramConfig, loc *time.Location, logger *log.Logger) *Telegram {
	minInterval := time.Duration(cfg.MinIntervalMS) * time.Millisecond
	if minInterval <= 0 {
		minInterval = time.Second
	}
	backoff := time.Duration(cfg.BackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	return &Telegram{
		apiBase:    strings.TrimRight(apiBase, "/"),
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		client:     &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		limiter:    rate.NewLimiter(rate.Every(minInterval), 1),
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
		loc:        loc,
		logger:     logger,
	}
}

// Send formats and delivers one alert. Transient failures (rate limit,
// server errors, network errors) are retried with doubling backoff,
// honoring the Bot API retry_after hint; exhausting the budget returns
// ErrDeliveryFailed for this event only.
func (t *Telegram) Send(ctx context.Context, ev types.AlertEvent, summary []string) (*DeliveryReceipt, error) {
	text := FormatAlert(ev, t.loc, summary)

	backoff := t.backoff
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		receipt, retryAfter, transient, err := t.trySend(ctx, text)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		if !transient {
			return nil, fmt.Errorf("%w: %s", ErrDeliveryFailed, err)
		}

		t.logger.Warn().Err(err).
			Str("filing_id", ev.FilingID).
			Int("attempt", attempt+1).
			Msg("transient alert delivery failure")

		if attempt == t.maxRetries {
			break
		}

		wait := backoff
		if retryAfter > 0 {
			wait = retryAfter
		}
		backoff *= 2

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %s", ErrDeliveryFailed, t.maxRetries+1, lastErr)
}

func (t *Telegram) trySend(ctx context.Context, text string) (*DeliveryReceipt, time.Duration, bool, error) {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, true, fmt.Errorf("sendMessage request failed: %w", err)
	}
	defer resp.Body.Close()

	var body telegramResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr != nil && resp.StatusCode == http.StatusOK {
		return nil, 0, false, fmt.Errorf("failed to decode sendMessage response: %w", decodeErr)
	}

	switch {
	case resp.StatusCode == http.StatusOK && body.OK:
		return &DeliveryReceipt{
			MessageID: body.Result.MessageID,
			SentAt:    time.Now().In(t.loc),
		}, 0, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(body.Parameters.RetryAfter) * time.Second
		return nil, retryAfter, true, fmt.Errorf("rate limited by Bot API (retry after %s)", retryAfter)
	case resp.StatusCode >= 500:
		return nil, 0, true, fmt.Errorf("Bot API server error %d", resp.StatusCode)
	default:
		return nil, 0, false, fmt.Errorf("Bot API rejected message: status %d: %s", resp.StatusCode, body.Description)
	}
}
