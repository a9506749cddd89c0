package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"home-autopilot/internal/actions"
)

// Notification carries the actions of one analysis cycle worth alerting on.
type Notification struct {
	StartedAt time.Time
	Actions   []actions.Action
}

// Notifier delivers notifications to an external channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TextSender delivers free-form text, used for the daily report.
type TextSender interface {
	SendText(ctx context.Context, text string) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken   string
	recipients []string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier for one or more recipients.
func NewTelegramNotifier(botToken string, recipients []string, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken:   botToken,
		recipients: recipients,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered message to every configured recipient. Delivery
// continues past individual failures; the first error is returned at the end.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if len(note.Actions) == 0 {
		return nil
	}
	if len(n.recipients) == 0 {
		return fmt.Errorf("no telegram recipients configured")
	}

	text := renderMessage(note)

	var firstErr error
	sent := 0
	for _, chatID := range n.recipients {
		if err := n.send(ctx, chatID, text); err != nil {
			n.logger.Warn().Err(err).Str("chat_id", chatID).Msg("Telegram-Versand fehlgeschlagen")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	if sent > 0 {
		n.logger.Info().Int("recipients", sent).
			Int("actions", len(note.Actions)).
			Msg("Benachrichtigung gesendet (Telegram)")
	}
	return firstErr
}

// SendText delivers a plain text message to every recipient.
func (n *TelegramNotifier) SendText(ctx context.Context, text string) error {
	if len(n.recipients) == 0 {
		return fmt.Errorf("no telegram recipients configured")
	}
	var firstErr error
	for _, chatID := range n.recipients {
		if err := n.send(ctx, chatID, text); err != nil {
			n.logger.Warn().Err(err).Str("chat_id", chatID).Msg("Telegram-Versand fehlgeschlagen")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (n *TelegramNotifier) send(ctx context.Context, chatID, text string) error {
	payload := map[string]string{
		"chat_id": chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status code: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Hausüberwachung]\n")
	builder.WriteString(fmt.Sprintf("Zeitpunkt: %s UTC\n", note.StartedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Vorschläge: %d\n\n", len(note.Actions)))
	for _, action := range note.Actions {
		builder.WriteString(fmt.Sprintf("• [%s] %s\n", strings.ToUpper(action.Priority), action.Title))
		if action.Description != "" {
			builder.WriteString(fmt.Sprintf("  %s\n", action.Description))
		}
		if action.Reason != "" {
			builder.WriteString(fmt.Sprintf("  %s\n", action.Reason))
		}
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
var _ TextSender = (*TelegramNotifier)(nil)
