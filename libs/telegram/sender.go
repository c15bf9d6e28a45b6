// Package telegram sends outbound chat messages through the Telegram Bot
// API. Sends are fire-and-forget from the caller's perspective: a failure
// is reported but never retried here.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Keyboard is an inline keyboard: one button row per slice element.
type Keyboard struct {
	Rows [][]Button
}

type Sender interface {
	Send(ctx context.Context, chatID, text string, kb *Keyboard) error
}

type BotSender struct {
	baseURL string
	http    *http.Client
}

func NewBotSender(token string) (*BotSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	return &BotSender{
		baseURL: "https://api.telegram.org/bot" + token,
		http:    &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (s *BotSender) Send(ctx context.Context, chatID, text string, kb *Keyboard) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if kb != nil && len(kb.Rows) > 0 {
		payload["reply_markup"] = map[string]any{"inline_keyboard": kb.Rows}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sendMessage", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram send failed: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// NoopSender swallows messages. Used when no bot token is configured and in
// tests.
type NoopSender struct{}

func (NoopSender) Send(context.Context, string, string, *Keyboard) error {
	return nil
}
