// Package discord delivers notification lines to a Discord channel webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bnema/afk-farmer/internal/ports"
)

// maxContent is the Discord message length limit.
const maxContent = 2000

type Webhook struct {
	url    string
	client *http.Client
}

var _ ports.Notifier = (*Webhook)(nil)

func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}

	return &Webhook{url: url, client: client}
}

type webhookPayload struct {
	Content string `json:"content"`
}

func (w *Webhook) Send(ctx context.Context, message string) error {
	if len(message) > maxContent {
		message = message[:maxContent]
	}

	payload, err := json.Marshal(webhookPayload{Content: message})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := w.client.Do(request)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("webhook status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
