package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs messages as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	Kind  Kind   `json:"kind"`
	Level Level  `json:"level"`
	Title string `json:"title"`
	Body  string `json:"message"`
	TS    string `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Kind:  msg.Kind,
		Level: msg.Level,
		Title: msg.Title,
		Body:  msg.Body,
		TS:    time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return &Error{Kind: msg.Kind, Channel: "webhook", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: msg.Kind, Channel: "webhook", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &Error{Kind: msg.Kind, Channel: "webhook", Err: fmt.Errorf("send: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Kind: msg.Kind, Channel: "webhook", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	log.Printf("[webhook] sent %s to %s: %s", msg.Kind, w.url, msg.Title)
	return nil
}
