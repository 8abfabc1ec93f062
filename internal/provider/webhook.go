package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookClient posts notification payloads to the staff review channel.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

// NewWebhookClient creates a WebhookClient for the given endpoint.
func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send posts the payload as JSON. Any non-2xx status is an error so the
// outbox keeps the event queued for another attempt.
func (c *WebhookClient) Send(ctx context.Context, payload json.RawMessage) error {
	if c.url == "" {
		return fmt.Errorf("webhook url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, body)
	}
	return nil
}
