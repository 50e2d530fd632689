package events

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"banking-core/internal/domain"
)

// Sender delivers one committed event to a downstream consumer.
type Sender interface {
	Send(ctx context.Context, e domain.Event) error
}

// WebhookSender POSTs event payloads to a fixed consumer URL.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *WebhookSender) Send(ctx context.Context, e domain.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL,
		bytes.NewReader(e.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", e.ID.String())
	req.Header.Set("X-Event-Type", string(e.Type))
	req.Header.Set("X-Correlation-Id", e.CorrelationID)

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("consumer returned %d", resp.StatusCode)
	}
	return nil
}
