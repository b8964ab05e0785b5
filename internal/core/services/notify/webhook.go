package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/ports"
)

const webhookTimeout = 10 * time.Second

// WebhookNotifier posts events to the configured webhook URLs. Delivery is
// best-effort and per-URL: one failing endpoint never blocks the others.
type WebhookNotifier struct {
	httpClient *http.Client
	urls       func() []string
}

// NewWebhookNotifier creates a notifier. urls is consulted per event so
// settings changes apply without restart.
func NewWebhookNotifier(urls func() []string) *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: webhookTimeout},
		urls:       urls,
	}
}

var _ ports.Notifier = (*WebhookNotifier)(nil)

// Notify implements ports.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event string, payload any) {
	targets := n.urls()
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(map[string]any{
		"event":     event,
		"timestamp": time.Now().UTC(),
		"payload":   payload,
	})
	if err != nil {
		slog.Warn("webhook payload encoding failed", "event", event, "error", err)
		return
	}

	for _, url := range targets {
		if err := n.post(ctx, url, body); err != nil {
			slog.Warn("webhook delivery failed", "url", url, "event", event, "error", err)
		}
	}
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
