package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers notifications to webhooks.
type Notifier struct {
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewNotifier creates a notifier retrying each delivery attempts times with a
// quadratic backoff starting at backoff.
func NewNotifier(client *http.Client, attempts int, backoff time.Duration, logger *zap.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Notifier{httpClient: client, attempts: attempts, backoff: backoff, logger: logger}
}

// SendWebhook POSTs the notification as JSON. Any 2xx response is a delivery.
func (n *Notifier) SendWebhook(ctx context.Context, url string, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < n.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt*attempt) * n.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("building webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Graphrest-Event", notification.Event.Type)
		req.Header.Set("X-Graphrest-Subscription", notification.SubscriptionID)

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = err
			n.logger.Warn("webhook delivery attempt failed",
				zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = &WebhookError{URL: url, StatusCode: resp.StatusCode}
		n.logger.Warn("webhook rejected notification",
			zap.String("url", url), zap.Int("attempt", attempt+1), zap.Int("status", resp.StatusCode))
	}
	return lastErr
}

// WebhookError represents a webhook delivery failure
type WebhookError struct {
	URL        string
	StatusCode int
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook %s answered %d", e.URL, e.StatusCode)
}
