package notify

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/rs/zerolog/log"
)

// Webhook POSTs each event as JSON to a URL with retry and exponential
// backoff.
type Webhook struct {
    url        string
    client     *http.Client
    maxRetries int
    backoff    time.Duration
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
    return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookClient sets the HTTP client used for delivery.
func WithWebhookClient(c *http.Client) WebhookOption {
    return func(w *Webhook) { w.client = c }
}

// WithWebhookBackoff sets the first retry delay; later retries double it.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
    return func(w *Webhook) { w.backoff = d }
}

// NewWebhook creates a Webhook sink targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
    w := &Webhook{
        url:        url,
        client:     &http.Client{Timeout: 10 * time.Second},
        maxRetries: 3,
        backoff:    time.Second,
    }
    for _, o := range opts {
        o(w)
    }
    return w
}

type envelope struct {
    Type string `json:"type"`
    Data Event  `json:"data"`
}

func (w *Webhook) Send(ctx context.Context, ev Event) error {
    body, err := json.Marshal(envelope{Type: string(ev.Kind), Data: ev})
    if err != nil {
        return fmt.Errorf("webhook: marshal: %w", err)
    }

    var lastErr error
    for attempt := 0; attempt <= w.maxRetries; attempt++ {
        if attempt > 0 {
            wait := w.backoff << uint(attempt-1)
            select {
            case <-time.After(wait):
            case <-ctx.Done():
                return ctx.Err()
            }
        }

        req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
        if err != nil {
            return fmt.Errorf("webhook: new request: %w", err)
        }
        req.Header.Set("Content-Type", "application/json")

        resp, err := w.client.Do(req)
        if err != nil {
            lastErr = err
            log.Warn().Err(err).Int("attempt", attempt+1).Msg("webhook: request failed")
            continue
        }
        resp.Body.Close()

        if resp.StatusCode >= 200 && resp.StatusCode < 300 {
            return nil
        }
        lastErr = fmt.Errorf("webhook: status %d", resp.StatusCode)
        log.Warn().Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: bad status")
    }
    return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}

func (w *Webhook) Close() error { return nil }
