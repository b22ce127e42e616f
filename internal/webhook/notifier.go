package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	webhookmetrics "kycverify/internal/webhook/metrics"
)

const (
	HeaderSignature = "X-KYC-Signature"
	userAgent       = "KYC-Service/1.0"
)

// Target is a project's webhook endpoint.
type Target struct {
	URL    string
	Secret string
}

// Enabled reports whether the project configured both URL and secret.
func (t Target) Enabled() bool { return t.URL != "" && t.Secret != "" }

// Notifier delivers signed payloads with a single best-effort POST.
type Notifier struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *webhookmetrics.Metrics
	now     func() time.Time
}

type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

func WithMetrics(m *webhookmetrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func NewNotifier(timeout time.Duration, logger *slog.Logger, opts ...Option) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := &Notifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify never returns an error: delivery failures are logged and counted,
// and never retried. The result reports whether the endpoint answered 2xx.
func (n *Notifier) Notify(ctx context.Context, target Target, payload Payload) bool {
	if !target.Enabled() {
		n.metrics.IncrementDelivery("skipped")
		return false
	}
	if err := n.deliver(ctx, target, payload); err != nil {
		n.metrics.IncrementDelivery("failed")
		n.logger.WarnContext(ctx, "webhook delivery failed",
			"verification_id", payload.VerificationID,
			"event", payload.Event,
			"error", err,
		)
		return false
	}
	n.metrics.IncrementDelivery("delivered")
	return true
}

func (n *Notifier) deliver(ctx context.Context, target Target, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, Sign(target.Secret, body, n.now()))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
