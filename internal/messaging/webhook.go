package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/matching"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var webhookTracer = otel.Tracer("booking.internal.messaging.webhook")

const (
	// ModeChoices sends choices as structured data for the channel to render.
	ModeChoices = "choices"
	// ModeText flattens choices into a numbered list in the text.
	ModeText = "text"

	maxSendAttempts = 3
)

// WebhookMessenger posts replies to the channel gateway as JSON, retrying
// transient failures.
type WebhookMessenger struct {
	url             string
	supportsChoices bool
	httpClient      *http.Client
	metrics         *metrics.MessagingMetrics
	logger          *logging.Logger
	backoff         func(attempt int) time.Duration
}

// WebhookOption customizes a WebhookMessenger.
type WebhookOption func(*WebhookMessenger)

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookMessenger) {
		if c != nil {
			w.httpClient = c
		}
	}
}

func WithMessagingMetrics(m *metrics.MessagingMetrics) WebhookOption {
	return func(w *WebhookMessenger) {
		w.metrics = m
	}
}

// NewWebhookMessenger builds a sender for url. When supportsChoices is
// false, choices are folded into the text.
func NewWebhookMessenger(url string, supportsChoices bool, logger *logging.Logger, opts ...WebhookOption) *WebhookMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	w := &WebhookMessenger{
		url:             url,
		supportsChoices: supportsChoices,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		logger:          logger,
		backoff: func(int) time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ conversation.ReplyMessenger = (*WebhookMessenger)(nil)

type webhookPayload struct {
	TenantID  string            `json:"tenant_id"`
	ContactID string            `json:"contact_id"`
	Text      string            `json:"text"`
	Choices   []matching.Choice `json:"choices,omitempty"`
	State     string            `json:"state,omitempty"`
}

// SendReply posts one reply. 4xx responses other than 429 are not retried.
func (w *WebhookMessenger) SendReply(ctx context.Context, msg conversation.OutgoingMessage) error {
	if w.url == "" {
		return errors.New("messaging: webhook url missing")
	}
	if msg.ContactID == "" {
		return errors.New("messaging: contact required")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return errors.New("messaging: content required")
	}

	ctx, span := webhookTracer.Start(ctx, "messaging.webhook.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", msg.TenantID),
		attribute.String("booking.contact_id", msg.ContactID),
	)

	payload := webhookPayload{
		TenantID:  msg.TenantID,
		ContactID: msg.ContactID,
		State:     string(msg.State),
	}
	mode := ModeText
	if w.supportsChoices {
		mode = ModeChoices
		payload.Text = msg.Content
		payload.Choices = msg.Choices
	} else {
		payload.Text = FormatPlainText(msg.Content, msg.Choices)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: failed to marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		retry, err := w.post(ctx, body)
		if err == nil {
			w.metrics.ObserveOutbound("sent", mode)
			w.logger.Debug("webhook reply sent", "tenant_id", msg.TenantID, "contact_id", msg.ContactID, "attempt", attempt)
			return nil
		}
		lastErr = err
		if !retry || attempt == maxSendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(w.backoff(attempt)):
			continue
		}
		break
	}

	span.RecordError(lastErr)
	w.metrics.ObserveOutbound("failed", mode)
	w.logger.Error("failed to send webhook reply", "error", lastErr, "tenant_id", msg.TenantID, "contact_id", msg.ContactID)
	return lastErr
}

func (w *WebhookMessenger) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	err = fmt.Errorf("messaging: webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return retry, err
}
