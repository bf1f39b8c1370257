package messaging

import (
	"strings"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const (
	TransportWebhook = "webhook"
	TransportLog     = "log"
)

// TransportConfig selects the outbound transport.
type TransportConfig struct {
	WebhookURL      string
	SupportsChoices bool
}

// BuildReplyMessenger returns the webhook transport, with the log as its
// fallback, when a webhook URL is configured, and the log transport
// otherwise. The second value names what was selected.
func BuildReplyMessenger(cfg TransportConfig, logger *logging.Logger, m *metrics.MessagingMetrics) (conversation.ReplyMessenger, string) {
	if logger == nil {
		logger = logging.Default()
	}
	logMessenger := NewLogMessenger(logger, m)
	url := strings.TrimSpace(cfg.WebhookURL)
	if url == "" {
		return logMessenger, TransportLog
	}
	webhook := NewWebhookMessenger(url, cfg.SupportsChoices, logger, WithMessagingMetrics(m))
	return NewFailoverMessenger(webhook, TransportWebhook, logMessenger, TransportLog, logger), TransportWebhook + "+" + TransportLog
}
