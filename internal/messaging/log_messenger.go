package messaging

import (
	"context"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// LogMessenger writes replies to the log instead of delivering them. It is
// the outbound transport for local runs without a webhook.
type LogMessenger struct {
	logger  *logging.Logger
	metrics *metrics.MessagingMetrics
}

func NewLogMessenger(logger *logging.Logger, m *metrics.MessagingMetrics) *LogMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogMessenger{logger: logger, metrics: m}
}

var _ conversation.ReplyMessenger = (*LogMessenger)(nil)

func (l *LogMessenger) SendReply(_ context.Context, msg conversation.OutgoingMessage) error {
	l.logger.WithTenant(msg.TenantID).Info("outbound reply",
		"contact_id", msg.ContactID,
		"state", string(msg.State),
		"text", FormatPlainText(msg.Content, msg.Choices),
	)
	l.metrics.ObserveOutbound("logged", ModeText)
	return nil
}
