package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// FailoverMessenger attempts a primary send, then falls back to a secondary transport on error.
type FailoverMessenger struct {
	primary       conversation.ReplyMessenger
	secondary     conversation.ReplyMessenger
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverMessenger builds a failover messenger with named transports.
func NewFailoverMessenger(primary conversation.ReplyMessenger, primaryName string, secondary conversation.ReplyMessenger, secondaryName string, logger *logging.Logger) *FailoverMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverMessenger{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ conversation.ReplyMessenger = (*FailoverMessenger)(nil)

// SendReply tries the primary transport first, then the secondary on failure.
func (f *FailoverMessenger) SendReply(ctx context.Context, reply conversation.OutgoingMessage) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary sender not configured")
	}
	err := f.primary.SendReply(ctx, reply)
	if err == nil || f.secondary == nil {
		return err
	}
	f.logger.Warn("primary reply send failed; attempting fallback",
		"transport", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
		"contact_id", reply.ContactID,
	)
	if fallbackErr := f.secondary.SendReply(ctx, reply); fallbackErr != nil {
		f.logger.Error("fallback reply send failed",
			"transport", f.secondaryName,
			"error", fallbackErr,
			"contact_id", reply.ContactID,
		)
		return fallbackErr
	}
	return nil
}
