package webchat

import (
	"context"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// ReplyMessenger delivers replies for widget contacts over their open
// socket and hands every other contact to the next transport.
type ReplyMessenger struct {
	handler *Handler
	next    conversation.ReplyMessenger
	logger  *logging.Logger
}

func NewReplyMessenger(handler *Handler, next conversation.ReplyMessenger, logger *logging.Logger) *ReplyMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplyMessenger{handler: handler, next: next, logger: logger}
}

var _ conversation.ReplyMessenger = (*ReplyMessenger)(nil)

func (m *ReplyMessenger) SendReply(ctx context.Context, reply conversation.OutgoingMessage) error {
	if m.handler != nil && strings.HasPrefix(reply.ContactID, ContactPrefix) {
		delivered, err := m.handler.Push(reply.TenantID, reply.ContactID, toOutbound(reply))
		if err != nil {
			return err
		}
		if delivered {
			m.logger.Debug("webchat: reply pushed", "tenant_id", reply.TenantID, "contact_id", reply.ContactID)
			return nil
		}
	}
	if m.next == nil {
		m.logger.Warn("webchat: no transport for reply", "tenant_id", reply.TenantID, "contact_id", reply.ContactID)
		return nil
	}
	return m.next.SendReply(ctx, reply)
}
