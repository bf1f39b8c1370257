package conversation

import (
	"context"
	"time"

	"github.com/wolfman30/booking-assistant/internal/matching"
)

// IncomingMessage is one inbound turn from a contact. SelectedID is set when
// the contact activated a presented choice instead of typing.
type IncomingMessage struct {
	TenantID   string    `json:"tenant_id"`
	ContactID  string    `json:"contact_id"`
	Text       string    `json:"text"`
	SelectedID string    `json:"selected_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutgoingMessage is the reply to a turn. Content is never empty.
type OutgoingMessage struct {
	TenantID  string            `json:"tenant_id"`
	ContactID string            `json:"contact_id"`
	Content   string            `json:"content"`
	Choices   []matching.Choice `json:"choices,omitempty"`
	State     StateID           `json:"state,omitempty"`
}

// ReplyMessenger delivers replies back to the contact.
type ReplyMessenger interface {
	SendReply(ctx context.Context, msg OutgoingMessage) error
}
