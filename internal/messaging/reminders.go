package messaging

import (
	"context"
	"fmt"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/messaging/templates"
	"github.com/wolfman30/booking-assistant/internal/reminders"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// DefaultReminderTemplate is the text sent for a due reminder.
const DefaultReminderTemplate = "Hi! A reminder from {{.TenantName}}: your appointment is on {{.Date}} at {{.Time}}. " +
	"Message us any time to reschedule or cancel."

// TenantLookup resolves the tenant a reminder belongs to.
type TenantLookup interface {
	Tenant(ctx context.Context, tenantID string) (*scheduling.Tenant, error)
}

// ReminderDispatcher delivers due reminders through the reply transport.
type ReminderDispatcher struct {
	tenants   TenantLookup
	messenger conversation.ReplyMessenger
	renderer  templates.Renderer
	template  string
}

// NewReminderDispatcher builds a dispatcher; an empty tmpl uses DefaultReminderTemplate.
func NewReminderDispatcher(tenants TenantLookup, messenger conversation.ReplyMessenger, tmpl string) *ReminderDispatcher {
	if tmpl == "" {
		tmpl = DefaultReminderTemplate
	}
	return &ReminderDispatcher{tenants: tenants, messenger: messenger, template: tmpl}
}

var _ reminders.Dispatcher = (*ReminderDispatcher)(nil)

func (d *ReminderDispatcher) Dispatch(ctx context.Context, e reminders.Entry) error {
	tenant, err := d.tenants.Tenant(ctx, e.TenantID)
	if err != nil {
		return fmt.Errorf("messaging: load tenant for reminder: %w", err)
	}
	if tenant == nil {
		return fmt.Errorf("messaging: reminder %s: %w", e.ID, scheduling.ErrTenantNotFound)
	}
	text, err := d.renderer.Render("reminder", d.template, map[string]any{
		"TenantName": tenant.Name,
		"Date":       e.StartsAt.Format("Monday, Jan 2"),
		"Time":       e.StartsAt.Format("15:04"),
	})
	if err != nil {
		return err
	}
	return d.messenger.SendReply(ctx, conversation.OutgoingMessage{
		TenantID:  e.TenantID,
		ContactID: e.ContactID,
		Content:   text,
	})
}
