package reminders

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a reminder entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
)

// Entry is one queued reminder for an appointment. FireAt is the
// appointment start minus the configured lead.
type Entry struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	TenantID      string     `json:"tenant_id"`
	ContactID     string     `json:"contact_id"`
	StartsAt      time.Time  `json:"starts_at"`
	FireAt        time.Time  `json:"fire_at"`
	Status        Status     `json:"status"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Due reports whether the entry should be handed to delivery at now.
func (e Entry) Due(now time.Time) bool {
	return e.Status == StatusPending && !e.FireAt.After(now)
}

// Stats holds per-tenant counts for the admin endpoint.
type Stats struct {
	Pending   int64 `json:"pending"`
	Sent      int64 `json:"sent"`
	Cancelled int64 `json:"cancelled"`
}
