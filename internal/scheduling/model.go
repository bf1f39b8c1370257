package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// FAQEntry is a tenant-authored question and answer.
type FAQEntry struct {
	Key      string `json:"key"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Tenant is an isolated business whose data never mixes with another tenant's.
type Tenant struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	BusinessHours     map[Weekday]Window `json:"business_hours,omitempty"`
	BufferMinutes     int                `json:"buffer_minutes"`
	MaxSessionMinutes int                `json:"max_session_minutes"`
	FAQ               []FAQEntry         `json:"faq,omitempty"`
}

// FAQByKey looks up a FAQ entry.
func (t *Tenant) FAQByKey(key string) (FAQEntry, bool) {
	if t == nil {
		return FAQEntry{}, false
	}
	for _, e := range t.FAQ {
		if e.Key == key {
			return e, true
		}
	}
	return FAQEntry{}, false
}

// Service is a bookable treatment.
type Service struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Active          bool   `json:"active"`
}

// Selection snapshots the service fields an appointment depends on.
func (s Service) Selection() Selection {
	return Selection{ServiceID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes}
}

// Rule is the recurring working window for one weekday.
type Rule struct {
	TenantID string
	Weekday  Weekday
	Window   Window
}

// ExceptionKind says how an Exception overrides its date.
type ExceptionKind string

const (
	ExceptionBlocked      ExceptionKind = "BLOCKED"
	ExceptionSpecialHours ExceptionKind = "SPECIAL_HOURS"
)

// Exception overrides the weekday Rule for a single date.
type Exception struct {
	TenantID string
	Date     Date
	Kind     ExceptionKind
	Window   Window
}

// Selection is one service chosen for an appointment.
type Selection struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

// TotalMinutes sums the durations of the selections.
func TotalMinutes(selections []Selection) int {
	total := 0
	for _, s := range selections {
		total += s.DurationMinutes
	}
	return total
}

// AppointmentStatus tracks an appointment's lifecycle. Appointments are
// never deleted; they only change status.
type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Appointment is a committed booking.
type Appointment struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   string            `json:"tenant_id"`
	ContactID  string            `json:"contact_id"`
	Selections []Selection       `json:"selections"`
	Date       Date              `json:"date"`
	Start      Clock             `json:"start"`
	End        Clock             `json:"end"`
	Status     AppointmentStatus `json:"status"`
	Version    int64             `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewAppointment builds a confirmed appointment whose end is start plus the
// summed service durations.
func NewAppointment(tenantID, contactID string, date Date, start Clock, selections []Selection) Appointment {
	return Appointment{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ContactID:  contactID,
		Selections: append([]Selection(nil), selections...),
		Date:       date,
		Start:      start,
		End:        start + Clock(TotalMinutes(selections)),
		Status:     StatusConfirmed,
	}
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End}
}

// StartsAt is the tenant-local wall time the appointment begins.
func (a Appointment) StartsAt() time.Time {
	return a.Date.At(a.Start)
}

// Blocks reports whether the appointment occupies its interval.
func (a Appointment) Blocks() bool {
	return a.Status != StatusCancelled
}

// DurationMinutes is End - Start.
func (a Appointment) DurationMinutes() int {
	return int(a.End - a.Start)
}
