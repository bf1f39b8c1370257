package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// DefaultLead is how long before the appointment a reminder fires.
const DefaultLead = 24 * time.Hour

// Scheduler keeps reminder entries in step with appointment commits.
type Scheduler struct {
	store  EntryStore
	lead   time.Duration
	now    func() time.Time
	logger *logging.Logger
}

// NewScheduler creates a reminder scheduler. A non-positive lead uses DefaultLead.
func NewScheduler(store EntryStore, lead time.Duration, logger *logging.Logger) *Scheduler {
	if store == nil {
		panic("reminders: store required")
	}
	if lead <= 0 {
		lead = DefaultLead
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{store: store, lead: lead, now: time.Now, logger: logger}
}

// EntryFor derives the queue entry for an appointment.
func (s *Scheduler) EntryFor(appt scheduling.Appointment) Entry {
	startsAt := appt.StartsAt()
	return Entry{
		AppointmentID: appt.ID,
		TenantID:      appt.TenantID,
		ContactID:     appt.ContactID,
		StartsAt:      startsAt,
		FireAt:        startsAt.Add(-s.lead),
		Status:        StatusPending,
	}
}

// Schedule queues a reminder for a newly confirmed appointment. Nothing is
// queued for an appointment that has already started.
func (s *Scheduler) Schedule(ctx context.Context, appt scheduling.Appointment) error {
	if appt.Status != scheduling.StatusConfirmed {
		return nil
	}
	entry := s.EntryFor(appt)
	if !entry.StartsAt.After(scheduling.WallClock(s.now())) {
		s.logger.Debug("reminders: appointment already started, skipping", "appointment_id", appt.ID)
		return nil
	}
	if err := s.store.Create(ctx, &entry); err != nil {
		return fmt.Errorf("reminders: schedule: %w", err)
	}
	s.logger.Info("reminders: entry scheduled",
		"id", entry.ID,
		"tenant_id", entry.TenantID,
		"appointment_id", entry.AppointmentID,
		"fire_at", entry.FireAt.Format(time.RFC3339),
	)
	return nil
}

// Cancel drops the pending entries of an appointment.
func (s *Scheduler) Cancel(ctx context.Context, appointmentID uuid.UUID) error {
	n, err := s.store.CancelForAppointment(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("reminders: cancel: %w", err)
	}
	s.logger.Debug("reminders: entries cancelled", "appointment_id", appointmentID, "count", n)
	return nil
}

// Replace cancels the old entry and queues one for the appointment's new time.
func (s *Scheduler) Replace(ctx context.Context, appt scheduling.Appointment) error {
	if err := s.Cancel(ctx, appt.ID); err != nil {
		return err
	}
	return s.Schedule(ctx, appt)
}
