package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var bookingsTracer = otel.Tracer("booking.internal.bookings")

// ReminderScheduler keeps the reminder queue in step with committed
// appointments.
type ReminderScheduler interface {
	Schedule(ctx context.Context, appt scheduling.Appointment) error
	Replace(ctx context.Context, appt scheduling.Appointment) error
	Cancel(ctx context.Context, appointmentID uuid.UUID) error
}

// Service commits bookings. Every write revalidates against current data;
// nothing computed for an earlier turn is trusted.
type Service struct {
	repo      Repository
	engine    *scheduling.Engine
	reminders ReminderScheduler
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithReminders(r ReminderScheduler) ServiceOption {
	return func(s *Service) {
		s.reminders = r
	}
}

func WithBookingMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService constructs a bookings service.
func NewService(repo Repository, engine *scheduling.Engine, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("bookings: repository required")
	}
	if engine == nil {
		panic("bookings: availability engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, engine: engine, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest describes a new booking.
type CreateRequest struct {
	TenantID   string
	ContactID  string
	Selections []scheduling.Selection
	Date       scheduling.Date
	Start      scheduling.Clock
}

// Create validates and commits a new confirmed appointment at version 1.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*scheduling.Appointment, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", req.TenantID),
		attribute.String("booking.contact_id", req.ContactID),
		attribute.String("booking.date", req.Date.String()),
	)

	tenant, err := s.loadTenant(ctx, req.TenantID)
	if err != nil {
		return nil, s.fail(span, "create", err)
	}
	if err := ValidateSelections(tenant, req.Selections); err != nil {
		return nil, s.fail(span, "create", err)
	}

	appt := scheduling.NewAppointment(req.TenantID, req.ContactID, req.Date, req.Start, req.Selections)
	if reason, ok, err := s.checkSlot(ctx, appt, nil); err != nil {
		return nil, s.fail(span, "create", err)
	} else if !ok {
		return nil, s.fail(span, "create", &ConflictError{Reason: reason})
	}

	res, err := s.repo.Insert(ctx, appt)
	if err != nil {
		return nil, s.fail(span, "create", err)
	}
	if res.Outcome == OutcomeConflict {
		return nil, s.fail(span, "create", &ConflictError{Reason: res.Reason})
	}
	appt.Version = res.Version
	s.metrics.ObserveCommit("create", string(OutcomeUpdated))

	if s.reminders != nil {
		if err := s.reminders.Schedule(ctx, appt); err != nil {
			s.logger.Warn("bookings: schedule reminder failed", "appointment_id", appt.ID, "error", err)
		}
	}
	s.logger.Info("booking created",
		"tenant_id", appt.TenantID,
		"contact_id", appt.ContactID,
		"appointment_id", appt.ID,
		"date", appt.Date.String(),
		"start", appt.Start.String(),
	)
	return &appt, nil
}

// RescheduleRequest moves an appointment the caller last saw at
// ExpectedVersion.
type RescheduleRequest struct {
	TenantID        string
	AppointmentID   uuid.UUID
	ExpectedVersion int64
	Date            scheduling.Date
	Start           scheduling.Clock
}

// Reschedule applies a conditional update; of two concurrent reschedules
// with the same expected version exactly one succeeds.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*scheduling.Appointment, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", req.TenantID),
		attribute.String("booking.appointment_id", req.AppointmentID.String()),
		attribute.Int64("booking.expected_version", req.ExpectedVersion),
	)

	current, err := s.repo.Get(ctx, req.TenantID, req.AppointmentID)
	if err != nil {
		return nil, s.fail(span, "reschedule", err)
	}
	if current.Status != scheduling.StatusConfirmed {
		return nil, s.fail(span, "reschedule", &ConflictError{AppointmentID: current.ID, Reason: ReasonNotActive})
	}
	if current.Version != req.ExpectedVersion {
		return nil, s.fail(span, "reschedule", &ConflictError{AppointmentID: current.ID, Reason: ReasonVersionMismatch})
	}

	moved := *current
	moved.Date = req.Date
	moved.Start = req.Start
	moved.End = req.Start + scheduling.Clock(current.DurationMinutes())
	if reason, ok, err := s.checkSlot(ctx, moved, current); err != nil {
		return nil, s.fail(span, "reschedule", err)
	} else if !ok {
		return nil, s.fail(span, "reschedule", &ConflictError{AppointmentID: current.ID, Reason: reason})
	}

	res, err := s.repo.Reschedule(ctx, req.TenantID, req.AppointmentID, req.ExpectedVersion, moved.Date, moved.Start, moved.End)
	if err != nil {
		return nil, s.fail(span, "reschedule", err)
	}
	if res.Outcome == OutcomeConflict {
		return nil, s.fail(span, "reschedule", &ConflictError{AppointmentID: current.ID, Reason: res.Reason})
	}
	moved.Version = res.Version
	s.metrics.ObserveCommit("reschedule", string(OutcomeUpdated))

	if s.reminders != nil {
		if err := s.reminders.Replace(ctx, moved); err != nil {
			s.logger.Warn("bookings: replace reminder failed", "appointment_id", moved.ID, "error", err)
		}
	}
	s.logger.Info("booking rescheduled",
		"tenant_id", moved.TenantID,
		"appointment_id", moved.ID,
		"date", moved.Date.String(),
		"start", moved.Start.String(),
		"version", moved.Version,
	)
	return &moved, nil
}

// Cancel marks an appointment cancelled if it is still at expectedVersion.
func (s *Service) Cancel(ctx context.Context, tenantID string, id uuid.UUID, expectedVersion int64) (*scheduling.Appointment, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", tenantID),
		attribute.String("booking.appointment_id", id.String()),
	)

	current, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, s.fail(span, "cancel", err)
	}
	res, err := s.repo.Cancel(ctx, tenantID, id, expectedVersion)
	if err != nil {
		return nil, s.fail(span, "cancel", err)
	}
	if res.Outcome == OutcomeConflict {
		return nil, s.fail(span, "cancel", &ConflictError{AppointmentID: id, Reason: res.Reason})
	}
	current.Status = scheduling.StatusCancelled
	current.Version = res.Version
	s.metrics.ObserveCommit("cancel", string(OutcomeUpdated))

	if s.reminders != nil {
		if err := s.reminders.Cancel(ctx, id); err != nil {
			s.logger.Warn("bookings: cancel reminder failed", "appointment_id", id, "error", err)
		}
	}
	s.logger.Info("booking cancelled", "tenant_id", tenantID, "appointment_id", id)
	return current, nil
}

// Get loads one appointment.
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*scheduling.Appointment, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// UpcomingFor lists a contact's confirmed appointments on or after from.
func (s *Service) UpcomingFor(ctx context.Context, tenantID, contactID string, from scheduling.Date) ([]scheduling.Appointment, error) {
	appts, err := s.repo.ListUpcoming(ctx, tenantID, contactID, from)
	if err != nil {
		return nil, fmt.Errorf("bookings: upcoming: %w", err)
	}
	return appts, nil
}

func (s *Service) loadTenant(ctx context.Context, tenantID string) (*scheduling.Tenant, error) {
	tenant, err := s.engine.Catalog().Tenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("bookings: load tenant: %w", err)
	}
	if tenant == nil {
		return nil, scheduling.ErrTenantNotFound
	}
	return tenant, nil
}

// checkSlot recomputes the working window and busy intervals for appt's
// date from current data.
func (s *Service) checkSlot(ctx context.Context, appt scheduling.Appointment, exclude *scheduling.Appointment) (ConflictReason, bool, error) {
	window, open, err := s.engine.EffectiveWindow(ctx, appt.TenantID, appt.Date)
	if err != nil {
		return "", false, err
	}
	if !open || !window.Contains(appt.Interval()) {
		return ReasonOutsideHours, false, nil
	}
	existing, err := s.engine.Catalog().AppointmentsOn(ctx, appt.TenantID, appt.Date)
	if err != nil {
		return "", false, fmt.Errorf("bookings: load appointments: %w", err)
	}
	if _, clash := scheduling.FirstConflict(appt.Interval(), scheduling.BusyIntervals(existing, exclude)); clash {
		return ReasonOverlap, false, nil
	}
	return "", true, nil
}

func (s *Service) fail(span trace.Span, operation string, err error) error {
	outcome := "error"
	if IsConflict(err) {
		outcome = string(OutcomeConflict)
	} else if sl := (*SessionLengthError)(nil); errors.As(err, &sl) || errors.Is(err, ErrNoSelections) {
		outcome = "rejected"
	}
	s.metrics.ObserveCommit(operation, outcome)
	span.RecordError(err)
	span.SetAttributes(attribute.String("booking.outcome", outcome))
	return err
}
