package bookings

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// Outcome tags the result of a conditional write.
type Outcome string

const (
	OutcomeUpdated  Outcome = "updated"
	OutcomeConflict Outcome = "conflict"
)

// WriteResult is returned by every conditional write. Version is the stored
// version after an update and zero on conflict.
type WriteResult struct {
	Outcome Outcome
	Version int64
	Reason  ConflictReason
}

func updated(version int64) WriteResult {
	return WriteResult{Outcome: OutcomeUpdated, Version: version}
}

func conflict(reason ConflictReason) WriteResult {
	return WriteResult{Outcome: OutcomeConflict, Reason: reason}
}

// Repository persists appointments. Implementations must make the overlap
// check and the write atomic, and must only apply a reschedule or cancel
// when the stored version equals the expected one.
type Repository interface {
	Insert(ctx context.Context, appt scheduling.Appointment) (WriteResult, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*scheduling.Appointment, error)
	Reschedule(ctx context.Context, tenantID string, id uuid.UUID, expectedVersion int64, date scheduling.Date, start, end scheduling.Clock) (WriteResult, error)
	Cancel(ctx context.Context, tenantID string, id uuid.UUID, expectedVersion int64) (WriteResult, error)
	ListUpcoming(ctx context.Context, tenantID, contactID string, from scheduling.Date) ([]scheduling.Appointment, error)
}
