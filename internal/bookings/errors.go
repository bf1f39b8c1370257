package bookings

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

var (
	ErrNoSelections = errors.New("bookings: at least one service must be selected")
	ErrNotFound     = errors.New("bookings: appointment not found")
)

// ConflictReason explains why a commit was rejected.
type ConflictReason string

const (
	ReasonVersionMismatch ConflictReason = "version_mismatch"
	ReasonOverlap         ConflictReason = "overlap"
	ReasonOutsideHours    ConflictReason = "outside_hours"
	ReasonNotActive       ConflictReason = "not_active"
)

// ConflictError is returned when a commit lost a race or the slot is no
// longer free. The caller should offer fresh choices.
type ConflictError struct {
	AppointmentID uuid.UUID
	Reason        ConflictReason
}

func (e *ConflictError) Error() string {
	if e.AppointmentID == uuid.Nil {
		return fmt.Sprintf("bookings: conflict (%s)", e.Reason)
	}
	return fmt.Sprintf("bookings: conflict on %s (%s)", e.AppointmentID, e.Reason)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// SessionLengthError rejects a selection set whose summed duration exceeds
// the tenant's maximum session length.
type SessionLengthError struct {
	TotalMinutes  int
	MaxMinutes    int
	ExcessMinutes int
	Offending     scheduling.Selection
}

func (e *SessionLengthError) Error() string {
	return fmt.Sprintf("bookings: session of %d minutes exceeds limit of %d by %d (added %q)",
		e.TotalMinutes, e.MaxMinutes, e.ExcessMinutes, e.Offending.Name)
}
