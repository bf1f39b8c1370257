package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// MemoryRepository is an in-process Repository for tests and local runs.
// All checks and writes happen under one mutex.
type MemoryRepository struct {
	mu    sync.Mutex
	appts map[uuid.UUID]scheduling.Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{appts: make(map[uuid.UUID]scheduling.Appointment)}
}

func (m *MemoryRepository) Insert(_ context.Context, appt scheduling.Appointment) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overlapsLocked(appt.TenantID, appt.Date, appt.Interval(), uuid.Nil) {
		return conflict(ReasonOverlap), nil
	}
	now := time.Now().UTC()
	appt.Status = scheduling.StatusConfirmed
	appt.Version = 1
	appt.CreatedAt = now
	appt.UpdatedAt = now
	m.appts[appt.ID] = appt
	return updated(1), nil
}

func (m *MemoryRepository) Get(_ context.Context, tenantID string, id uuid.UUID) (*scheduling.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appts[id]
	if !ok || appt.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return &appt, nil
}

func (m *MemoryRepository) Reschedule(_ context.Context, tenantID string, id uuid.UUID, expectedVersion int64, date scheduling.Date, start, end scheduling.Clock) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appts[id]
	if !ok || appt.TenantID != tenantID || appt.Version != expectedVersion || appt.Status != scheduling.StatusConfirmed {
		return conflict(ReasonVersionMismatch), nil
	}
	if m.overlapsLocked(tenantID, date, scheduling.Interval{Start: start, End: end}, id) {
		return conflict(ReasonOverlap), nil
	}
	appt.Date = date
	appt.Start = start
	appt.End = end
	appt.Version++
	appt.UpdatedAt = time.Now().UTC()
	m.appts[id] = appt
	return updated(appt.Version), nil
}

func (m *MemoryRepository) Cancel(_ context.Context, tenantID string, id uuid.UUID, expectedVersion int64) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appts[id]
	if !ok || appt.TenantID != tenantID || appt.Version != expectedVersion || appt.Status != scheduling.StatusConfirmed {
		return conflict(ReasonVersionMismatch), nil
	}
	appt.Status = scheduling.StatusCancelled
	appt.Version++
	appt.UpdatedAt = time.Now().UTC()
	m.appts[id] = appt
	return updated(appt.Version), nil
}

func (m *MemoryRepository) ListUpcoming(_ context.Context, tenantID, contactID string, from scheduling.Date) ([]scheduling.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []scheduling.Appointment
	for _, a := range m.appts {
		if a.TenantID != tenantID || a.ContactID != contactID || a.Status != scheduling.StatusConfirmed {
			continue
		}
		if a.Date.Before(from) {
			continue
		}
		out = append(out, a)
	}
	sortChronological(out)
	return out, nil
}

// AppointmentsOn lists the tenant's appointments on date, cancelled ones
// included, so the repository can back a scheduling.Catalog.
func (m *MemoryRepository) AppointmentsOn(_ context.Context, tenantID string, date scheduling.Date) ([]scheduling.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []scheduling.Appointment
	for _, a := range m.appts {
		if a.TenantID == tenantID && a.Date == date {
			out = append(out, a)
		}
	}
	sortChronological(out)
	return out, nil
}

func (m *MemoryRepository) overlapsLocked(tenantID string, date scheduling.Date, iv scheduling.Interval, exclude uuid.UUID) bool {
	for id, a := range m.appts {
		if id == exclude || a.TenantID != tenantID || a.Date != date || !a.Blocks() {
			continue
		}
		if iv.Overlaps(a.Interval()) {
			return true
		}
	}
	return false
}

func sortChronological(appts []scheduling.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date.Before(appts[j].Date)
		}
		return appts[i].Start < appts[j].Start
	})
}
