package reminders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an EntryStore for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]Entry)}
}

func (m *MemoryStore) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = StatusPending
	}
	m.entries[e.ID] = *e
	return nil
}

func (m *MemoryStore) CancelForAppointment(_ context.Context, appointmentID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if e.AppointmentID == appointmentID && e.Status == StatusPending {
			e.Status = StatusCancelled
			e.UpdatedAt = time.Now().UTC()
			m.entries[id] = e
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListDue(_ context.Context, asOf time.Time, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Due(asOf) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != StatusPending {
		return fmt.Errorf("reminders: mark sent: no pending entry with id %s", id)
	}
	now := time.Now().UTC()
	e.Status = StatusSent
	e.SentAt = &now
	e.UpdatedAt = now
	m.entries[id] = e
	return nil
}

// ForAppointment returns every entry recorded for an appointment.
func (m *MemoryStore) ForAppointment(appointmentID uuid.UUID) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListByTenant returns the tenant's entries, soonest first.
func (m *MemoryStore) ListByTenant(_ context.Context, tenantID string, status *Status, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.TenantID != tenantID || (status != nil && e.Status != *status) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context, tenantID string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &Stats{}
	for _, e := range m.entries {
		if e.TenantID != tenantID {
			continue
		}
		switch e.Status {
		case StatusPending:
			stats.Pending++
		case StatusSent:
			stats.Sent++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}
