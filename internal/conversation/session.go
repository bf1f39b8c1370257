package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// Session is the per-(tenant, contact) conversation record.
type Session struct {
	TenantID           string                 `json:"tenant_id"`
	ContactID          string                 `json:"contact_id"`
	State              StateID                `json:"state"`
	Previous           StateID                `json:"previous,omitempty"`
	Selections         []scheduling.Selection `json:"selections,omitempty"`
	SelectedDate       scheduling.Date        `json:"selected_date"`
	SelectedTime       *scheduling.Clock      `json:"selected_time,omitempty"`
	SelectedFAQ        string                 `json:"selected_faq,omitempty"`
	AppointmentID      uuid.UUID              `json:"appointment_id"`
	AppointmentVersion int64                  `json:"appointment_version,omitempty"`
	Rescheduling       bool                   `json:"rescheduling,omitempty"`
	// Skipped maps a state that auto-advanced to the state back-navigation
	// should land on instead.
	Skipped      map[StateID]StateID `json:"skipped,omitempty"`
	LastActivity time.Time           `json:"last_activity"`
}

// NewSession creates an empty session positioned before the welcome state.
func NewSession(tenantID, contactID string, now time.Time) *Session {
	return &Session{
		TenantID:     tenantID,
		ContactID:    contactID,
		LastActivity: now,
	}
}

// CheckExpiry returns a SessionExpiredError when the session has been idle
// longer than ttl. A non-positive ttl disables the check.
func (s *Session) CheckExpiry(now time.Time, ttl time.Duration) error {
	if ttl <= 0 || s.LastActivity.IsZero() {
		return nil
	}
	if now.Sub(s.LastActivity) > ttl {
		return &SessionExpiredError{LastActivity: s.LastActivity, TTL: ttl}
	}
	return nil
}

// Reset clears everything gathered for a booking or a managed appointment.
func (s *Session) Reset() {
	s.Selections = nil
	s.SelectedDate = scheduling.Date{}
	s.SelectedTime = nil
	s.SelectedFAQ = ""
	s.AppointmentID = uuid.Nil
	s.AppointmentVersion = 0
	s.Rescheduling = false
	s.Skipped = nil
}

// TotalMinutes sums the selected services.
func (s *Session) TotalMinutes() int {
	return scheduling.TotalMinutes(s.Selections)
}

// HasSelection reports whether serviceID is already selected.
func (s *Session) HasSelection(serviceID string) bool {
	for _, sel := range s.Selections {
		if sel.ServiceID == serviceID {
			return true
		}
	}
	return false
}

func (s *Session) markSkipped(state, returnTo StateID) {
	if s.Skipped == nil {
		s.Skipped = make(map[StateID]StateID)
	}
	s.Skipped[state] = returnTo
}

func (s *Session) clearSkipped(state StateID) {
	delete(s.Skipped, state)
}

// SessionStore persists sessions keyed by (tenant, contact).
type SessionStore interface {
	Get(ctx context.Context, tenantID, contactID string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Expire(ctx context.Context, tenantID, contactID string) error
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (m *MemorySessionStore) Get(_ context.Context, tenantID, contactID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(tenantID, contactID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *MemorySessionStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionKey(s.TenantID, s.ContactID)] = *cloneSession(*s)
	return nil
}

func (m *MemorySessionStore) Expire(_ context.Context, tenantID, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(tenantID, contactID))
	return nil
}

func cloneSession(s Session) *Session {
	out := s
	out.Selections = append([]scheduling.Selection(nil), s.Selections...)
	if s.SelectedTime != nil {
		t := *s.SelectedTime
		out.SelectedTime = &t
	}
	if s.Skipped != nil {
		out.Skipped = make(map[StateID]StateID, len(s.Skipped))
		for k, v := range s.Skipped {
			out.Skipped[k] = v
		}
	}
	return &out
}

func sessionKey(tenantID, contactID string) string {
	return "session:" + tenantID + ":" + contactID
}
