package conversation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wolfman30/booking-assistant/internal/matching"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// StateID names a state in the table.
type StateID string

const (
	StateWelcome           StateID = "welcome"
	StateChooseService     StateID = "choose_service"
	StateMoreServices      StateID = "more_services"
	StateAddService        StateID = "add_service"
	StateCheckServices     StateID = "check_services"
	StateChooseDate        StateID = "choose_date"
	StateChooseTime        StateID = "choose_time"
	StateConfirm           StateID = "confirm"
	StateBook              StateID = "book"
	StateBooked            StateID = "booked"
	StateMyAppointments    StateID = "my_appointments"
	StateManageAppointment StateID = "manage_appointment"
	StateStartReschedule   StateID = "start_reschedule"
	StateCancelConfirm     StateID = "cancel_confirm"
	StateCancelled         StateID = "cancelled"
	StateFAQ               StateID = "faq"
	StateFAQAnswer         StateID = "faq_answer"
	StateHandoff           StateID = "handoff"
	StateUnrecognized      StateID = "unrecognized"
)

// Env is what options and entry handlers see for the current turn.
type Env struct {
	Tenant  *scheduling.Tenant
	Session *Session
	// Origin is the state the contact was in when the turn started.
	Origin StateID
	// Now is tenant-local wall time.
	Now  time.Time
	Text string
}

// Today is the tenant-local civil date of the turn.
func (e *Env) Today() scheduling.Date {
	return scheduling.DateOf(e.Now)
}

// Outcome is what an entry handler produces. Template and Data become the
// state's content; Patch is applied to the session before the next hop.
// Redirect moves straight on to another state in the same turn; Skip marks
// this state as auto-advanced for back-navigation.
type Outcome struct {
	Template string
	Data     map[string]any
	Patch    func(*Session)
	Redirect StateID
	Skip     bool
}

// OptionsFunc produces a state's dynamic choices from live data.
type OptionsFunc func(ctx context.Context, env *Env) ([]matching.Choice, error)

// EntryHandler runs when a state is entered. options are the dynamic
// choices just produced for the state.
type EntryHandler func(ctx context.Context, env *Env, options []matching.Choice) (Outcome, error)

// StateDef is one row of the state table.
type StateDef struct {
	ID          StateID
	Template    string
	Static      []matching.Choice
	Transitions map[string]StateID
	Dynamic     map[Tag]StateID
	Fallback    StateID
	Previous    StateID
	Options     OptionsFunc
	OnEnter     EntryHandler
}

// Table is the full state machine definition.
type Table map[StateID]*StateDef

// Validate checks that every referenced state exists, that every dynamic
// tag is registered and that no static id collides with a tag.
func (t Table) Validate(tags *TagRegistry) error {
	if _, ok := t[StateWelcome]; !ok {
		return fmt.Errorf("conversation: table has no %s state", StateWelcome)
	}
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	var static []string
	for _, raw := range ids {
		def := t[StateID(raw)]
		if def.ID != StateID(raw) {
			return fmt.Errorf("conversation: state %s registered under %s", def.ID, raw)
		}
		for _, c := range def.Static {
			static = append(static, c.ID)
			if _, isShortcut := matching.ShortcutFromID(c.ID); isShortcut {
				continue
			}
			if _, ok := def.Transitions[c.ID]; !ok {
				return fmt.Errorf("conversation: state %s offers %q without a transition", def.ID, c.ID)
			}
		}
		for choice, target := range def.Transitions {
			if _, ok := t[target]; !ok {
				return fmt.Errorf("conversation: state %s choice %q targets unknown state %s", def.ID, choice, target)
			}
		}
		for tag, target := range def.Dynamic {
			if !tags.Has(tag) {
				return fmt.Errorf("conversation: state %s uses unregistered tag %q", def.ID, tag)
			}
			if _, ok := t[target]; !ok {
				return fmt.Errorf("conversation: state %s tag %q targets unknown state %s", def.ID, tag, target)
			}
		}
		for _, ref := range []StateID{def.Fallback, def.Previous} {
			if ref == "" {
				continue
			}
			if _, ok := t[ref]; !ok {
				return fmt.Errorf("conversation: state %s references unknown state %s", def.ID, ref)
			}
		}
	}
	return tags.Validate(static)
}
