package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-assistant/internal/bookings"
	"github.com/wolfman30/booking-assistant/internal/matching"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

var (
	tuesday   = scheduling.Date{Year: 2026, Month: time.February, Day: 10}
	wednesday = scheduling.Date{Year: 2026, Month: time.February, Day: 11}
)

type harness struct {
	t        *testing.T
	machine  *Machine
	catalog  *scheduling.MemoryCatalog
	repo     *bookings.MemoryRepository
	bookings *bookings.Service
	sessions *MemorySessionStore
	now      time.Time
}

func morningWindow() scheduling.Window {
	return scheduling.Window{Start: scheduling.NewClock(9, 0), End: scheduling.NewClock(12, 0)}
}

// newHarness builds a tenant open Tuesday and Wednesday mornings with three
// services and a 90-minute session limit. The clock starts Monday 08:00.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Date(2026, time.February, 9, 8, 0, 0, 0, time.UTC)}
	h.repo = bookings.NewMemoryRepository()
	h.catalog = scheduling.NewMemoryCatalog(h.repo)
	h.catalog.PutTenant(scheduling.Tenant{
		ID:                "t1",
		Name:              "Glow Clinic",
		MaxSessionMinutes: 90,
		BusinessHours: map[scheduling.Weekday]scheduling.Window{
			scheduling.Tuesday:   morningWindow(),
			scheduling.Wednesday: morningWindow(),
		},
		FAQ: []scheduling.FAQEntry{
			{Key: "parking", Question: "Is there parking?", Answer: "Yes, behind the building."},
			{Key: "pay", Question: "Which payment methods do you take?", Answer: "Cards and cash."},
		},
	})
	for _, svc := range []scheduling.Service{
		{ID: "s1", TenantID: "t1", Name: "Facial", DurationMinutes: 60, Active: true},
		{ID: "s2", TenantID: "t1", Name: "Peel", DurationMinutes: 45, Active: true},
		{ID: "s3", TenantID: "t1", Name: "Laser", DurationMinutes: 60, Active: true},
	} {
		h.catalog.PutService(svc)
	}
	h.catalog.PutRule(scheduling.Rule{TenantID: "t1", Weekday: scheduling.Tuesday, Window: morningWindow()})
	h.catalog.PutRule(scheduling.Rule{TenantID: "t1", Weekday: scheduling.Wednesday, Window: morningWindow()})

	engine := scheduling.NewEngine(h.catalog, nil)
	h.bookings = bookings.NewService(h.repo, engine, nil)
	h.sessions = NewMemorySessionStore()
	flow := NewFlow(engine, h.bookings, FlowConfig{HorizonDays: 7}, nil)

	machine, err := NewMachine(flow, h.sessions, nil,
		WithClock(func() time.Time { return h.now }),
		WithConversationMetrics(metrics.NewConversationMetrics(prometheus.NewRegistry())),
	)
	require.NoError(t, err)
	h.machine = machine
	return h
}

func (h *harness) say(contact, text string) *OutgoingMessage {
	h.t.Helper()
	out, err := h.machine.HandleTurn(context.Background(), IncomingMessage{TenantID: "t1", ContactID: contact, Text: text})
	require.NoError(h.t, err)
	require.NotEmpty(h.t, out.Content)
	return out
}

func (h *harness) click(contact, id string) *OutgoingMessage {
	h.t.Helper()
	out, err := h.machine.HandleTurn(context.Background(), IncomingMessage{TenantID: "t1", ContactID: contact, SelectedID: id})
	require.NoError(h.t, err)
	require.NotEmpty(h.t, out.Content)
	return out
}

func (h *harness) session(contact string) *Session {
	h.t.Helper()
	s, err := h.sessions.Get(context.Background(), "t1", contact)
	require.NoError(h.t, err)
	return s
}

func choiceIDs(choices []matching.Choice) []string {
	ids := make([]string, 0, len(choices))
	for _, c := range choices {
		ids = append(ids, c.ID)
	}
	return ids
}

// toTimeChoice walks a new contact from the greeting to the time list for
// a Facial on Tuesday.
func (h *harness) toTimeChoice(contact string) *OutgoingMessage {
	h.t.Helper()
	h.say(contact, "hi")
	h.click(contact, "book")
	h.say(contact, "facial")
	h.click(contact, "continue")
	return h.click(contact, "day_2026-02-10")
}

func TestHandleTurnBooksAppointment(t *testing.T) {
	h := newHarness(t)

	out := h.say("c1", "hello")
	assert.Equal(t, StateWelcome, out.State)
	assert.Contains(t, out.Content, "Welcome to Glow Clinic")
	assert.Contains(t, choiceIDs(out.Choices), "book")

	out = h.click("c1", "book")
	assert.Equal(t, StateChooseService, out.State)
	assert.Equal(t, []string{"svc_s1", "svc_s3", "svc_s2", "nav_menu"}, choiceIDs(out.Choices))
	assert.Equal(t, "Facial (60 min)", out.Choices[0].Label)

	out = h.say("c1", "facial")
	assert.Equal(t, StateMoreServices, out.State)
	assert.Contains(t, out.Content, "You've selected Facial (60 min)")

	out = h.click("c1", "continue")
	assert.Equal(t, StateChooseDate, out.State)
	assert.Contains(t, out.Content, "60-minute visit")
	assert.Equal(t, []string{"day_2026-02-10", "day_2026-02-11", "nav_back", "nav_menu"}, choiceIDs(out.Choices))
	assert.Equal(t, "Tuesday, Feb 10", out.Choices[0].Label)

	out = h.click("c1", "day_2026-02-10")
	assert.Equal(t, StateChooseTime, out.State)
	assert.Contains(t, out.Content, "open times on Tuesday, Feb 10")
	assert.Equal(t, []string{"time_09:00", "time_10:00", "time_11:00", "nav_back"}, choiceIDs(out.Choices))

	out = h.say("c1", "10:00")
	assert.Equal(t, StateConfirm, out.State)
	assert.Equal(t, "Please confirm: Facial on Tuesday, Feb 10 at 10:00.", out.Content)

	out = h.click("c1", "confirm")
	assert.Equal(t, StateBooked, out.State)
	assert.Equal(t, "You're booked! Facial on Tuesday, Feb 10 at 10:00.", out.Content)

	appts, err := h.bookings.UpcomingFor(context.Background(), "t1", "c1", tuesday)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, scheduling.NewClock(10, 0), appts[0].Start)
	assert.Equal(t, int64(1), appts[0].Version)

	s := h.session("c1")
	assert.Equal(t, appts[0].ID, s.AppointmentID)
	assert.Empty(t, s.Selections)
}

func TestHandleTurnDecodesDayBeforeEnteringTimeState(t *testing.T) {
	h := newHarness(t)
	out := h.toTimeChoice("c1")

	assert.Equal(t, StateChooseTime, out.State)
	s := h.session("c1")
	assert.Equal(t, tuesday, s.SelectedDate)
	assert.Nil(t, s.SelectedTime)
	assert.NotEmpty(t, out.Choices)
}

func TestHandleTurnNumericPosition(t *testing.T) {
	h := newHarness(t)
	h.say("c1", "hi")
	out := h.say("c1", "1")
	assert.Equal(t, StateChooseService, out.State)

	out = h.say("c1", "3")
	assert.Equal(t, StateMoreServices, out.State)
	assert.Equal(t, "s2", h.session("c1").Selections[0].ServiceID)
}

func TestHandleTurnSlotTakenAtCommit(t *testing.T) {
	h := newHarness(t)
	h.toTimeChoice("c1")
	h.click("c1", "time_10:00")

	_, err := h.bookings.Create(context.Background(), bookings.CreateRequest{
		TenantID:   "t1",
		ContactID:  "c2",
		Selections: []scheduling.Selection{{ServiceID: "s2", Name: "Peel", DurationMinutes: 45}},
		Date:       tuesday,
		Start:      scheduling.NewClock(10, 0),
	})
	require.NoError(t, err)

	out := h.click("c1", "confirm")
	assert.Equal(t, StateChooseTime, out.State)
	assert.Contains(t, out.Content, "Sorry, 10:00 on Tuesday, Feb 10 was just taken.")
	assert.Contains(t, out.Content, "open times on Tuesday, Feb 10")
	assert.Equal(t, []string{"time_09:00", "time_11:00", "nav_back"}, choiceIDs(out.Choices))
	assert.Nil(t, h.session("c1").SelectedTime)
}

func TestHandleTurnSessionTooLong(t *testing.T) {
	h := newHarness(t)
	h.say("c1", "hi")
	h.click("c1", "book")
	h.say("c1", "facial")

	out := h.click("c1", "add_service")
	assert.Equal(t, StateAddService, out.State)
	assert.Equal(t, []string{"svc_s3", "svc_s2", "nav_back"}, choiceIDs(out.Choices))

	h.say("c1", "laser")
	out = h.click("c1", "continue")
	assert.Equal(t, StateMoreServices, out.State)
	assert.Contains(t, out.Content, "Adding Laser would make your visit 120 minutes, 30 over our 90-minute limit")
	assert.Contains(t, out.Content, "You've selected Facial (60 min)")

	s := h.session("c1")
	require.Len(t, s.Selections, 1)
	assert.Equal(t, "s1", s.Selections[0].ServiceID)
}

func TestHandleTurnUnrecognizedRepresentsState(t *testing.T) {
	h := newHarness(t)
	h.say("c1", "hi")
	h.click("c1", "book")

	out := h.say("c1", "xyzzy")
	assert.Equal(t, StateChooseService, out.State)
	assert.True(t, strings.HasPrefix(out.Content, "Sorry, I didn't catch that."))
	assert.Contains(t, out.Content, "Which service would you like to book?")
	assert.Contains(t, choiceIDs(out.Choices), "svc_s1")
}

func TestHandleTurnIgnoresStaleStructuralSelection(t *testing.T) {
	h := newHarness(t)
	h.say("c1", "hi")

	out := h.click("c1", "time_10:00")
	assert.Equal(t, StateWelcome, out.State)
	assert.Contains(t, out.Content, "Sorry, I didn't catch that.")
	assert.Nil(t, h.session("c1").SelectedTime)
}

func TestHandleTurnShortcuts(t *testing.T) {
	h := newHarness(t)
	h.toTimeChoice("c1")

	out := h.say("c1", "Main Menu")
	assert.Equal(t, StateWelcome, out.State)
	s := h.session("c1")
	assert.Empty(t, s.Selections)
	assert.True(t, s.SelectedDate.IsZero())

	out = h.say("c1", "talk to a person")
	assert.Equal(t, StateHandoff, out.State)
	assert.Contains(t, out.Content, "Glow Clinic team")
	assert.Contains(t, out.Content, "Tuesday: 09:00-12:00\nWednesday: 09:00-12:00")
}

func TestHandleTurnBackNavigation(t *testing.T) {
	h := newHarness(t)
	h.toTimeChoice("c1")
	h.click("c1", "time_09:00")

	out := h.say("c1", "back")
	assert.Equal(t, StateChooseTime, out.State)

	out = h.click("c1", "nav_back")
	assert.Equal(t, StateChooseDate, out.State)

	out = h.say("c1", "back")
	assert.Equal(t, StateMoreServices, out.State)
}

func TestHandleTurnBackSkipsAutoAdvancedStates(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutTenant(scheduling.Tenant{ID: "solo", Name: "Solo Studio"})
	h.catalog.PutService(scheduling.Service{ID: "only", TenantID: "solo", Name: "Massage", DurationMinutes: 60, Active: true})
	h.catalog.PutRule(scheduling.Rule{TenantID: "solo", Weekday: scheduling.Tuesday, Window: morningWindow()})

	turn := func(text, selected string) *OutgoingMessage {
		out, err := h.machine.HandleTurn(context.Background(), IncomingMessage{TenantID: "solo", ContactID: "c1", Text: text, SelectedID: selected})
		require.NoError(t, err)
		return out
	}

	turn("hi", "")
	out := turn("", "book")
	assert.Equal(t, StateChooseDate, out.State, "single service skips straight to dates")

	out = turn("", "day_2026-02-10")
	assert.Equal(t, StateChooseTime, out.State)

	out = turn("back", "")
	assert.Equal(t, StateChooseDate, out.State)

	out = turn("back", "")
	assert.Equal(t, StateWelcome, out.State, "auto-advanced service states are skipped")
}

func TestHandleTurnExpiredSessionRestarts(t *testing.T) {
	h := newHarness(t)
	h.toTimeChoice("c1")

	h.now = h.now.Add(DefaultSessionTTL + time.Minute)
	out := h.say("c1", "10:00")
	assert.Equal(t, StateWelcome, out.State)
	assert.Nil(t, h.session("c1").SelectedTime)
}

func TestHandleTurnDropsStartedSlotsToday(t *testing.T) {
	h := newHarness(t)
	h.now = time.Date(2026, time.February, 10, 9, 30, 0, 0, time.UTC)
	out := h.toTimeChoice("c1")

	assert.Equal(t, []string{"time_10:00", "time_11:00", "nav_back"}, choiceIDs(out.Choices))
}

func TestHandleTurnRejectsUnofferedTimes(t *testing.T) {
	h := newHarness(t)
	h.now = time.Date(2026, time.February, 10, 9, 30, 0, 0, time.UTC)
	h.toTimeChoice("c1")

	for _, id := range []string{"time_09:00", "time_09:17", "time_13:00"} {
		out := h.click("c1", id)
		assert.Equal(t, StateChooseTime, out.State, id)
		assert.Nil(t, h.session("c1").SelectedTime, id)

		out = h.click("c1", "confirm")
		assert.NotEqual(t, StateBooked, out.State, id)
	}

	appts, err := h.bookings.UpcomingFor(context.Background(), "t1", "c1", tuesday)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestHandleTurnRejectsTimeTakenSinceListed(t *testing.T) {
	h := newHarness(t)
	h.toTimeChoice("c1")

	_, err := h.bookings.Create(context.Background(), bookings.CreateRequest{
		TenantID:   "t1",
		ContactID:  "c2",
		Selections: []scheduling.Selection{{ServiceID: "s1", Name: "Facial", DurationMinutes: 60}},
		Date:       tuesday,
		Start:      scheduling.NewClock(10, 0),
	})
	require.NoError(t, err)

	out := h.click("c1", "time_10:00")
	assert.Equal(t, StateChooseTime, out.State)
	assert.Equal(t, []string{"time_09:00", "time_11:00", "nav_back"}, choiceIDs(out.Choices))
	assert.Nil(t, h.session("c1").SelectedTime)
}

func TestHandleTurnRejectsPastDay(t *testing.T) {
	h := newHarness(t)
	h.now = time.Date(2026, time.February, 11, 8, 0, 0, 0, time.UTC)
	h.say("c1", "hi")
	h.click("c1", "book")
	h.say("c1", "facial")
	h.click("c1", "continue")

	out := h.click("c1", "day_2026-02-10")
	assert.Equal(t, StateChooseDate, out.State)
	assert.True(t, h.session("c1").SelectedDate.IsZero())
}

func TestHandleTurnRescheduleAfterAppointmentChanged(t *testing.T) {
	h := newHarness(t)
	h.toTimeChoice("c1")
	h.click("c1", "time_10:00")
	h.click("c1", "confirm")
	h.click("c1", "my_appointments")

	s := h.session("c1")
	_, err := h.bookings.Reschedule(context.Background(), bookings.RescheduleRequest{
		TenantID:        "t1",
		AppointmentID:   s.AppointmentID,
		ExpectedVersion: s.AppointmentVersion,
		Date:            wednesday,
		Start:           scheduling.NewClock(11, 0),
	})
	require.NoError(t, err)

	out := h.click("c1", "reschedule")
	assert.Equal(t, StateManageAppointment, out.State)
	assert.Contains(t, out.Content, "That appointment changed a moment ago.")
	assert.Contains(t, out.Content, "Facial on Wednesday, Feb 11 at 11:00")
	assert.False(t, h.session("c1").Rescheduling)
}

func TestHandleTurnRescheduleAndCancel(t *testing.T) {
	h := newHarness(t)
	h.toTimeChoice("c1")
	h.click("c1", "time_10:00")
	h.click("c1", "confirm")

	out := h.click("c1", "my_appointments")
	assert.Equal(t, StateManageAppointment, out.State, "a single appointment is opened directly")
	assert.Contains(t, out.Content, "Facial on Tuesday, Feb 10 at 10:00")

	out = h.click("c1", "reschedule")
	assert.Equal(t, StateChooseDate, out.State)
	assert.True(t, h.session("c1").Rescheduling)

	h.click("c1", "day_2026-02-11")
	out = h.click("c1", "time_09:00")
	assert.Equal(t, "Move your Facial to Wednesday, Feb 11 at 09:00?", out.Content)

	out = h.click("c1", "confirm")
	assert.Equal(t, StateBooked, out.State)
	assert.Equal(t, "Done! Your Facial is now on Wednesday, Feb 11 at 09:00.", out.Content)

	appts, err := h.bookings.UpcomingFor(context.Background(), "t1", "c1", tuesday)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, wednesday, appts[0].Date)
	assert.Equal(t, int64(2), appts[0].Version)

	h.click("c1", "my_appointments")
	out = h.click("c1", "cancel")
	assert.Equal(t, StateCancelConfirm, out.State)
	assert.Equal(t, "Cancel your Facial on Wednesday, Feb 11 at 09:00?", out.Content)

	out = h.click("c1", "cancel_yes")
	assert.Equal(t, StateWelcome, out.State)
	assert.Contains(t, out.Content, "Your appointment on Wednesday, Feb 11 at 09:00 has been cancelled.")
	assert.Contains(t, out.Content, "Welcome to Glow Clinic")

	appts, err = h.bookings.UpcomingFor(context.Background(), "t1", "c1", tuesday)
	require.NoError(t, err)
	assert.Empty(t, appts)

	out = h.click("c1", "my_appointments")
	assert.Equal(t, StateMyAppointments, out.State)
	assert.Equal(t, "You have no upcoming appointments.", out.Content)
}

func TestHandleTurnRescheduleLosesVersionRace(t *testing.T) {
	h := newHarness(t)
	h.toTimeChoice("c1")
	h.click("c1", "time_10:00")
	h.click("c1", "confirm")
	h.click("c1", "my_appointments")
	h.click("c1", "reschedule")
	h.click("c1", "day_2026-02-11")
	h.click("c1", "time_09:00")

	s := h.session("c1")
	_, err := h.bookings.Reschedule(context.Background(), bookings.RescheduleRequest{
		TenantID:        "t1",
		AppointmentID:   s.AppointmentID,
		ExpectedVersion: s.AppointmentVersion,
		Date:            tuesday,
		Start:           scheduling.NewClock(11, 0),
	})
	require.NoError(t, err)

	out := h.click("c1", "confirm")
	assert.Equal(t, StateManageAppointment, out.State)
	assert.Contains(t, out.Content, "That appointment changed a moment ago.")
	assert.Contains(t, out.Content, "Facial on Tuesday, Feb 10 at 11:00")
}

func TestHandleTurnFAQ(t *testing.T) {
	h := newHarness(t)
	h.say("c1", "hi")

	out := h.click("c1", "faq")
	assert.Equal(t, StateFAQ, out.State)
	assert.Equal(t, []string{"faq_parking", "faq_pay", "nav_menu"}, choiceIDs(out.Choices))

	out = h.say("c1", "parking")
	assert.Equal(t, StateFAQAnswer, out.State)
	assert.Equal(t, "Is there parking?\nYes, behind the building.", out.Content)

	out = h.click("c1", "more_questions")
	assert.Equal(t, StateFAQ, out.State)
}

func TestHandleTurnUnknownTenant(t *testing.T) {
	h := newHarness(t)
	_, err := h.machine.HandleTurn(context.Background(), IncomingMessage{TenantID: "nope", ContactID: "c1", Text: "hi"})
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestHandleTurnIsolatesTenants(t *testing.T) {
	h := newHarness(t)
	h.catalog.PutTenant(scheduling.Tenant{ID: "t2", Name: "Other Spa"})

	h.toTimeChoice("c1")
	out, err := h.machine.HandleTurn(context.Background(), IncomingMessage{TenantID: "t2", ContactID: "c1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, StateWelcome, out.State)
	assert.Contains(t, out.Content, "Other Spa")

	assert.Equal(t, StateChooseTime, h.session("c1").State)
}

func TestNewMachineRejectsBrokenTable(t *testing.T) {
	tags := NewTagRegistry()
	require.NoError(t, tags.Register(TagDay, noopDecode))
	catalog := scheduling.NewMemoryCatalog(nil)

	broken := Table{
		StateWelcome: {
			ID:          StateWelcome,
			Template:    "welcome",
			Static:      []matching.Choice{{ID: "go", Label: "Go"}},
			Transitions: map[string]StateID{"go": "nowhere"},
		},
	}
	_, err := newMachine(broken, tags, catalog, NewMemorySessionStore(), nil)
	assert.ErrorContains(t, err, "unknown state")

	colliding := Table{
		StateWelcome: {
			ID:          StateWelcome,
			Template:    "welcome",
			Static:      []matching.Choice{{ID: "day_today", Label: "Today"}},
			Transitions: map[string]StateID{"day_today": StateWelcome},
		},
	}
	_, err = newMachine(colliding, tags, catalog, NewMemorySessionStore(), nil)
	assert.ErrorContains(t, err, "collides")

	missingTemplate := Table{
		StateWelcome: {ID: StateWelcome, Template: "nope"},
	}
	_, err = newMachine(missingTemplate, tags, catalog, NewMemorySessionStore(), nil)
	assert.ErrorContains(t, err, "unknown template")
}

func TestFlowTableValidates(t *testing.T) {
	h := newHarness(t)
	assert.NotNil(t, h.machine)

	flow := NewFlow(scheduling.NewEngine(h.catalog, nil), h.bookings, FlowConfig{}, nil)
	tags, err := flow.Tags()
	require.NoError(t, err)
	assert.Equal(t, []Tag{TagAppointment, TagDay, TagFAQ, TagService, TagTime}, tags.Tags())
	require.NoError(t, flow.Table().Validate(tags))
	assert.Equal(t, DefaultFlowConfig(), flow.cfg)
}
