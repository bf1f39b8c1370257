package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/internal/bookings"
	"github.com/wolfman30/booking-assistant/internal/matching"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// FlowConfig bounds how many choices the booking states offer.
type FlowConfig struct {
	HorizonDays    int
	MaxDateChoices int
	MaxTimeChoices int
}

// DefaultFlowConfig returns the limits used when none are configured.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{HorizonDays: 14, MaxDateChoices: 7, MaxTimeChoices: 8}
}

// Flow wires the booking states to availability and appointment storage.
type Flow struct {
	engine   *scheduling.Engine
	bookings *bookings.Service
	cfg      FlowConfig
	logger   *logging.Logger
}

// NewFlow builds the scheduling flow. Zero limits in cfg fall back to
// DefaultFlowConfig.
func NewFlow(engine *scheduling.Engine, bookingSvc *bookings.Service, cfg FlowConfig, logger *logging.Logger) *Flow {
	def := DefaultFlowConfig()
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = def.HorizonDays
	}
	if cfg.MaxDateChoices <= 0 {
		cfg.MaxDateChoices = def.MaxDateChoices
	}
	if cfg.MaxTimeChoices <= 0 {
		cfg.MaxTimeChoices = def.MaxTimeChoices
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{engine: engine, bookings: bookingSvc, cfg: cfg, logger: logger}
}

// Catalog exposes the tenant catalog the flow reads from.
func (f *Flow) Catalog() scheduling.Catalog {
	return f.engine.Catalog()
}

var (
	backChoice = matching.Choice{ID: matching.ShortcutBack.ChoiceID(), Label: "Back"}
	menuChoice = matching.Choice{ID: matching.ShortcutMenu.ChoiceID(), Label: "Main menu"}
)

// Tags registers the decoders for every dynamic choice the flow produces.
func (f *Flow) Tags() (*TagRegistry, error) {
	reg := NewTagRegistry()
	decoders := map[Tag]DecodeFunc{
		TagService:     f.decodeService,
		TagDay:         f.decodeDay,
		TagTime:        f.decodeTime,
		TagAppointment: decodeAppointment,
		TagFAQ:         decodeFAQ,
	}
	for tag, decode := range decoders {
		if err := reg.Register(tag, decode); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (f *Flow) decodeService(ctx context.Context, env *Env, value string) error {
	services, err := f.Catalog().ActiveServices(ctx, env.Tenant.ID)
	if err != nil {
		return fmt.Errorf("conversation: load services: %w", err)
	}
	for _, svc := range services {
		if svc.ID != value {
			continue
		}
		if !env.Session.HasSelection(svc.ID) {
			env.Session.Selections = append(env.Session.Selections, svc.Selection())
		}
		return nil
	}
	return &ValidationError{Field: "service", Reason: "not offered"}
}

// decodeDay accepts dates from today through the booking horizon.
func (f *Flow) decodeDay(_ context.Context, env *Env, value string) error {
	d, err := scheduling.ParseDate(value)
	if err != nil {
		return &ValidationError{Field: "date", Reason: err.Error()}
	}
	today := env.Today()
	if d.Before(today) {
		return &ValidationError{Field: "date", Reason: "in the past"}
	}
	if !d.Before(today.AddDays(f.cfg.HorizonDays)) {
		return &ValidationError{Field: "date", Reason: "beyond booking horizon"}
	}
	env.Session.SelectedDate = d
	env.Session.SelectedTime = nil
	return nil
}

// decodeTime accepts only the start of a slot that is free and in the future
// right now; a stale or hand-typed time falls back to the time list.
func (f *Flow) decodeTime(ctx context.Context, env *Env, value string) error {
	c, err := scheduling.ParseClock(value)
	if err != nil {
		return &ValidationError{Field: "time", Reason: err.Error()}
	}
	s := env.Session
	if s.SelectedDate.IsZero() || s.TotalMinutes() <= 0 {
		return &ValidationError{Field: "time", Reason: "no date or services selected"}
	}
	slots, err := f.engine.AvailableSlots(ctx, env.Tenant.ID, s.SelectedDate, s.TotalMinutes())
	if err != nil {
		return fmt.Errorf("conversation: available slots: %w", err)
	}
	for _, slot := range scheduling.FutureSlots(slots, env.Now) {
		if slot.Start == c {
			s.SelectedTime = &c
			return nil
		}
	}
	return &ValidationError{Field: "time", Reason: "not available"}
}

func decodeAppointment(_ context.Context, env *Env, value string) error {
	id, err := uuid.Parse(value)
	if err != nil {
		return &ValidationError{Field: "appointment", Reason: err.Error()}
	}
	env.Session.AppointmentID = id
	env.Session.AppointmentVersion = 0
	return nil
}

func decodeFAQ(_ context.Context, env *Env, value string) error {
	if _, ok := env.Tenant.FAQByKey(value); !ok {
		return &ValidationError{Field: "faq", Reason: "unknown question"}
	}
	env.Session.SelectedFAQ = value
	return nil
}

// Table returns the state table for the scheduling assistant.
func (f *Flow) Table() Table {
	defs := []*StateDef{
		{
			ID:       StateWelcome,
			Template: "welcome",
			Static: []matching.Choice{
				{ID: "book", Label: "Book an appointment"},
				{ID: "my_appointments", Label: "My appointments"},
				{ID: "faq", Label: "Questions"},
				{ID: matching.ShortcutHuman.ChoiceID(), Label: "Talk to a person"},
			},
			Transitions: map[string]StateID{
				"book":            StateChooseService,
				"my_appointments": StateMyAppointments,
				"faq":             StateFAQ,
			},
			OnEnter: func(context.Context, *Env, []matching.Choice) (Outcome, error) {
				return Outcome{Template: "welcome", Patch: (*Session).Reset}, nil
			},
		},
		{
			ID:       StateChooseService,
			Template: "choose_service",
			Static:   []matching.Choice{menuChoice},
			Dynamic:  map[Tag]StateID{TagService: StateMoreServices},
			Previous: StateWelcome,
			Options:  f.allServiceOptions,
			OnEnter:  f.enterChooseService,
		},
		{
			ID:       StateMoreServices,
			Template: "more_services",
			Static: []matching.Choice{
				{ID: "add_service", Label: "Add another service"},
				{ID: "continue", Label: "Continue"},
				backChoice,
			},
			Transitions: map[string]StateID{
				"add_service": StateAddService,
				"continue":    StateCheckServices,
			},
			Previous: StateChooseService,
			OnEnter:  f.enterMoreServices,
		},
		{
			ID:       StateAddService,
			Template: "add_service",
			Static:   []matching.Choice{backChoice},
			Dynamic:  map[Tag]StateID{TagService: StateMoreServices},
			Previous: StateMoreServices,
			Options:  f.remainingServiceOptions,
			OnEnter:  enterAddService,
		},
		{
			ID:      StateCheckServices,
			OnEnter: enterCheckServices,
		},
		{
			ID:       StateChooseDate,
			Template: "choose_date",
			Static:   []matching.Choice{backChoice, menuChoice},
			Dynamic:  map[Tag]StateID{TagDay: StateChooseTime},
			Previous: StateMoreServices,
			Options:  f.dateOptions,
			OnEnter:  f.enterChooseDate,
		},
		{
			ID:       StateChooseTime,
			Template: "choose_time",
			Static:   []matching.Choice{backChoice},
			Dynamic:  map[Tag]StateID{TagTime: StateConfirm},
			Previous: StateChooseDate,
			Options:  f.timeOptions,
			OnEnter:  enterChooseTime,
		},
		{
			ID:       StateConfirm,
			Template: "confirm",
			Static: []matching.Choice{
				{ID: "confirm", Label: "Confirm"},
				backChoice,
				menuChoice,
			},
			Transitions: map[string]StateID{"confirm": StateBook},
			Previous:    StateChooseTime,
			OnEnter:     enterConfirm,
		},
		{
			ID:      StateBook,
			OnEnter: f.enterBook,
		},
		{
			ID:       StateBooked,
			Template: "booked",
			Static: []matching.Choice{
				{ID: "my_appointments", Label: "My appointments"},
				menuChoice,
			},
			Transitions: map[string]StateID{"my_appointments": StateMyAppointments},
			Previous:    StateWelcome,
			OnEnter:     f.enterBooked,
		},
		{
			ID:       StateMyAppointments,
			Template: "my_appointments",
			Static:   []matching.Choice{menuChoice},
			Dynamic:  map[Tag]StateID{TagAppointment: StateManageAppointment},
			Previous: StateWelcome,
			Options:  f.appointmentOptions,
			OnEnter:  enterMyAppointments,
		},
		{
			ID:       StateManageAppointment,
			Template: "manage_appointment",
			Static: []matching.Choice{
				{ID: "reschedule", Label: "Reschedule"},
				{ID: "cancel", Label: "Cancel appointment"},
				backChoice,
				menuChoice,
			},
			Transitions: map[string]StateID{
				"reschedule": StateStartReschedule,
				"cancel":     StateCancelConfirm,
			},
			Previous: StateMyAppointments,
			OnEnter:  f.enterManageAppointment,
		},
		{
			ID:      StateStartReschedule,
			OnEnter: f.enterStartReschedule,
		},
		{
			ID:       StateCancelConfirm,
			Template: "cancel_confirm",
			Static: []matching.Choice{
				{ID: "cancel_yes", Label: "Yes, cancel it"},
				{ID: backChoice.ID, Label: "No, keep it"},
			},
			Transitions: map[string]StateID{"cancel_yes": StateCancelled},
			Previous:    StateManageAppointment,
			OnEnter:     f.enterCancelConfirm,
		},
		{
			ID:      StateCancelled,
			OnEnter: f.enterCancelled,
		},
		{
			ID:       StateFAQ,
			Template: "faq",
			Static:   []matching.Choice{menuChoice},
			Dynamic:  map[Tag]StateID{TagFAQ: StateFAQAnswer},
			Previous: StateWelcome,
			Options:  faqOptions,
			OnEnter: func(_ context.Context, _ *Env, options []matching.Choice) (Outcome, error) {
				if len(options) == 0 {
					return Outcome{Template: "no_faq"}, nil
				}
				return Outcome{Template: "faq"}, nil
			},
		},
		{
			ID:       StateFAQAnswer,
			Template: "faq_answer",
			Static: []matching.Choice{
				{ID: "more_questions", Label: "Other questions"},
				menuChoice,
			},
			Transitions: map[string]StateID{"more_questions": StateFAQ},
			Previous:    StateFAQ,
			OnEnter:     enterFAQAnswer,
		},
		{
			ID:       StateHandoff,
			Template: "handoff",
			Static:   []matching.Choice{menuChoice},
			Previous: StateWelcome,
			OnEnter: func(_ context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
				return Outcome{Template: "handoff", Data: map[string]any{"Hours": businessHours(env.Tenant)}}, nil
			},
		},
		{
			ID:       StateUnrecognized,
			Template: "unrecognized",
			OnEnter: func(_ context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
				back := env.Origin
				if back == "" || back == StateUnrecognized {
					back = StateWelcome
				}
				return Outcome{Template: "unrecognized", Redirect: back}, nil
			},
		},
	}

	table := make(Table, len(defs))
	for _, def := range defs {
		if def.Fallback == "" && def.ID != StateUnrecognized {
			def.Fallback = StateUnrecognized
		}
		table[def.ID] = def
	}
	return table
}

func (f *Flow) allServiceOptions(ctx context.Context, env *Env) ([]matching.Choice, error) {
	services, err := f.Catalog().ActiveServices(ctx, env.Tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load services: %w", err)
	}
	return serviceChoices(services, nil), nil
}

func (f *Flow) remainingServiceOptions(ctx context.Context, env *Env) ([]matching.Choice, error) {
	services, err := f.Catalog().ActiveServices(ctx, env.Tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load services: %w", err)
	}
	return serviceChoices(services, env.Session), nil
}

func serviceChoices(services []scheduling.Service, exclude *Session) []matching.Choice {
	choices := make([]matching.Choice, 0, len(services))
	for _, svc := range services {
		if exclude != nil && exclude.HasSelection(svc.ID) {
			continue
		}
		choices = append(choices, matching.Choice{
			ID:    DynamicID(TagService, svc.ID),
			Label: fmt.Sprintf("%s (%d min)", svc.Name, svc.DurationMinutes),
		})
	}
	return choices
}

// enterChooseService starts a fresh selection. A tenant with a single
// service skips the question entirely.
func (f *Flow) enterChooseService(ctx context.Context, env *Env, options []matching.Choice) (Outcome, error) {
	switch len(options) {
	case 0:
		return Outcome{Template: "no_services"}, nil
	case 1:
		services, err := f.Catalog().ActiveServices(ctx, env.Tenant.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("conversation: load services: %w", err)
		}
		if len(services) != 1 {
			break
		}
		only := services[0].Selection()
		return Outcome{
			Patch: func(s *Session) {
				s.Selections = []scheduling.Selection{only}
				s.Rescheduling = false
			},
			Redirect: StateMoreServices,
			Skip:     true,
		}, nil
	}
	return Outcome{
		Template: "choose_service",
		Patch: func(s *Session) {
			s.Selections = nil
			s.Rescheduling = false
		},
	}, nil
}

func (f *Flow) enterMoreServices(ctx context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	if len(env.Session.Selections) == 0 {
		return Outcome{Redirect: StateChooseService}, nil
	}
	remaining, err := f.remainingServiceOptions(ctx, env)
	if err != nil {
		return Outcome{}, err
	}
	if len(remaining) == 0 {
		return Outcome{Redirect: StateCheckServices, Skip: true}, nil
	}
	return Outcome{
		Template: "more_services",
		Data: map[string]any{
			"Services":     selectionNames(env.Session.Selections),
			"TotalMinutes": env.Session.TotalMinutes(),
		},
	}, nil
}

func enterAddService(_ context.Context, env *Env, options []matching.Choice) (Outcome, error) {
	if len(options) == 0 {
		return Outcome{Redirect: StateCheckServices}, nil
	}
	return Outcome{
		Template: "add_service",
		Data:     map[string]any{"Services": selectionNames(env.Session.Selections)},
	}, nil
}

func enterCheckServices(_ context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	err := bookings.ValidateSelections(env.Tenant, env.Session.Selections)
	if err == nil {
		return Outcome{Redirect: StateChooseDate}, nil
	}
	if errors.Is(err, bookings.ErrNoSelections) {
		return Outcome{Template: "missing_services", Redirect: StateChooseService}, nil
	}
	var tooLong *bookings.SessionLengthError
	if errors.As(err, &tooLong) {
		return sessionTooLong(tooLong), nil
	}
	return Outcome{}, err
}

// sessionTooLong drops the service that pushed the visit over the limit and
// sends the contact back to adjust the selection.
func sessionTooLong(e *bookings.SessionLengthError) Outcome {
	offending := e.Offending.ServiceID
	return Outcome{
		Template: "session_too_long",
		Data: map[string]any{
			"Offending":     e.Offending.Name,
			"TotalMinutes":  e.TotalMinutes,
			"ExcessMinutes": e.ExcessMinutes,
			"MaxMinutes":    e.MaxMinutes,
		},
		Patch: func(s *Session) {
			for i, sel := range s.Selections {
				if sel.ServiceID == offending {
					s.Selections = append(s.Selections[:i:i], s.Selections[i+1:]...)
					break
				}
			}
		},
		Redirect: StateMoreServices,
	}
}

func (f *Flow) dateOptions(ctx context.Context, env *Env) ([]matching.Choice, error) {
	total := env.Session.TotalMinutes()
	if total <= 0 {
		return nil, nil
	}
	dates, err := f.engine.OpenDates(ctx, env.Tenant.ID, env.Now, f.cfg.HorizonDays, total, f.cfg.MaxDateChoices)
	if err != nil {
		return nil, fmt.Errorf("conversation: open dates: %w", err)
	}
	choices := make([]matching.Choice, 0, len(dates))
	for _, d := range dates {
		choices = append(choices, matching.Choice{ID: DynamicID(TagDay, d.String()), Label: dateLabel(d)})
	}
	return choices, nil
}

func (f *Flow) enterChooseDate(_ context.Context, env *Env, options []matching.Choice) (Outcome, error) {
	if env.Session.TotalMinutes() <= 0 {
		return Outcome{Template: "missing_services", Redirect: StateChooseService}, nil
	}
	if len(options) == 0 {
		return Outcome{Template: "no_dates", Data: map[string]any{"HorizonDays": f.cfg.HorizonDays}}, nil
	}
	return Outcome{
		Template: "choose_date",
		Data:     map[string]any{"TotalMinutes": env.Session.TotalMinutes()},
	}, nil
}

func (f *Flow) timeOptions(ctx context.Context, env *Env) ([]matching.Choice, error) {
	s := env.Session
	if s.SelectedDate.IsZero() || s.TotalMinutes() <= 0 {
		return nil, nil
	}
	slots, err := f.engine.AvailableSlots(ctx, env.Tenant.ID, s.SelectedDate, s.TotalMinutes())
	if err != nil {
		return nil, fmt.Errorf("conversation: available slots: %w", err)
	}
	slots = scheduling.FutureSlots(slots, env.Now)
	if len(slots) > f.cfg.MaxTimeChoices {
		slots = slots[:f.cfg.MaxTimeChoices]
	}
	choices := make([]matching.Choice, 0, len(slots))
	for _, slot := range slots {
		choices = append(choices, matching.Choice{ID: DynamicID(TagTime, slot.Start.String()), Label: slot.Start.String()})
	}
	return choices, nil
}

func enterChooseTime(_ context.Context, env *Env, options []matching.Choice) (Outcome, error) {
	s := env.Session
	if s.SelectedDate.IsZero() {
		return Outcome{Template: "missing_date", Redirect: StateChooseDate}, nil
	}
	if len(options) == 0 {
		return Outcome{
			Template: "no_slots",
			Data:     map[string]any{"Date": dateLabel(s.SelectedDate)},
			Patch: func(s *Session) {
				s.SelectedDate = scheduling.Date{}
				s.SelectedTime = nil
			},
			Redirect: StateChooseDate,
		}, nil
	}
	return Outcome{Template: "choose_time", Data: map[string]any{"Date": dateLabel(s.SelectedDate)}}, nil
}

func enterConfirm(_ context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	s := env.Session
	if s.SelectedDate.IsZero() {
		return Outcome{Template: "missing_date", Redirect: StateChooseDate}, nil
	}
	if s.SelectedTime == nil {
		return Outcome{Template: "missing_time", Redirect: StateChooseTime}, nil
	}
	return Outcome{
		Template: "confirm",
		Data: map[string]any{
			"Services":     selectionNames(s.Selections),
			"Date":         dateLabel(s.SelectedDate),
			"Time":         s.SelectedTime.String(),
			"Rescheduling": s.Rescheduling,
		},
	}, nil
}

// enterBook commits the confirmed choice. Losing a race re-offers fresh
// times instead of failing the turn.
func (f *Flow) enterBook(ctx context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	s := env.Session
	if s.SelectedDate.IsZero() || s.SelectedTime == nil {
		return Outcome{Redirect: StateConfirm}, nil
	}

	var (
		appt *scheduling.Appointment
		err  error
	)
	if s.Rescheduling {
		appt, err = f.bookings.Reschedule(ctx, bookings.RescheduleRequest{
			TenantID:        env.Tenant.ID,
			AppointmentID:   s.AppointmentID,
			ExpectedVersion: s.AppointmentVersion,
			Date:            s.SelectedDate,
			Start:           *s.SelectedTime,
		})
	} else {
		appt, err = f.bookings.Create(ctx, bookings.CreateRequest{
			TenantID:   env.Tenant.ID,
			ContactID:  s.ContactID,
			Selections: s.Selections,
			Date:       s.SelectedDate,
			Start:      *s.SelectedTime,
		})
	}
	if err == nil {
		booked := *appt
		return Outcome{
			Patch: func(s *Session) {
				s.AppointmentID = booked.ID
				s.AppointmentVersion = booked.Version
			},
			Redirect: StateBooked,
		}, nil
	}

	var conflict *bookings.ConflictError
	var tooLong *bookings.SessionLengthError
	switch {
	case errors.As(err, &conflict):
		if s.Rescheduling && (conflict.Reason == bookings.ReasonNotActive || conflict.Reason == bookings.ReasonVersionMismatch) {
			return appointmentChanged(), nil
		}
		f.logger.Info("conversation: slot taken before commit",
			"tenant_id", env.Tenant.ID,
			"date", s.SelectedDate.String(),
			"start", s.SelectedTime.String(),
			"reason", string(conflict.Reason),
		)
		return Outcome{
			Template: "slot_taken",
			Data:     map[string]any{"Date": dateLabel(s.SelectedDate), "Time": s.SelectedTime.String()},
			Patch:    func(s *Session) { s.SelectedTime = nil },
			Redirect: StateChooseTime,
		}, nil
	case errors.As(err, &tooLong):
		return sessionTooLong(tooLong), nil
	case errors.Is(err, bookings.ErrNoSelections):
		return Outcome{Template: "missing_services", Redirect: StateChooseService}, nil
	case errors.Is(err, bookings.ErrNotFound):
		return appointmentChanged(), nil
	}
	return Outcome{}, err
}

func appointmentChanged() Outcome {
	return Outcome{
		Template: "appointment_changed",
		Patch: func(s *Session) {
			s.Reset()
		},
		Redirect: StateMyAppointments,
	}
}

func (f *Flow) enterBooked(ctx context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	appt, err := f.loadAppointment(ctx, env)
	if err != nil {
		return Outcome{}, err
	}
	if appt == nil {
		return appointmentChanged(), nil
	}
	data := appointmentData(appt)
	data["Rescheduled"] = env.Session.Rescheduling
	return Outcome{
		Template: "booked",
		Data:     data,
		Patch: func(s *Session) {
			s.Selections = nil
			s.SelectedDate = scheduling.Date{}
			s.SelectedTime = nil
			s.Rescheduling = false
			s.Skipped = nil
		},
	}, nil
}

func (f *Flow) appointmentOptions(ctx context.Context, env *Env) ([]matching.Choice, error) {
	appts, err := f.bookings.UpcomingFor(ctx, env.Tenant.ID, env.Session.ContactID, env.Today())
	if err != nil {
		return nil, err
	}
	choices := make([]matching.Choice, 0, len(appts))
	for _, a := range appts {
		choices = append(choices, matching.Choice{
			ID:    DynamicID(TagAppointment, a.ID.String()),
			Label: fmt.Sprintf("%s on %s at %s", strings.Join(selectionNames(a.Selections), ", "), dateLabel(a.Date), a.Start),
		})
	}
	return choices, nil
}

func enterMyAppointments(_ context.Context, _ *Env, options []matching.Choice) (Outcome, error) {
	switch len(options) {
	case 0:
		return Outcome{Template: "no_appointments"}, nil
	case 1:
		_, value, _ := strings.Cut(options[0].ID, tagSeparator)
		id, err := uuid.Parse(value)
		if err != nil {
			return Outcome{}, fmt.Errorf("conversation: appointment choice %q: %w", options[0].ID, err)
		}
		return Outcome{
			Patch: func(s *Session) {
				s.AppointmentID = id
				s.AppointmentVersion = 0
			},
			Redirect: StateManageAppointment,
			Skip:     true,
		}, nil
	}
	return Outcome{Template: "my_appointments"}, nil
}

// loadAppointment returns nil when the selected appointment is gone or no
// longer confirmed.
func (f *Flow) loadAppointment(ctx context.Context, env *Env) (*scheduling.Appointment, error) {
	if env.Session.AppointmentID == uuid.Nil {
		return nil, nil
	}
	appt, err := f.bookings.Get(ctx, env.Tenant.ID, env.Session.AppointmentID)
	if errors.Is(err, bookings.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if appt.ContactID != env.Session.ContactID || appt.Status != scheduling.StatusConfirmed {
		return nil, nil
	}
	return appt, nil
}

func (f *Flow) enterManageAppointment(ctx context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	appt, err := f.loadAppointment(ctx, env)
	if err != nil {
		return Outcome{}, err
	}
	if appt == nil {
		return appointmentChanged(), nil
	}
	version := appt.Version
	return Outcome{
		Template: "manage_appointment",
		Data:     appointmentData(appt),
		Patch: func(s *Session) {
			s.AppointmentVersion = version
			s.Rescheduling = false
		},
	}, nil
}

// enterStartReschedule seeds the booking states with the appointment's
// services. The service states are marked skipped so back-navigation from
// the date list returns to the appointment.
func (f *Flow) enterStartReschedule(ctx context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	appt, err := f.loadAppointment(ctx, env)
	if err != nil {
		return Outcome{}, err
	}
	if appt == nil {
		return appointmentChanged(), nil
	}
	if appt.Version != env.Session.AppointmentVersion {
		return appointmentChanged(), nil
	}
	current := *appt
	return Outcome{
		Patch: func(s *Session) {
			s.Rescheduling = true
			s.Selections = append([]scheduling.Selection(nil), current.Selections...)
			s.SelectedDate = scheduling.Date{}
			s.SelectedTime = nil
			s.markSkipped(StateMoreServices, StateManageAppointment)
		},
		Redirect: StateChooseDate,
	}, nil
}

func (f *Flow) enterCancelConfirm(ctx context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	appt, err := f.loadAppointment(ctx, env)
	if err != nil {
		return Outcome{}, err
	}
	if appt == nil {
		return appointmentChanged(), nil
	}
	return Outcome{Template: "cancel_confirm", Data: appointmentData(appt)}, nil
}

// enterCancelled commits the cancellation and returns to the greeting; it is
// never a resting state, so a re-prompt cannot repeat the write.
func (f *Flow) enterCancelled(ctx context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	s := env.Session
	appt, err := f.bookings.Cancel(ctx, env.Tenant.ID, s.AppointmentID, s.AppointmentVersion)
	if err != nil {
		if bookings.IsConflict(err) || errors.Is(err, bookings.ErrNotFound) {
			return appointmentChanged(), nil
		}
		return Outcome{}, err
	}
	return Outcome{
		Template: "cancelled",
		Data:     appointmentData(appt),
		Patch:    (*Session).Reset,
		Redirect: StateWelcome,
	}, nil
}

func faqOptions(_ context.Context, env *Env) ([]matching.Choice, error) {
	choices := make([]matching.Choice, 0, len(env.Tenant.FAQ))
	for _, entry := range env.Tenant.FAQ {
		choices = append(choices, matching.Choice{ID: DynamicID(TagFAQ, entry.Key), Label: entry.Question})
	}
	return choices, nil
}

func enterFAQAnswer(_ context.Context, env *Env, _ []matching.Choice) (Outcome, error) {
	entry, ok := env.Tenant.FAQByKey(env.Session.SelectedFAQ)
	if !ok {
		return Outcome{Redirect: StateFAQ}, nil
	}
	return Outcome{
		Template: "faq_answer",
		Data:     map[string]any{"Question": entry.Question, "Answer": entry.Answer},
	}, nil
}

func businessHours(t *scheduling.Tenant) []string {
	var lines []string
	for day := scheduling.Sunday; day <= scheduling.Saturday; day++ {
		if w, ok := t.BusinessHours[day]; ok {
			lines = append(lines, fmt.Sprintf("%s: %s", day, w))
		}
	}
	return lines
}

func appointmentData(a *scheduling.Appointment) map[string]any {
	return map[string]any{
		"Services": selectionNames(a.Selections),
		"Date":     dateLabel(a.Date),
		"Time":     a.Start.String(),
	}
}

func selectionNames(selections []scheduling.Selection) []string {
	names := make([]string, 0, len(selections))
	for _, sel := range selections {
		names = append(names, sel.Name)
	}
	return names
}

// dateLabel renders a date the way contacts type it, e.g. "Tuesday, Feb 10".
func dateLabel(d scheduling.Date) string {
	return d.Time().Format("Monday, Jan 2")
}
