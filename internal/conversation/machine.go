package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/booking-assistant/internal/matching"
	"github.com/wolfman30/booking-assistant/internal/messaging/templates"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var conversationTracer = otel.Tracer("booking.internal.conversation")

// maxHops bounds redirect chains within one turn.
const maxHops = 8

const (
	resolutionNewSession = "new_session"
	resolutionStructural = "structural"
	resolutionShortcut   = "shortcut"
	resolutionFallback   = "fallback"
)

// fallbackContent is sent when a state produced no text, so no turn is silent.
const fallbackContent = "Sorry, something went wrong on our side. Please try again."

// Machine drives one turn of a conversation at a time.
type Machine struct {
	table     Table
	tags      *TagRegistry
	catalog   scheduling.Catalog
	sessions  SessionStore
	shortcuts *matching.Shortcuts
	templates *templates.Set
	sources   map[string]string
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	ttl       time.Duration
	now       func() time.Time
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithSessionTTL sets the inactivity window after which a session restarts.
func WithSessionTTL(ttl time.Duration) MachineOption {
	return func(m *Machine) {
		m.ttl = ttl
	}
}

// WithShortcuts replaces the global navigation phrases.
func WithShortcuts(s *matching.Shortcuts) MachineOption {
	return func(m *Machine) {
		m.shortcuts = s
	}
}

// WithTemplates replaces the message texts.
func WithTemplates(sources map[string]string) MachineOption {
	return func(m *Machine) {
		m.sources = sources
	}
}

// WithConversationMetrics records per-turn metrics.
func WithConversationMetrics(cm *metrics.ConversationMetrics) MachineOption {
	return func(m *Machine) {
		m.metrics = cm
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine validates the flow's table and templates and returns a ready
// machine. Configuration errors surface here rather than mid-conversation.
func NewMachine(flow *Flow, sessions SessionStore, logger *logging.Logger, opts ...MachineOption) (*Machine, error) {
	if flow == nil {
		return nil, errors.New("conversation: flow is required")
	}
	if sessions == nil {
		return nil, errors.New("conversation: session store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	tags, err := flow.Tags()
	if err != nil {
		return nil, err
	}
	return newMachine(flow.Table(), tags, flow.Catalog(), sessions, logger, opts...)
}

func newMachine(table Table, tags *TagRegistry, catalog scheduling.Catalog, sessions SessionStore, logger *logging.Logger, opts ...MachineOption) (*Machine, error) {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Machine{
		table:     table,
		tags:      tags,
		catalog:   catalog,
		sessions:  sessions,
		shortcuts: matching.DefaultShortcuts(),
		logger:    logger,
		ttl:       DefaultSessionTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := table.Validate(tags); err != nil {
		return nil, err
	}
	set, err := parseTemplates(m.sources)
	if err != nil {
		return nil, err
	}
	for id, def := range table {
		if def.Template != "" && !set.Has(def.Template) {
			return nil, fmt.Errorf("conversation: state %s uses unknown template %q", id, def.Template)
		}
	}
	m.templates = set
	return m, nil
}

// HandleTurn resolves one inbound message against the contact's session,
// runs the resulting state transitions and persists the session.
func (m *Machine) HandleTurn(ctx context.Context, in IncomingMessage) (*OutgoingMessage, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.tenant_id", in.TenantID),
		attribute.String("conversation.contact_id", in.ContactID),
	)
	started := time.Now()

	out, resolution, err := m.handle(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.metrics.ObserveTurn("error", resolution, time.Since(started).Seconds())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("conversation.state", string(out.State)),
		attribute.String("conversation.resolution", resolution),
	)
	m.metrics.ObserveTurn(string(out.State), resolution, time.Since(started).Seconds())
	return out, nil
}

func (m *Machine) handle(ctx context.Context, in IncomingMessage) (*OutgoingMessage, string, error) {
	tenant, err := m.catalog.Tenant(ctx, in.TenantID)
	if err != nil {
		return nil, "", fmt.Errorf("conversation: load tenant: %w", err)
	}
	if tenant == nil {
		return nil, "", ErrUnknownTenant
	}
	logger := m.logger.WithTenant(tenant.ID)
	now := scheduling.WallClock(m.now())

	session, fresh, err := m.loadSession(ctx, in, now, logger)
	if err != nil {
		return nil, "", err
	}
	env := &Env{
		Tenant:  tenant,
		Session: session,
		Origin:  session.State,
		Now:     now,
		Text:    in.Text,
	}

	target, resolution, back := StateWelcome, resolutionNewSession, false
	if !fresh {
		target, resolution, back, err = m.resolve(ctx, env, in, logger)
		if err != nil {
			return nil, resolution, err
		}
	}

	parts, final, choices, err := m.enter(ctx, env, target)
	if err != nil {
		return nil, resolution, err
	}

	switch {
	case back:
		session.Previous = m.backTarget(session, m.table[final].Previous)
	case final != env.Origin:
		session.Previous = env.Origin
	}
	session.State = final
	session.LastActivity = now
	if err := m.sessions.Put(ctx, session); err != nil {
		return nil, resolution, fmt.Errorf("conversation: save session: %w", err)
	}

	content := strings.Join(parts, "\n\n")
	if content == "" {
		content = fallbackContent
	}
	logger.Debug("conversation turn",
		"contact_id", in.ContactID,
		"from", string(env.Origin),
		"to", string(final),
		"resolution", resolution,
	)
	return &OutgoingMessage{
		TenantID:  tenant.ID,
		ContactID: in.ContactID,
		Content:   content,
		Choices:   choices,
		State:     final,
	}, resolution, nil
}

// loadSession returns the stored session, or a new one when none exists,
// it expired or it points at a state the table no longer has.
func (m *Machine) loadSession(ctx context.Context, in IncomingMessage, now time.Time, logger *logging.Logger) (*Session, bool, error) {
	session, err := m.sessions.Get(ctx, in.TenantID, in.ContactID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return NewSession(in.TenantID, in.ContactID, now), true, nil
	case err != nil:
		return nil, false, fmt.Errorf("conversation: load session: %w", err)
	}
	if err := session.CheckExpiry(now, m.ttl); err != nil {
		logger.Info("conversation: session expired", "contact_id", in.ContactID, "error", err)
		return NewSession(in.TenantID, in.ContactID, now), true, nil
	}
	if _, ok := m.table[session.State]; !ok {
		logger.Warn("conversation: session in unknown state", "contact_id", in.ContactID, "state", string(session.State))
		return NewSession(in.TenantID, in.ContactID, now), true, nil
	}
	return session, false, nil
}

// resolve picks the next state for the input. Order: a structural click,
// then a global shortcut, then text matched against fresh dynamic choices
// and the state's static choices, then the state's fallback.
func (m *Machine) resolve(ctx context.Context, env *Env, in IncomingMessage, logger *logging.Logger) (StateID, string, bool, error) {
	def := m.table[env.Session.State]
	options, err := m.options(ctx, env, def)
	if err != nil {
		return "", "", false, err
	}
	candidates := make([]matching.Choice, 0, len(options)+len(def.Static))
	candidates = append(candidates, options...)
	candidates = append(candidates, def.Static...)

	if id := strings.TrimSpace(in.SelectedID); id != "" {
		if sc, ok := matching.ShortcutFromID(id); ok {
			target, back := m.shortcut(env, def, sc)
			return target, resolutionStructural, back, nil
		}
		if m.offers(def, candidates, id) {
			target, err := m.follow(ctx, env, def, id, logger)
			return target, resolutionStructural, false, err
		}
		logger.Debug("conversation: ignoring stale selection", "selected_id", id, "state", string(def.ID))
	}

	if sc, ok := m.shortcuts.Detect(in.Text); ok {
		target, back := m.shortcut(env, def, sc)
		return target, resolutionShortcut, back, nil
	}

	if match, ok := matching.Resolve(in.Text, candidates); ok {
		if sc, ok := matching.ShortcutFromID(match.ID); ok {
			target, back := m.shortcut(env, def, sc)
			return target, string(match.Method), back, nil
		}
		target, err := m.follow(ctx, env, def, match.ID, logger)
		return target, string(match.Method), false, err
	}

	logger.Debug("conversation: input not resolved", "error", &AmbiguousInputError{Input: in.Text, State: def.ID})
	return m.fallback(def), resolutionFallback, false, nil
}

// offers reports whether id is one of the state's current choices, or a
// dynamic id under a tag the state accepts. A dynamic id that is no longer
// on offer is still honored; its decoder revalidates it against live data.
func (m *Machine) offers(def *StateDef, candidates []matching.Choice, id string) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	if tag, _, ok := m.tags.Parse(id); ok {
		_, accepted := def.Dynamic[tag]
		return accepted
	}
	return false
}

// follow maps a resolved choice id to its target, decoding dynamic values
// into the session before the target is entered.
func (m *Machine) follow(ctx context.Context, env *Env, def *StateDef, id string, logger *logging.Logger) (StateID, error) {
	if tag, _, ok := m.tags.Parse(id); ok {
		target, accepted := def.Dynamic[tag]
		if !accepted {
			return m.fallback(def), nil
		}
		if _, err := m.tags.Decode(ctx, env, id); err != nil {
			var invalid *ValidationError
			if errors.As(err, &invalid) {
				logger.Info("conversation: rejected choice", "choice_id", id, "error", err)
				return m.fallback(def), nil
			}
			return "", err
		}
		return target, nil
	}
	if target, ok := def.Transitions[id]; ok {
		return target, nil
	}
	return m.fallback(def), nil
}

func (m *Machine) fallback(def *StateDef) StateID {
	if def.Fallback != "" {
		return def.Fallback
	}
	return StateUnrecognized
}

// shortcut applies a global navigation phrase. It reports true for back
// navigation so the caller can rewind Previous.
func (m *Machine) shortcut(env *Env, def *StateDef, sc matching.Shortcut) (StateID, bool) {
	switch sc {
	case matching.ShortcutBack:
		start := env.Session.Previous
		if start == "" {
			start = def.Previous
		}
		return m.backTarget(env.Session, start), true
	case matching.ShortcutHuman:
		if _, ok := m.table[StateHandoff]; ok {
			return StateHandoff, false
		}
	}
	env.Session.Reset()
	return StateWelcome, false
}

// backTarget follows skip markers from start so back-navigation never lands
// on a state that only auto-advanced.
func (m *Machine) backTarget(s *Session, start StateID) StateID {
	target := start
	for i := 0; i <= len(m.table) && target != ""; i++ {
		next, skipped := s.Skipped[target]
		if !skipped {
			break
		}
		target = next
	}
	if _, ok := m.table[target]; !ok {
		return StateWelcome
	}
	return target
}

func (m *Machine) options(ctx context.Context, env *Env, def *StateDef) ([]matching.Choice, error) {
	if def.Options == nil {
		return nil, nil
	}
	return def.Options(ctx, env)
}

// enter runs entry handlers from target through any redirects and returns
// the accumulated content, the state the contact ends up in and its choices.
func (m *Machine) enter(ctx context.Context, env *Env, target StateID) ([]string, StateID, []matching.Choice, error) {
	var parts []string
	current := target
	for hop := 0; hop < maxHops; hop++ {
		def, ok := m.table[current]
		if !ok {
			return nil, "", nil, fmt.Errorf("conversation: unknown state %s", current)
		}
		options, err := m.options(ctx, env, def)
		if err != nil {
			return nil, "", nil, err
		}
		outcome := Outcome{Template: def.Template}
		if def.OnEnter != nil {
			if outcome, err = def.OnEnter(ctx, env, options); err != nil {
				return nil, "", nil, fmt.Errorf("conversation: enter %s: %w", current, err)
			}
			if outcome.Template == "" && outcome.Redirect == "" {
				outcome.Template = def.Template
			}
		}
		if outcome.Patch != nil {
			outcome.Patch(env.Session)
		}
		if outcome.Template != "" {
			parts = append(parts, m.render(env, outcome.Template, outcome.Data))
		}
		if outcome.Redirect != "" {
			if outcome.Skip {
				returnTo := env.Origin
				if returnTo == "" || returnTo == current {
					returnTo = StateWelcome
				}
				env.Session.markSkipped(current, returnTo)
			}
			current = outcome.Redirect
			continue
		}

		env.Session.clearSkipped(current)
		choices := make([]matching.Choice, 0, len(options)+len(def.Static))
		choices = append(choices, options...)
		choices = append(choices, def.Static...)
		return parts, current, choices, nil
	}
	return nil, "", nil, fmt.Errorf("conversation: redirect loop entering %s", target)
}

func (m *Machine) render(env *Env, name string, data map[string]any) string {
	merged := map[string]any{"TenantName": env.Tenant.Name}
	for k, v := range data {
		merged[k] = v
	}
	text, err := m.templates.Render(name, merged)
	if err != nil {
		m.logger.Error("conversation: render failed", "template", name, "error", err)
		return fallbackContent
	}
	return text
}
