package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

var (
	ErrInvalidDuration = errors.New("scheduling: duration must be positive")
	ErrTenantNotFound  = errors.New("scheduling: tenant not found")
	// ErrNoAvailability labels the empty result; AvailableSlots itself never returns it.
	ErrNoAvailability = errors.New("scheduling: no availability")
)

// Catalog is the read side of the persistence layer.
type Catalog interface {
	Tenant(ctx context.Context, tenantID string) (*Tenant, error)
	ActiveServices(ctx context.Context, tenantID string) ([]Service, error)
	// RuleFor returns nil when the weekday has no rule.
	RuleFor(ctx context.Context, tenantID string, weekday Weekday) (*Rule, error)
	// ExceptionFor returns nil when the date has no exception.
	ExceptionFor(ctx context.Context, tenantID string, date Date) (*Exception, error)
	AppointmentsOn(ctx context.Context, tenantID string, date Date) ([]Appointment, error)
}

// Slot is an open start time for a given total duration.
type Slot struct {
	Date  Date
	Start Clock
	End   Clock
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Engine computes availability. It holds no state between calls and takes
// no locks; commits revalidate against current data.
type Engine struct {
	catalog Catalog
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithSchedulingMetrics records slot computation latency.
func WithSchedulingMetrics(m *metrics.SchedulingMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an availability engine over the catalog.
func NewEngine(catalog Catalog, logger *logging.Logger, opts ...EngineOption) *Engine {
	if catalog == nil {
		panic("scheduling: catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		catalog: catalog,
		logger:  logger,
		tracer:  otel.Tracer("booking.internal.scheduling"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog exposes the engine's read source.
func (e *Engine) Catalog() Catalog {
	return e.catalog
}

// EffectiveWindow resolves the working window for a date. An exception for
// the date always wins over the weekday rule. ok is false when nothing can be
// booked that day.
func (e *Engine) EffectiveWindow(ctx context.Context, tenantID string, date Date) (Window, bool, error) {
	exc, err := e.catalog.ExceptionFor(ctx, tenantID, date)
	if err != nil {
		return Window{}, false, fmt.Errorf("scheduling: load exception: %w", err)
	}
	if exc != nil {
		switch exc.Kind {
		case ExceptionBlocked:
			return Window{}, false, nil
		case ExceptionSpecialHours:
			return exc.Window, exc.Window.Valid(), nil
		default:
			return Window{}, false, fmt.Errorf("scheduling: unknown exception kind %q", exc.Kind)
		}
	}

	rule, err := e.catalog.RuleFor(ctx, tenantID, WeekdayOf(date))
	if err != nil {
		return Window{}, false, fmt.Errorf("scheduling: load rule: %w", err)
	}
	if rule == nil {
		return Window{}, false, nil
	}
	return rule.Window, rule.Window.Valid(), nil
}

// AvailableSlots returns the open slots on date for a booking of
// totalMinutes, in chronological order. The result is computed fresh on
// every call.
func (e *Engine) AvailableSlots(ctx context.Context, tenantID string, date Date, totalMinutes int) ([]Slot, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.available_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", tenantID),
		attribute.String("booking.date", date.String()),
		attribute.Int("booking.duration_minutes", totalMinutes),
	)
	started := time.Now()

	if totalMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	tenant, err := e.catalog.Tenant(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scheduling: load tenant: %w", err)
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}

	window, ok, err := e.EffectiveWindow(ctx, tenantID, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		e.metrics.ObserveSlotQuery(time.Since(started).Seconds(), 0)
		return []Slot{}, nil
	}

	appts, err := e.catalog.AppointmentsOn(ctx, tenantID, date)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scheduling: load appointments: %w", err)
	}
	busy := BusyIntervals(appts, nil)

	slots := GenerateSlots(date, window, totalMinutes, tenant.BufferMinutes, busy)
	span.SetAttributes(attribute.Int("booking.slot_count", len(slots)))
	e.metrics.ObserveSlotQuery(time.Since(started).Seconds(), len(slots))
	return slots, nil
}

// OpenDates walks days dates starting at now's date and returns those with
// at least one slot that has not started yet, stopping after limit dates
// when limit > 0. now is tenant-local wall time.
func (e *Engine) OpenDates(ctx context.Context, tenantID string, now time.Time, days, totalMinutes, limit int) ([]Date, error) {
	from := DateOf(now)
	var open []Date
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		slots, err := e.AvailableSlots(ctx, tenantID, d, totalMinutes)
		if err != nil {
			return nil, err
		}
		if len(FutureSlots(slots, now)) == 0 {
			continue
		}
		open = append(open, d)
		if limit > 0 && len(open) >= limit {
			break
		}
	}
	return open, nil
}

// FutureSlots drops slots that start at or before now.
func FutureSlots(slots []Slot, now time.Time) []Slot {
	today := DateOf(now)
	clock := Clock(now.Hour()*60 + now.Minute())
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Date.Before(today) {
			continue
		}
		if s.Date == today && s.Start <= clock {
			continue
		}
		out = append(out, s)
	}
	return out
}

// BusyIntervals collects the intervals occupied by non-cancelled
// appointments, skipping the appointment with id exclude when set.
func BusyIntervals(appts []Appointment, exclude *Appointment) []Interval {
	busy := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Blocks() {
			continue
		}
		if exclude != nil && a.ID == exclude.ID {
			continue
		}
		busy = append(busy, a.Interval())
	}
	return busy
}

// FirstConflict returns the first busy interval overlapping iv.
func FirstConflict(iv Interval, busy []Interval) (Interval, bool) {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return b, true
		}
	}
	return Interval{}, false
}

// GenerateSlots steps through window by duration+buffer and keeps every
// candidate that fits in the window and overlaps nothing in busy.
func GenerateSlots(date Date, window Window, totalMinutes, bufferMinutes int, busy []Interval) []Slot {
	if totalMinutes <= 0 || !window.Valid() {
		return []Slot{}
	}
	if bufferMinutes < 0 {
		bufferMinutes = 0
	}
	step := Clock(totalMinutes + bufferMinutes)
	duration := Clock(totalMinutes)

	slots := []Slot{}
	for start := window.Start; start <= window.End-duration; start += step {
		iv := Interval{Start: start, End: start + duration}
		if _, conflict := FirstConflict(iv, busy); conflict {
			continue
		}
		slots = append(slots, Slot{Date: date, Start: iv.Start, End: iv.End})
	}
	return slots
}
