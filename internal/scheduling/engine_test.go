package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestAvailableSlotsSundayRule(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.rules[Sunday] = Window{Start: NewClock(10, 0), End: NewClock(12, 0)}
	engine := NewEngine(catalog, nil)

	slots, err := engine.AvailableSlots(context.Background(), "t1", mustDate(t, "2026-02-08"), 60)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, NewClock(10, 0), slots[0].Start)
	assert.Equal(t, NewClock(11, 0), slots[1].Start)

	monday, err := engine.AvailableSlots(context.Background(), "t1", mustDate(t, "2026-02-09"), 60)
	require.NoError(t, err)
	assert.Empty(t, monday)
}

func TestAvailableSlotsExceptionPrecedence(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.rules[Tuesday] = Window{Start: NewClock(9, 0), End: NewClock(17, 0)}
	blocked := mustDate(t, "2026-02-10")
	special := mustDate(t, "2026-02-17")
	catalog.exceptions[blocked] = Exception{Date: blocked, Kind: ExceptionBlocked}
	catalog.exceptions[special] = Exception{Date: special, Kind: ExceptionSpecialHours, Window: Window{Start: NewClock(13, 0), End: NewClock(15, 0)}}
	engine := NewEngine(catalog, nil)

	slots, err := engine.AvailableSlots(context.Background(), "t1", blocked, 30)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)

	slots, err = engine.AvailableSlots(context.Background(), "t1", special, 60)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, NewClock(13, 0), slots[0].Start)
	assert.Equal(t, NewClock(15, 0), slots[1].End)
}

func TestAvailableSlotsSkipsBookedIntervals(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.rules[Tuesday] = Window{Start: NewClock(9, 0), End: NewClock(12, 0)}
	day := mustDate(t, "2026-02-10")
	booked := NewAppointment("t1", "c1", day, NewClock(10, 0), []Selection{{ServiceID: "s1", DurationMinutes: 60}})
	cancelled := NewAppointment("t1", "c2", day, NewClock(9, 0), []Selection{{ServiceID: "s1", DurationMinutes: 60}})
	cancelled.Status = StatusCancelled
	catalog.appointments[day] = []Appointment{booked, cancelled}
	engine := NewEngine(catalog, nil)

	slots, err := engine.AvailableSlots(context.Background(), "t1", day, 60)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, NewClock(9, 0), slots[0].Start)
	assert.Equal(t, NewClock(11, 0), slots[1].Start)

	window := Window{Start: NewClock(9, 0), End: NewClock(12, 0)}
	for _, s := range slots {
		assert.True(t, window.Contains(s.Interval()))
		assert.False(t, s.Interval().Overlaps(booked.Interval()))
	}
}

func TestAvailableSlotsValidatesInput(t *testing.T) {
	catalog := newFakeCatalog()
	engine := NewEngine(catalog, nil)

	_, err := engine.AvailableSlots(context.Background(), "t1", mustDate(t, "2026-02-10"), 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = engine.AvailableSlots(context.Background(), "missing", mustDate(t, "2026-02-10"), 30)
	assert.ErrorIs(t, err, ErrTenantNotFound)

	catalog.err = errors.New("boom")
	_, err = engine.AvailableSlots(context.Background(), "t1", mustDate(t, "2026-02-10"), 30)
	assert.Error(t, err)
}

func TestOpenDatesRespectsLimit(t *testing.T) {
	catalog := newFakeCatalog()
	for _, w := range []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday} {
		catalog.rules[w] = Window{Start: NewClock(9, 0), End: NewClock(10, 0)}
	}
	engine := NewEngine(catalog, nil)

	saturday := time.Date(2026, time.February, 7, 12, 0, 0, 0, time.UTC)
	dates, err := engine.OpenDates(context.Background(), "t1", saturday, 14, 60, 3)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "2026-02-09", dates[0].String())
	assert.Equal(t, "2026-02-10", dates[1].String())
	assert.Equal(t, "2026-02-11", dates[2].String())
}

func TestGenerateSlotsBufferStep(t *testing.T) {
	day := Date{Year: 2026, Month: 2, Day: 10}
	window := Window{Start: NewClock(9, 0), End: NewClock(11, 0)}

	slots := GenerateSlots(day, window, 30, 15, nil)
	starts := make([]string, 0, len(slots))
	for _, s := range slots {
		starts = append(starts, s.Start.String())
	}
	assert.Equal(t, []string{"09:00", "09:45", "10:30"}, starts)
}

func TestGenerateSlotsDurationLongerThanWindow(t *testing.T) {
	day := Date{Year: 2026, Month: 2, Day: 10}
	slots := GenerateSlots(day, Window{Start: NewClock(9, 0), End: NewClock(10, 0)}, 90, 0, nil)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestBusyIntervalsExcludesAppointment(t *testing.T) {
	day := Date{Year: 2026, Month: 2, Day: 10}
	a := NewAppointment("t1", "c1", day, NewClock(9, 0), []Selection{{DurationMinutes: 30}})
	b := NewAppointment("t1", "c1", day, NewClock(10, 0), []Selection{{DurationMinutes: 30}})

	busy := BusyIntervals([]Appointment{a, b}, &a)
	require.Len(t, busy, 1)
	assert.Equal(t, b.Interval(), busy[0])

	conflict, ok := FirstConflict(Interval{Start: NewClock(10, 15), End: NewClock(10, 45)}, busy)
	assert.True(t, ok)
	assert.Equal(t, b.Interval(), conflict)
}

func TestOpenDatesSkipsTodayWhenAllSlotsStarted(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.rules[Tuesday] = Window{Start: NewClock(9, 0), End: NewClock(11, 0)}
	catalog.rules[Wednesday] = Window{Start: NewClock(9, 0), End: NewClock(11, 0)}
	engine := NewEngine(catalog, nil)

	lateTuesday := time.Date(2026, time.February, 10, 10, 0, 0, 0, time.UTC)
	dates, err := engine.OpenDates(context.Background(), "t1", lateTuesday, 2, 60, 0)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, "2026-02-11", dates[0].String())
}

func TestFutureSlots(t *testing.T) {
	day := Date{Year: 2026, Month: time.February, Day: 10}
	slots := GenerateSlots(day, Window{Start: NewClock(9, 0), End: NewClock(12, 0)}, 60, 0, nil)

	now := time.Date(2026, time.February, 10, 9, 30, 0, 0, time.UTC)
	future := FutureSlots(slots, now)
	require.Len(t, future, 2)
	assert.Equal(t, NewClock(10, 0), future[0].Start)

	assert.Len(t, FutureSlots(slots, now.AddDate(0, 0, -1)), 3)
	assert.Empty(t, FutureSlots(slots, now.AddDate(0, 0, 1)))
}
