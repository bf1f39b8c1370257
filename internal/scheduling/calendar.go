// Package scheduling holds the booking domain model and the availability
// engine that turns weekly rules, date exceptions and existing appointments
// into open slots.
package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday uses 0=Sunday..6=Saturday everywhere a weekday is stored, computed
// or compared. It matches time.Weekday; other numberings are converted at the
// boundary with WeekdayFromISO.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var ErrInvalidWeekday = errors.New("scheduling: weekday out of range")

// ParseWeekday validates a 0=Sunday..6=Saturday value.
func ParseWeekday(n int) (Weekday, error) {
	if n < int(Sunday) || n > int(Saturday) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidWeekday, n)
	}
	return Weekday(n), nil
}

// WeekdayFromISO converts ISO-8601 numbering (1=Monday..7=Sunday).
func WeekdayFromISO(n int) (Weekday, error) {
	if n < 1 || n > 7 {
		return 0, fmt.Errorf("%w: iso %d", ErrInvalidWeekday, n)
	}
	return Weekday(n % 7), nil
}

// WeekdayOf returns the weekday of a civil date.
func WeekdayOf(d Date) Weekday {
	return Weekday(d.Time().Weekday())
}

func (w Weekday) String() string {
	if w < Sunday || w > Saturday {
		return "Weekday(" + strconv.Itoa(int(w)) + ")"
	}
	return time.Weekday(w).String()
}

// Date is a civil calendar date with no time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf takes the calendar date of t as seen in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO calendar date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("scheduling: parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns midnight of d in UTC. Wall-clock values are tenant-local.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// At returns the tenant-local wall time of c on d.
func (d Date) At(c Clock) time.Time {
	return d.Time().Add(time.Duration(c) * time.Minute)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Weekday() Weekday {
	return WeekdayOf(d)
}

func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(time.DateOnly)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day in whole minutes since midnight. 1440 is allowed as
// the end of a window that runs to midnight.
type Clock int

const minutesPerDay = 24 * 60

var ErrInvalidClock = errors.New("scheduling: invalid time of day")

// ParseClock parses "HH:MM" (24-hour).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	c := Clock(h*60 + m)
	if h < 0 || m < 0 || m > 59 || c > minutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return c, nil
}

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is a working-hours range within one day, [Start, End).
type Window struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func (w Window) Valid() bool {
	return w.Start >= 0 && w.Start < w.End && w.End <= minutesPerDay
}

// Contains reports whether iv lies fully inside w.
func (w Window) Contains(iv Interval) bool {
	return iv.Start >= w.Start && iv.End <= w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Interval is a half-open [Start, End) range of minutes.
type Interval struct {
	Start Clock
	End   Clock
}

// Overlaps is the half-open intersection test; touching intervals do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// WallClock keeps t's wall-clock reading and relabels it as UTC. Appointment
// times are stored this way, so comparisons against them use WallClock(now).
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
