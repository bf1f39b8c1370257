package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCatalog reads tenants, services, rules, exceptions and
// appointments from Postgres.
type PostgresCatalog struct {
	db DB
}

// NewPostgresCatalog creates a catalog over a pgx pool or connection.
func NewPostgresCatalog(db DB) *PostgresCatalog {
	if db == nil {
		panic("scheduling: db required")
	}
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Tenant(ctx context.Context, tenantID string) (*Tenant, error) {
	var (
		t        Tenant
		hoursRaw []byte
		faqRaw   []byte
	)
	err := c.db.QueryRow(ctx, `
		SELECT id, name, buffer_minutes, max_session_minutes, business_hours, faq
		FROM tenants
		WHERE id = $1`, tenantID).Scan(&t.ID, &t.Name, &t.BufferMinutes, &t.MaxSessionMinutes, &hoursRaw, &faqRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduling: get tenant: %w", err)
	}
	if len(hoursRaw) > 0 {
		if err := json.Unmarshal(hoursRaw, &t.BusinessHours); err != nil {
			return nil, fmt.Errorf("scheduling: decode business hours: %w", err)
		}
	}
	if len(faqRaw) > 0 {
		if err := json.Unmarshal(faqRaw, &t.FAQ); err != nil {
			return nil, fmt.Errorf("scheduling: decode faq: %w", err)
		}
	}
	return &t, nil
}

func (c *PostgresCatalog) ActiveServices(ctx context.Context, tenantID string) ([]Service, error) {
	rows, err := c.db.Query(ctx, `
		SELECT id, tenant_id, name, duration_minutes, price_cents, active
		FROM services
		WHERE tenant_id = $1 AND active
		ORDER BY name ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Active); err != nil {
			return nil, fmt.Errorf("scheduling: scan service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) RuleFor(ctx context.Context, tenantID string, weekday Weekday) (*Rule, error) {
	var start, end int
	err := c.db.QueryRow(ctx, `
		SELECT start_min, end_min
		FROM availability_rules
		WHERE tenant_id = $1 AND weekday = $2`, tenantID, int(weekday)).Scan(&start, &end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduling: get rule: %w", err)
	}
	return &Rule{TenantID: tenantID, Weekday: weekday, Window: Window{Start: Clock(start), End: Clock(end)}}, nil
}

func (c *PostgresCatalog) ExceptionFor(ctx context.Context, tenantID string, date Date) (*Exception, error) {
	var (
		kind       string
		start, end int
	)
	err := c.db.QueryRow(ctx, `
		SELECT kind, COALESCE(start_min, 0), COALESCE(end_min, 0)
		FROM availability_exceptions
		WHERE tenant_id = $1 AND exception_date = $2`, tenantID, date.Time()).Scan(&kind, &start, &end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduling: get exception: %w", err)
	}
	return &Exception{
		TenantID: tenantID,
		Date:     date,
		Kind:     ExceptionKind(kind),
		Window:   Window{Start: Clock(start), End: Clock(end)},
	}, nil
}

func (c *PostgresCatalog) AppointmentsOn(ctx context.Context, tenantID string, date Date) ([]Appointment, error) {
	rows, err := c.db.Query(ctx, `
		SELECT `+AppointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND appt_date = $2 AND status <> 'cancelled'
		ORDER BY start_min ASC`, tenantID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()
	return ScanAppointments(rows)
}

// AppointmentColumns is the select list ScanAppointment expects.
const AppointmentColumns = `id, tenant_id, contact_id, services, appt_date, start_min, end_min, status, version, created_at, updated_at`

// ScanAppointment reads one row selected with AppointmentColumns.
func ScanAppointment(row pgx.Row) (Appointment, error) {
	var (
		a          Appointment
		services   []byte
		day        time.Time
		start, end int
		status     string
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.ContactID, &services, &day, &start, &end, &status, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Appointment{}, err
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &a.Selections); err != nil {
			return Appointment{}, fmt.Errorf("scheduling: decode services: %w", err)
		}
	}
	a.Date = DateOf(day)
	a.Start = Clock(start)
	a.End = Clock(end)
	a.Status = AppointmentStatus(status)
	return a, nil
}

// ScanAppointments drains rows selected with AppointmentColumns.
func ScanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := ScanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
