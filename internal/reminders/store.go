package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var storeTracer = otel.Tracer("booking.internal.reminders.store")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EntryStore is the queue contract the scheduler and worker depend on.
type EntryStore interface {
	Create(ctx context.Context, e *Entry) error
	CancelForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error)
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]Entry, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}

const entryColumns = `id, appointment_id, tenant_id, contact_id, starts_at, fire_at, status, sent_at, created_at, updated_at`

// Store persists reminder entries in Postgres.
type Store struct {
	db DB
}

// NewStore creates a reminder store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts a pending entry.
func (s *Store) Create(ctx context.Context, e *Entry) error {
	ctx, span := storeTracer.Start(ctx, "reminders.create")
	defer span.End()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = StatusPending
	}
	span.SetAttributes(attribute.String("booking.appointment_id", e.AppointmentID.String()))

	_, err := s.db.Exec(ctx, `
		INSERT INTO reminders (id, appointment_id, tenant_id, contact_id, starts_at, fire_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.AppointmentID, e.TenantID, e.ContactID, e.StartsAt, e.FireAt, string(e.Status), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("reminders: create entry: %w", err)
	}
	return nil
}

// ListDue returns pending entries whose fire time is on or before asOf,
// oldest first.
func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit int) ([]Entry, error) {
	ctx, span := storeTracer.Start(ctx, "reminders.list_due")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM reminders
		WHERE status = 'pending' AND fire_at <= $1
		ORDER BY fire_at ASC
		LIMIT $2`, asOf, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListByTenant returns a tenant's entries, optionally filtered by status.
func (s *Store) ListByTenant(ctx context.Context, tenantID string, status *Status, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		rows, err = s.db.Query(ctx, `
			SELECT `+entryColumns+`
			FROM reminders
			WHERE tenant_id = $1 AND status = $2
			ORDER BY fire_at ASC LIMIT $3`, tenantID, string(*status), limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+entryColumns+`
			FROM reminders
			WHERE tenant_id = $1
			ORDER BY fire_at ASC LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("reminders: list by tenant: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MarkSent moves a pending entry to sent. An entry cancelled in the
// meantime is left alone and reported as an error.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE reminders SET status = 'sent', sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`, now, id)
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminders: mark sent: no pending entry with id %s", id)
	}
	return nil
}

// CancelForAppointment cancels every pending entry of an appointment.
func (s *Store) CancelForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	ctx, span := storeTracer.Start(ctx, "reminders.cancel")
	defer span.End()

	tag, err := s.db.Exec(ctx, `
		UPDATE reminders SET status = 'cancelled', updated_at = $1
		WHERE appointment_id = $2 AND status = 'pending'`, time.Now().UTC(), appointmentID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("reminders: cancel for appointment: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats counts a tenant's entries by status.
func (s *Store) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	var stats Stats
	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'sent') AS sent,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled
		FROM reminders
		WHERE tenant_id = $1`, tenantID).Scan(&stats.Pending, &stats.Sent, &stats.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("reminders: stats: %w", err)
	}
	return &stats, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		var (
			e      Entry
			status string
		)
		err := rows.Scan(&e.ID, &e.AppointmentID, &e.TenantID, &e.ContactID, &e.StartsAt, &e.FireAt, &status, &e.SentAt, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan entry: %w", err)
		}
		e.Status = Status(status)
		result = append(result, e)
	}
	return result, rows.Err()
}
