package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
)

// exclusion_violation, raised by the appointments_no_overlap constraint.
const pgExclusionViolation = "23P01"

// PostgresRepository stores appointments in Postgres. Overlap is enforced by
// an exclusion constraint so concurrent inserts cannot double-book.
type PostgresRepository struct {
	db scheduling.DB
}

// NewPostgresRepository creates a repository backed by a pgx pool.
func NewPostgresRepository(db scheduling.DB) *PostgresRepository {
	if db == nil {
		panic("bookings: db required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, appt scheduling.Appointment) (WriteResult, error) {
	services, err := json.Marshal(appt.Selections)
	if err != nil {
		return WriteResult{}, fmt.Errorf("bookings: encode services: %w", err)
	}
	now := time.Now().UTC()
	_, err = r.db.Exec(ctx, `
		INSERT INTO appointments (id, tenant_id, contact_id, services, appt_date, start_min, end_min, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)`,
		appt.ID, appt.TenantID, appt.ContactID, services, appt.Date.Time(), int(appt.Start), int(appt.End), string(scheduling.StatusConfirmed), now,
	)
	if err != nil {
		if isExclusionViolation(err) {
			return conflict(ReasonOverlap), nil
		}
		return WriteResult{}, fmt.Errorf("bookings: insert appointment: %w", err)
	}
	return updated(1), nil
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID string, id uuid.UUID) (*scheduling.Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+scheduling.AppointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	appt, err := scheduling.ScanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: get appointment: %w", err)
	}
	return &appt, nil
}

func (r *PostgresRepository) Reschedule(ctx context.Context, tenantID string, id uuid.UUID, expectedVersion int64, date scheduling.Date, start, end scheduling.Clock) (WriteResult, error) {
	var version int64
	err := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET appt_date = $1, start_min = $2, end_min = $3, version = version + 1, updated_at = $4
		WHERE tenant_id = $5 AND id = $6 AND version = $7 AND status = 'confirmed'
		RETURNING version`,
		date.Time(), int(start), int(end), time.Now().UTC(), tenantID, id, expectedVersion,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conflict(ReasonVersionMismatch), nil
		}
		if isExclusionViolation(err) {
			return conflict(ReasonOverlap), nil
		}
		return WriteResult{}, fmt.Errorf("bookings: reschedule appointment: %w", err)
	}
	return updated(version), nil
}

func (r *PostgresRepository) Cancel(ctx context.Context, tenantID string, id uuid.UUID, expectedVersion int64) (WriteResult, error) {
	var version int64
	err := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', version = version + 1, updated_at = $1
		WHERE tenant_id = $2 AND id = $3 AND version = $4 AND status = 'confirmed'
		RETURNING version`,
		time.Now().UTC(), tenantID, id, expectedVersion,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conflict(ReasonVersionMismatch), nil
		}
		return WriteResult{}, fmt.Errorf("bookings: cancel appointment: %w", err)
	}
	return updated(version), nil
}

func (r *PostgresRepository) ListUpcoming(ctx context.Context, tenantID, contactID string, from scheduling.Date) ([]scheduling.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+scheduling.AppointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND contact_id = $2 AND status = 'confirmed' AND appt_date >= $3
		ORDER BY appt_date ASC, start_min ASC`, tenantID, contactID, from.Time())
	if err != nil {
		return nil, fmt.Errorf("bookings: list upcoming: %w", err)
	}
	defer rows.Close()
	return scheduling.ScanAppointments(rows)
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}
