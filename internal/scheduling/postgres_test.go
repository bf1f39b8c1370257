package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCatalogTenant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hours := []byte(`{"1":{"start":"09:00","end":"17:00"}}`)
	faq := []byte(`[{"key":"parking","question":"Where do I park?","answer":"Street parking."}]`)
	mock.ExpectQuery("SELECT id, name, buffer_minutes").
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "buffer_minutes", "max_session_minutes", "business_hours", "faq"}).
			AddRow("t1", "Glow Clinic", 10, 120, hours, faq))

	catalog := NewPostgresCatalog(mock)
	tenant, err := catalog.Tenant(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, 10, tenant.BufferMinutes)
	assert.Equal(t, Window{Start: NewClock(9, 0), End: NewClock(17, 0)}, tenant.BusinessHours[Monday])
	entry, ok := tenant.FAQByKey("parking")
	assert.True(t, ok)
	assert.Equal(t, "Street parking.", entry.Answer)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogTenantMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name, buffer_minutes").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	tenant, err := NewPostgresCatalog(mock).Tenant(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, tenant)
}

func TestPostgresCatalogRuleForUsesSundayZero(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM availability_rules").
		WithArgs("t1", 0).
		WillReturnRows(pgxmock.NewRows([]string{"start_min", "end_min"}).AddRow(600, 720))

	rule, err := NewPostgresCatalog(mock).RuleFor(context.Background(), "t1", Sunday)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, Window{Start: 600, End: 720}, rule.Window)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogExceptionFor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	day := Date{Year: 2026, Month: time.February, Day: 10}
	mock.ExpectQuery("FROM availability_exceptions").
		WithArgs("t1", day.Time()).
		WillReturnRows(pgxmock.NewRows([]string{"kind", "start_min", "end_min"}).AddRow("BLOCKED", 0, 0))

	exc, err := NewPostgresCatalog(mock).ExceptionFor(context.Background(), "t1", day)
	require.NoError(t, err)
	require.NotNil(t, exc)
	assert.Equal(t, ExceptionBlocked, exc.Kind)
}

func TestPostgresCatalogAppointmentsOn(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	day := Date{Year: 2026, Month: time.February, Day: 10}
	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("FROM appointments").
		WithArgs("t1", day.Time()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "contact_id", "services", "appt_date", "start_min", "end_min", "status", "version", "created_at", "updated_at"}).
			AddRow(id, "t1", "c1", []byte(`[{"service_id":"s1","name":"Facial","duration_minutes":60}]`), day.Time(), 540, 600, "confirmed", int64(1), now, now))

	appts, err := NewPostgresCatalog(mock).AppointmentsOn(context.Background(), "t1", day)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, id, appts[0].ID)
	assert.Equal(t, day, appts[0].Date)
	assert.Equal(t, 60, appts[0].DurationMinutes())
	assert.Equal(t, "Facial", appts[0].Selections[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
