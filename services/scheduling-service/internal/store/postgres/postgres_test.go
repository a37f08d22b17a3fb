package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{"no rows", pgx.ErrNoRows, apperr.KindNotFound},
		{"exclusion", &pgconn.PgError{Code: db.CodeExclusionViolation}, apperr.KindConflict},
		{"unique", &pgconn.PgError{Code: db.CodeUniqueViolation}, apperr.KindConflict},
		{"check", &pgconn.PgError{Code: db.CodeCheckViolation}, apperr.KindBadRequest},
		{"foreign key", &pgconn.PgError{Code: db.CodeForeignKeyViolation}, apperr.KindBadRequest},
		{"other", &pgconn.PgError{Code: "XX000"}, apperr.KindInternal},
		{"kind kept", apperr.Forbidden("business closed"), apperr.KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, apperr.KindOf(translate(tc.err, "booking")))
		})
	}
	assert.NoError(t, translate(nil, "booking"))
	assert.True(t, errors.Is(translate(context.Canceled, "booking"), context.Canceled))
}

func TestBookingFilterQuery(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	q, args := bookingFilterQuery(store.BookingFilter{
		BusinessID: "biz",
		Status:     model.StatusConfirmed,
		From:       from,
		Limit:      10,
	})
	assert.Contains(t, q, "WHERE business_id = $1 AND status = $2 AND end_at > $3")
	assert.True(t, strings.HasSuffix(q, "LIMIT $4"))
	assert.Equal(t, []any{"biz", "confirmed", from, 10}, args)

	q, args = bookingFilterQuery(store.BookingFilter{})
	assert.NotContains(t, q, "WHERE")
	assert.NotContains(t, q, "LIMIT")
	assert.Empty(t, args)
}

func TestSchemaCarriesBackstops(t *testing.T) {
	s := Schema()
	assert.Contains(t, s, "EXCLUDE USING gist")
	assert.Contains(t, s, "tstzrange(start_at, end_at, '[)')")
	assert.Contains(t, s, "CHECK (start_at < end_at)")
	assert.Contains(t, s, "waitlist_one_open_per_customer")
	assert.Contains(t, s, "outbox_events")
}

func TestSchemaAllowsBookingsWithoutServiceOrCustomer(t *testing.T) {
	s := Schema()
	start := strings.Index(s, "CREATE TABLE IF NOT EXISTS bookings (")
	require.GreaterOrEqual(t, start, 0)
	table := s[start : start+strings.Index(s[start:], ");")]
	assert.Contains(t, table, "service_id text REFERENCES services(id),")
	assert.Contains(t, table, "customer_id text REFERENCES customers(id),")
	assert.NotContains(t, table, "service_id text NOT NULL")
	assert.NotContains(t, table, "customer_id text NOT NULL")
	// Databases created before the columns became optional.
	assert.Contains(t, s, "ALTER COLUMN service_id DROP NOT NULL")
	assert.Contains(t, s, "ALTER COLUMN customer_id DROP NOT NULL")
}

// openTestStore connects to TEST_DATABASE_URL and applies the schema.
func openTestStore(t *testing.T) (*Store, *db.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return New(pool), pool
}

type seeded struct {
	businessID, resourceID, serviceID, customerID string
}

func seed(t *testing.T, pool *db.Pool) seeded {
	t.Helper()
	ctx := context.Background()
	s := seeded{
		businessID: uuid.NewString(),
		resourceID: uuid.NewString(),
		serviceID:  uuid.NewString(),
		customerID: uuid.NewString(),
	}
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO businesses (id, name, timezone, status) VALUES ($1, 'Studio', 'UTC', 'live')`, []any{s.businessID}},
		{`INSERT INTO business_hours (business_id, weekday, open_minute, close_minute) VALUES ($1, 1, 540, 1020)`, []any{s.businessID}},
		{`INSERT INTO resources (id, business_id, name, type) VALUES ($1, $2, 'Room A', 'room')`, []any{s.resourceID, s.businessID}},
		{`INSERT INTO services (id, business_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes)
			VALUES ($1, $2, 'Session', 60, 10, 5)`, []any{s.serviceID, s.businessID}},
		{`INSERT INTO service_resources (service_id, resource_id) VALUES ($1, $2)`, []any{s.serviceID, s.resourceID}},
		{`INSERT INTO customers (id, business_id, name) VALUES ($1, $2, 'Dana')`, []any{s.customerID, s.businessID}},
	}
	for _, st := range stmts {
		_, err := pool.Exec(ctx, st.sql, st.args...)
		require.NoError(t, err)
	}
	return s
}

func TestPostgresEngineRejectsOverlap(t *testing.T) {
	st, pool := openTestStore(t)
	s := seed(t, pool)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	engine := booking.NewEngine(st, &dispatch.Recorder{}, slog.New(slog.NewTextHandler(io.Discard, nil)), booking.Config{
		Now: func() time.Time { return now },
	})
	in := booking.CreateInput{
		BusinessID: s.businessID,
		ServiceID:  s.serviceID,
		ResourceID: s.resourceID,
		CustomerID: s.customerID,
		Start:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Actor:      "test",
	}
	b, err := engine.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.Start.Add(time.Hour), b.End)

	in.Start = in.Start.Add(30 * time.Minute)
	_, err = engine.Create(ctx, in)
	assert.True(t, apperr.IsConflict(err), "got %v", err)

	history, err := engine.History(ctx, b.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "created", history[0].Reason)
}

func TestPostgresResourceOnlyBookingWithoutCustomer(t *testing.T) {
	st, pool := openTestStore(t)
	s := seed(t, pool)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	engine := booking.NewEngine(st, &dispatch.Recorder{}, slog.New(slog.NewTextHandler(io.Discard, nil)), booking.Config{
		Now: func() time.Time { return now },
	})
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	b, err := engine.Create(ctx, booking.CreateInput{
		BusinessID: s.businessID,
		ResourceID: s.resourceID,
		Start:      start,
		End:        start.Add(30 * time.Minute),
		Actor:      "test",
	})
	require.NoError(t, err)

	got, err := engine.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ServiceID)
	assert.Empty(t, got.CustomerID)
	assert.Equal(t, s.resourceID, got.ResourceID)

	var serviceNull, customerNull bool
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT service_id IS NULL, customer_id IS NULL FROM bookings WHERE id = $1`, b.ID).Scan(&serviceNull, &customerNull))
	assert.True(t, serviceNull)
	assert.True(t, customerNull)

	_, err = engine.Create(ctx, booking.CreateInput{
		BusinessID: s.businessID,
		ResourceID: s.resourceID,
		Start:      start.Add(15 * time.Minute),
		End:        start.Add(45 * time.Minute),
	})
	assert.True(t, apperr.IsConflict(err), "got %v", err)
}

func TestExclusionConstraintBackstop(t *testing.T) {
	st, pool := openTestStore(t)
	s := seed(t, pool)
	ctx := context.Background()

	insert := func(start time.Time) error {
		return st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertBooking(ctx, &model.Booking{
				BusinessID: s.businessID,
				ServiceID:  s.serviceID,
				ResourceID: s.resourceID,
				CustomerID: s.customerID,
				Start:      start,
				End:        start.Add(time.Hour),
				Status:     model.StatusConfirmed,
			})
		})
	}
	start := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	require.NoError(t, insert(start))
	err := insert(start.Add(15 * time.Minute))
	assert.True(t, apperr.IsConflict(err), "got %v", err)
	// Back-to-back intervals do not overlap.
	assert.NoError(t, insert(start.Add(time.Hour)))
}

func TestWaitlistUniqueOpenEntry(t *testing.T) {
	st, pool := openTestStore(t)
	s := seed(t, pool)
	ctx := context.Background()

	join := func() error {
		return st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertWaitlistEntry(ctx, &model.WaitlistEntry{
				BusinessID: s.businessID,
				CustomerID: s.customerID,
				Status:     model.WaitlistActive,
				Priority:   model.PriorityNormal,
			})
		})
	}
	require.NoError(t, join())
	assert.True(t, apperr.IsConflict(join()))

	var active []model.WaitlistEntry
	require.NoError(t, st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		active, err = tx.ActiveWaitlist(ctx, s.businessID, s.serviceID)
		return err
	}))
	require.Len(t, active, 1)
	assert.Empty(t, active[0].ServiceID)
}
