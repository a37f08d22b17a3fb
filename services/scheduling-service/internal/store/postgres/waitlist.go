package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

const waitlistColumns = `id, business_id, service_id, customer_id, preferred_date, preferred_start, preferred_end,
	status, priority, notification_count, notified_at, response_deadline, converted_booking_id, notes,
	created_at, updated_at`

func scanWaitlist(row pgx.Row) (model.WaitlistEntry, error) {
	var (
		e                      model.WaitlistEntry
		serviceID, convertedID *string
		deadline               *time.Time
	)
	err := row.Scan(&e.ID, &e.BusinessID, &serviceID, &e.CustomerID, &e.PreferredDate, &e.PreferredStart, &e.PreferredEnd,
		&e.Status, &e.Priority, &e.NotificationCount, &e.NotifiedAt, &deadline, &convertedID, &e.Notes,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	e.ServiceID = deref(serviceID)
	e.ConvertedBookingID = deref(convertedID)
	if deadline != nil {
		e.ResponseDeadline = deadline.UTC()
	}
	if e.PreferredDate != nil {
		d := e.PreferredDate.UTC()
		e.PreferredDate = &d
	}
	return e, nil
}

func collectWaitlist(rows pgx.Rows) ([]model.WaitlistEntry, error) {
	defer rows.Close()
	var out []model.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func deadlineOrNull(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (t *pgTx) InsertWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO waitlist_entries
			(id, business_id, service_id, customer_id, preferred_date, preferred_start, preferred_end,
			 status, priority, notification_count, notified_at, response_deadline, converted_booking_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, e.ID, e.BusinessID, nullable(e.ServiceID), e.CustomerID, e.PreferredDate, e.PreferredStart, e.PreferredEnd,
		string(e.Status), string(e.Priority), e.NotificationCount, e.NotifiedAt, deadlineOrNull(e.ResponseDeadline),
		nullable(e.ConvertedBookingID), e.Notes).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return translate(err, "open waitlist entry for customer")
	}
	return nil
}

func (t *pgTx) GetWaitlistEntry(ctx context.Context, id string) (model.WaitlistEntry, error) {
	e, err := scanWaitlist(t.tx.QueryRow(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1`, id))
	if err != nil {
		return model.WaitlistEntry{}, translate(err, "waitlist entry")
	}
	return e, nil
}

func (t *pgTx) UpdateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
			notification_count = $3,
			notified_at = $4,
			response_deadline = $5,
			converted_booking_id = $6,
			notes = $7,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, e.ID, string(e.Status), e.NotificationCount, e.NotifiedAt, deadlineOrNull(e.ResponseDeadline),
		nullable(e.ConvertedBookingID), e.Notes).Scan(&e.UpdatedAt)
	return translate(err, "waitlist entry")
}

func (t *pgTx) OpenWaitlistEntries(ctx context.Context, businessID, serviceID, customerID string) ([]model.WaitlistEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE business_id = $1 AND COALESCE(service_id, '') = $2 AND customer_id = $3
			AND status IN ('active', 'notified')
		ORDER BY created_at, id
	`, businessID, serviceID, customerID)
	if err != nil {
		return nil, err
	}
	return collectWaitlist(rows)
}

func (t *pgTx) ActiveWaitlist(ctx context.Context, businessID, serviceID string) ([]model.WaitlistEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE business_id = $1 AND (service_id = $2 OR service_id IS NULL)
			AND status = 'active'
		ORDER BY created_at, id
	`, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	return collectWaitlist(rows)
}

func (t *pgTx) OverdueWaitlist(ctx context.Context, now time.Time, limit int) ([]model.WaitlistEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE status = 'notified' AND response_deadline < $1
		ORDER BY response_deadline, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectWaitlist(rows)
}

func (t *pgTx) ListWaitlist(ctx context.Context, businessID string, status model.WaitlistStatus, limit int) ([]model.WaitlistEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE business_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY CASE priority WHEN 'vip' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END,
			created_at, id
		LIMIT $3
	`, businessID, string(status), limit)
	if err != nil {
		return nil, err
	}
	return collectWaitlist(rows)
}
