package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
)

const bookingColumns = `id, business_id, service_id, resource_id, customer_id, start_at, end_at, status,
	price_snapshot, policy_snapshot, metadata, notes, cancelled_at, cancel_reason, created_at, updated_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b                            model.Booking
		serviceID, customerID        *string
		resourceID                   *string
		priceRaw, policyRaw, metaRaw []byte
	)
	err := row.Scan(&b.ID, &b.BusinessID, &serviceID, &resourceID, &customerID, &b.Start, &b.End, &b.Status,
		&priceRaw, &policyRaw, &metaRaw, &b.Notes, &b.CancelledAt, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.ServiceID, b.ResourceID, b.CustomerID = deref(serviceID), deref(resourceID), deref(customerID)
	b.Start, b.End = b.Start.UTC(), b.End.UTC()
	if len(priceRaw) > 0 {
		b.PriceSnapshot = &model.PriceSnapshot{}
		if err := json.Unmarshal(priceRaw, b.PriceSnapshot); err != nil {
			return model.Booking{}, fmt.Errorf("decode price snapshot: %w", err)
		}
	}
	if len(policyRaw) > 0 {
		b.PolicySnapshot = &model.PolicySnapshot{}
		if err := json.Unmarshal(policyRaw, b.PolicySnapshot); err != nil {
			return model.Booking{}, fmt.Errorf("decode policy snapshot: %w", err)
		}
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &b.Metadata); err != nil {
			return model.Booking{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// jsonOrNull returns nil for a nil pointer so the column stays NULL.
func jsonOrNull[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func holdingStatuses() []string {
	out := make([]string, 0, len(model.HoldingStatuses))
	for _, s := range model.HoldingStatuses {
		out = append(out, string(s))
	}
	return out
}

func (t *pgTx) HoldingBookings(ctx context.Context, scope store.Scope, from, to time.Time, excludeID string) ([]model.Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if scope.ResourceID != "" {
		rows, err = t.tx.Query(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE resource_id = $1
				AND status = ANY($2)
				AND start_at < $4 AND end_at > $3
				AND id <> $5
			ORDER BY start_at, id
		`, scope.ResourceID, holdingStatuses(), from, to, excludeID)
	} else {
		rows, err = t.tx.Query(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE service_id = $1 AND resource_id IS NULL
				AND status = ANY($2)
				AND start_at < $4 AND end_at > $3
				AND id <> $5
			ORDER BY start_at, id
		`, scope.ServiceID, holdingStatuses(), from, to, excludeID)
	}
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (t *pgTx) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return model.Booking{}, translate(err, "booking")
	}
	return b, nil
}

// bookingFilterQuery builds the WHERE clause for ListBookings.
func bookingFilterQuery(f store.BookingFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.BusinessID != "" {
		add("business_id = $%d", f.BusinessID)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("end_at > $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_at < $%d", f.To)
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY start_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return q, args
}

func (t *pgTx) ListBookings(ctx context.Context, f store.BookingFilter) ([]model.Booking, error) {
	q, args := bookingFilterQuery(f)
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (t *pgTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	price, err := jsonOrNull(b.PriceSnapshot)
	if err != nil {
		return err
	}
	policy, err := jsonOrNull(b.PolicySnapshot)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(metadataOrEmpty(b.Metadata))
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, business_id, service_id, resource_id, customer_id, start_at, end_at, status,
			 price_snapshot, policy_snapshot, metadata, notes, cancelled_at, cancel_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, b.ID, b.BusinessID, nullable(b.ServiceID), nullable(b.ResourceID), nullable(b.CustomerID), b.Start, b.End, string(b.Status),
		price, policy, meta, b.Notes, b.CancelledAt, b.CancelReason).Scan(&b.CreatedAt, &b.UpdatedAt)
	return translate(err, "booking")
}

func (t *pgTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	meta, err := json.Marshal(metadataOrEmpty(b.Metadata))
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET resource_id = $2,
			start_at = $3,
			end_at = $4,
			status = $5,
			metadata = $6,
			notes = $7,
			cancelled_at = $8,
			cancel_reason = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, b.ID, nullable(b.ResourceID), b.Start, b.End, string(b.Status), meta, b.Notes, b.CancelledAt, b.CancelReason).
		Scan(&b.UpdatedAt)
	return translate(err, "booking")
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func (t *pgTx) AppendHistory(ctx context.Context, rows ...model.BookingHistory) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, h := range rows {
		batch.Queue(`
			INSERT INTO booking_history (booking_id, field, old_value, new_value, actor, reason)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, h.BookingID, h.Field, h.OldValue, h.NewValue, h.Actor, h.Reason)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) ListHistory(ctx context.Context, bookingID string) ([]model.BookingHistory, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, booking_id, field, old_value, new_value, actor, reason, created_at
		FROM booking_history
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BookingHistory
	for rows.Next() {
		var h model.BookingHistory
		if err := rows.Scan(&h.ID, &h.BookingID, &h.Field, &h.OldValue, &h.NewValue, &h.Actor, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
