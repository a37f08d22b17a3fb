package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
)

// Repository holds the outbox_events queries. Every method runs inside the caller's
// transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert stages events in one round trip. All rows share the trace of ctx.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	trace := otelx.CaptureTrace(ctx)
	batch := &pgx.Batch{}
	for _, evt := range evts {
		batch.Queue(`
			INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, trace.Parent, trace.State)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// Record is a staged row as read back by the publisher.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Trace         otelx.StoredTrace
	CreatedAt     time.Time
}

// FetchUnpublished locks up to limit pending rows in insertion order. Rows locked by
// another publisher replica are skipped.
func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.Payload, &rec.Trace.Parent, &rec.Trace.State, &rec.CreatedAt)
		return rec, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}

// PurgePublished deletes published rows older than the cutoff.
func (r *Repository) PurgePublished(ctx context.Context, tx pgx.Tx, before time.Time) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM outbox_events WHERE published_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
