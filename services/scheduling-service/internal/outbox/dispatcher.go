package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
)

// Dispatcher stages messages in the outbox table in its own transaction; the Publisher
// ships them to Kafka.
type Dispatcher struct {
	pool *db.Pool
	repo *Repository
}

func NewDispatcher(pool *db.Pool, repo *Repository) *Dispatcher {
	return &Dispatcher{pool: pool, repo: repo}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msgs ...dispatch.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	evts := make([]Event, len(msgs))
	for i, m := range msgs {
		evts[i] = FromMessage(m)
	}
	return d.pool.InTx(ctx, func(tx pgx.Tx) error {
		return d.repo.Insert(ctx, tx, evts...)
	})
}
