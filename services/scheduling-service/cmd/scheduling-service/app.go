package main

import (
	"context"
	"log/slog"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store/memstore"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store/postgres"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/waitlist"
)

// app is the wired scheduling core shared by the serve and sweep commands.
type app struct {
	cfg      settings
	logger   *slog.Logger
	pool     *db.Pool
	store    store.Store
	outbox   *outbox.Repository
	engine   *booking.Engine
	waitlist *waitlist.Service
	closers  []func()
}

// newApp connects the store and picks the dispatcher: the outbox when Postgres is
// configured, a direct Kafka writer when only brokers are, and the log otherwise.
func newApp(ctx context.Context, logger *slog.Logger, cfg settings, demo bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var d dispatch.Dispatcher
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		a.store = postgres.New(pool)
		a.outbox = outbox.NewRepository()
		d = outbox.NewDispatcher(pool, a.outbox)
	} else {
		mem := memstore.New()
		if demo {
			seedDemo(mem, logger)
		}
		a.store = mem
		logger.Warn("DATABASE_URL not set; using the in-memory store")

		if brokers := kafkax.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
			w := kafkax.NewWriter(brokers)
			a.closers = append(a.closers, func() { _ = w.Close() })
			d = dispatch.NewKafkaDispatcher(w)
		} else {
			d = dispatch.LogDispatcher{Logger: logger}
		}
	}

	a.engine = booking.NewEngine(a.store, d, logger, booking.Config{
		ReminderOffsets: cfg.ReminderOffsets,
		SlotStep:        cfg.SlotStep,
	})
	a.waitlist = waitlist.NewService(a.store, a.engine, logger, waitlist.Config{
		ResponseWindow: cfg.ResponseWindow,
	})
	a.engine.OnSlotFreed(a.waitlist)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
