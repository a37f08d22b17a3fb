package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/segmentio/kafka-go"
)

type Publisher struct {
	pool        *db.Pool
	repo        *Repository
	logger      *slog.Logger
	brokers     []string
	pollEvery   time.Duration
	batchSize   int
	retainFor   time.Duration
	lastCleanup time.Time
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// RetainFor keeps published rows this long before purging. Zero keeps them forever.
	RetainFor time.Duration
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   brokers,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		retainFor: cfg.RetainFor,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := kafkax.NewWriter(p.brokers)
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx, writer); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
			p.maybePurge(ctx)
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer *kafka.Writer) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, toKafka(ctx, r))
		ids = append(ids, r.ID)
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}

	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Publisher) maybePurge(ctx context.Context) {
	if p.retainFor <= 0 || time.Since(p.lastCleanup) < time.Hour {
		return
	}
	p.lastCleanup = time.Now()
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		p.logger.Warn("outbox purge skipped", "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()
	n, err := p.repo.PurgePublished(ctx, tx, time.Now().Add(-p.retainFor))
	if err != nil {
		p.logger.Warn("outbox purge failed", "err", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		p.logger.Warn("outbox purge commit failed", "err", err)
		return
	}
	if n > 0 {
		p.logger.Info("outbox purged", "rows", n)
	}
}

// toKafka restores the trace context captured at insert time before building the message.
func toKafka(ctx context.Context, r Record) kafka.Message {
	msgCtx := r.Trace.Resume(ctx)
	return dispatch.ToKafka(msgCtx, r.EventID, dispatch.Message{
		Topic:         r.EventType,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		Payload:       r.Payload,
	})
}
