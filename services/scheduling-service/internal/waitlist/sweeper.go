package waitlist

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs ExpireOverdue on a fixed interval.
type Sweeper struct {
	svc      *Service
	logger   *slog.Logger
	interval time.Duration
}

type SweeperConfig struct {
	Interval time.Duration
}

func NewSweeper(svc *Service, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Sweeper{svc: svc, logger: logger, interval: cfg.Interval}
}

func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires overdue entries once and logs the outcome.
func (w *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := w.svc.ExpireDue(ctx)
	if err != nil {
		w.logger.Error("waitlist sweep failed", "err", err)
		return 0
	}
	if n > 0 {
		w.logger.Info("waitlist entries expired", "count", n)
	}
	return n
}
