// Package postgres is the pgx-backed store.Store. Scope locks are transaction-scoped
// advisory locks; the bookings exclusion constraint is the backstop against overlaps.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
)

type Store struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return db.ReadyCheck(s.pool)(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
	return translate(err, "row")
}

type pgTx struct {
	tx pgx.Tx
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) LockKeys(ctx context.Context, keys ...string) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	var prev string
	for i, k := range sorted {
		if i > 0 && k == prev {
			continue
		}
		prev = k
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return fmt.Errorf("lock %s: %w", k, err)
		}
	}
	return nil
}

// translate maps Postgres failures onto the apperr taxonomy. Errors that already carry
// a kind pass through.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if db.IsNotFound(err) {
		return apperr.NotFound("%s not found", what)
	}
	switch db.ErrorCode(err) {
	case db.CodeExclusionViolation:
		return apperr.Wrap(apperr.KindConflict, err, "time slot unavailable")
	case db.CodeUniqueViolation:
		return apperr.Wrap(apperr.KindConflict, err, what+" already exists")
	case db.CodeCheckViolation:
		return apperr.Wrap(apperr.KindBadRequest, err, "invalid "+what)
	case db.CodeForeignKeyViolation:
		return apperr.Wrap(apperr.KindBadRequest, err, what+" references a missing record")
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
