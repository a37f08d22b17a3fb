// Package booking owns reservations: overlap detection, resource allocation and the
// booking lifecycle. Every mutating call runs in one store transaction that takes
// per-(scope, date) locks before it re-checks for overlaps and writes.
package booking

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultReminderOffsets are sent before a confirmed booking starts, in this order.
var DefaultReminderOffsets = []time.Duration{24 * time.Hour, time.Hour}

type Config struct {
	ReminderOffsets []time.Duration
	SlotStep        time.Duration
	Now             func() time.Time
}

// FreedSlot describes capacity released by a cancellation, no-show or reschedule.
type FreedSlot struct {
	BusinessID string
	ServiceID  string
	ResourceID string
	Start      time.Time
	End        time.Time
}

// SlotFreedHandler is told about freed capacity after the releasing transaction commits.
type SlotFreedHandler interface {
	NotifyForFreedSlot(ctx context.Context, slot FreedSlot) error
}

type Engine struct {
	store      store.Store
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
	offsets    []time.Duration
	step       time.Duration
	now        func() time.Time
	freed      SlotFreedHandler
}

func NewEngine(st store.Store, d dispatch.Dispatcher, logger *slog.Logger, cfg Config) *Engine {
	if len(cfg.ReminderOffsets) == 0 {
		cfg.ReminderOffsets = DefaultReminderOffsets
	}
	if cfg.SlotStep <= 0 {
		cfg.SlotStep = availability.DefaultStep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:      st,
		dispatcher: d,
		logger:     logger,
		tracer:     otelx.Tracer("scheduling-service/booking"),
		offsets:    append([]time.Duration(nil), cfg.ReminderOffsets...),
		step:       cfg.SlotStep,
		now:        cfg.Now,
	}
}

// OnSlotFreed registers the waitlist hook.
func (e *Engine) OnSlotFreed(h SlotFreedHandler) {
	e.freed = h
}

func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// Dispatch hands committed side effects to the dispatcher. Failures are logged and
// recorded on the span; committed state is never rolled back.
func (e *Engine) Dispatch(ctx context.Context, msgs []dispatch.Message) {
	if len(msgs) == 0 || e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, msgs...); err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("dispatch.failed", true))
		e.logger.ErrorContext(ctx, "dispatch failed", "err", err, "messages", len(msgs), "topic", msgs[0].Topic)
	}
}

func (e *Engine) slotFreed(ctx context.Context, slot *FreedSlot) {
	if slot == nil || e.freed == nil {
		return
	}
	if err := e.freed.NotifyForFreedSlot(ctx, *slot); err != nil {
		e.logger.WarnContext(ctx, "waitlist notify for freed slot failed", "err", err, "business_id", slot.BusinessID)
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Get returns one booking.
func (e *Engine) Get(ctx context.Context, id string) (*model.Booking, error) {
	var out model.Booking
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the append-only change log of a booking, oldest first.
func (e *Engine) History(ctx context.Context, id string) ([]model.BookingHistory, error) {
	var out []model.BookingHistory
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetBooking(ctx, id); err != nil {
			return err
		}
		rows, err := tx.ListHistory(ctx, id)
		out = rows
		return err
	})
	return out, err
}

// List returns bookings matching the filter ordered by start time.
func (e *Engine) List(ctx context.Context, f store.BookingFilter) ([]model.Booking, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var out []model.Booking
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.ListBookings(ctx, f)
		out = rows
		return err
	})
	return out, err
}
