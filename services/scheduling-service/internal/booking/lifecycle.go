package booking

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

type TransitionInput struct {
	BookingID string
	To        model.BookingStatus
	Actor     string
	Reason    string
}

// Transition moves a booking along the lifecycle table. Moving into a holding status
// re-checks the booking's interval. Cancelling a cancelled booking returns it unchanged.
func (e *Engine) Transition(ctx context.Context, in TransitionInput) (b *model.Booking, err error) {
	ctx, span := e.startSpan(ctx, "booking.Transition",
		attribute.String("booking_id", in.BookingID),
		attribute.String("to", string(in.To)),
	)
	defer func() { endSpan(span, err) }()

	if !in.To.Valid() {
		return nil, apperr.BadRequest("unknown status %q", in.To)
	}

	var (
		msgs  []dispatch.Message
		freed *FreedSlot
	)
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockKeys(ctx, store.BookingKey(in.BookingID)); err != nil {
			return err
		}
		cur, err := tx.GetBooking(ctx, in.BookingID)
		if err != nil {
			return err
		}
		if cur.Status == model.StatusCancelled && in.To == model.StatusCancelled {
			b = &cur
			return nil
		}
		if !CanTransition(cur.Status, in.To) {
			return apperr.BadRequest("invalid transition from %s to %s", cur.Status, in.To)
		}

		if in.To.Holding() {
			svc, err := bookingService(ctx, tx, cur)
			if err != nil {
				return err
			}
			candidate := availability.Interval{Start: cur.Start, End: cur.End}
			if err := reserve(ctx, tx, scopeOf(cur), candidate, cur.ID, buffersOf(svc)); err != nil {
				return err
			}
		}

		now := e.Now()
		old := cur.Status
		cur.Status = in.To
		if in.To == model.StatusCancelled {
			cur.CancelledAt = &now
			cur.CancelReason = in.Reason
		}
		if err := tx.UpdateBooking(ctx, &cur); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, model.BookingHistory{
			BookingID: cur.ID,
			Field:     "status",
			OldValue:  string(old),
			NewValue:  string(in.To),
			Actor:     in.Actor,
			Reason:    in.Reason,
		}); err != nil {
			return err
		}

		var m messages
		m.add(dispatch.TopicBookingStatusChanged, cur, statusChangedPayload{
			bookingPayload: payloadOf(cur),
			OldStatus:      string(old),
			Actor:          in.Actor,
			Reason:         in.Reason,
		})
		switch in.To {
		case model.StatusConfirmed:
			m.confirmed(cur, e.offsets, now)
		case model.StatusCancelled:
			m.add(dispatch.TopicBookingCancelled, cur, statusChangedPayload{
				bookingPayload: payloadOf(cur),
				OldStatus:      string(old),
				Actor:          in.Actor,
				Reason:         in.Reason,
			})
		}
		if len(m.errs) > 0 {
			e.logger.ErrorContext(ctx, "failed to build booking events", "err", errors.Join(m.errs...), "booking_id", cur.ID)
		}
		if old.Holding() && (in.To == model.StatusCancelled || in.To == model.StatusNoShow) {
			freed = freedSlotOf(cur)
		}
		msgs = m.out
		b = &cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.Dispatch(ctx, msgs)
	e.slotFreed(ctx, freed)
	return b, nil
}

func (e *Engine) Confirm(ctx context.Context, id, actor string) (*model.Booking, error) {
	return e.Transition(ctx, TransitionInput{BookingID: id, To: model.StatusConfirmed, Actor: actor})
}

func (e *Engine) Cancel(ctx context.Context, id, actor, reason string) (*model.Booking, error) {
	return e.Transition(ctx, TransitionInput{BookingID: id, To: model.StatusCancelled, Actor: actor, Reason: reason})
}

func (e *Engine) Complete(ctx context.Context, id, actor string) (*model.Booking, error) {
	return e.Transition(ctx, TransitionInput{BookingID: id, To: model.StatusCompleted, Actor: actor})
}

func (e *Engine) MarkNoShow(ctx context.Context, id, actor string) (*model.Booking, error) {
	return e.Transition(ctx, TransitionInput{BookingID: id, To: model.StatusNoShow, Actor: actor})
}

type RescheduleInput struct {
	BookingID string
	Start     time.Time
	// End defaults to Start plus the booking's current length.
	End time.Time
	// ResourceID moves the booking to another resource when set.
	ResourceID string
	Actor      string
	Reason     string
}

// Reschedule changes the time and/or resource of a holding booking, writing one history
// row per changed field.
func (e *Engine) Reschedule(ctx context.Context, in RescheduleInput) (b *model.Booking, err error) {
	ctx, span := e.startSpan(ctx, "booking.Reschedule", attribute.String("booking_id", in.BookingID))
	defer func() { endSpan(span, err) }()

	var (
		msgs  []dispatch.Message
		freed *FreedSlot
	)
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockKeys(ctx, store.BookingKey(in.BookingID)); err != nil {
			return err
		}
		cur, err := tx.GetBooking(ctx, in.BookingID)
		if err != nil {
			return err
		}
		if !cur.Status.Holding() {
			return apperr.BadRequest("booking in status %s cannot be rescheduled", cur.Status)
		}

		start := in.Start
		if start.IsZero() {
			start = cur.Start
		}
		end := in.End
		if end.IsZero() {
			end = start.Add(cur.End.Sub(cur.Start))
		}
		if !start.Before(end) {
			return apperr.BadRequest("start must be before end")
		}
		now := e.Now()
		if start.Before(now) {
			return apperr.BadRequest("start is in the past")
		}

		resourceID := cur.ResourceID
		svc, err := bookingService(ctx, tx, cur)
		if err != nil {
			return err
		}
		var res *model.Resource
		if in.ResourceID != "" && in.ResourceID != cur.ResourceID {
			var linked []model.Resource
			if svc != nil {
				if linked, err = tx.ServiceResources(ctx, svc.ID); err != nil {
					return err
				}
			}
			if res, err = e.validateResource(ctx, tx, cur.BusinessID, in.ResourceID, linked); err != nil {
				return err
			}
			resourceID = in.ResourceID
		} else if resourceID != "" {
			r, err := tx.GetResource(ctx, resourceID)
			if err != nil {
				return err
			}
			res = &r
		}

		start, end = start.UTC(), end.UTC()
		if start.Equal(cur.Start) && end.Equal(cur.End) && resourceID == cur.ResourceID {
			b = &cur
			return nil
		}

		next := cur
		next.Start, next.End, next.ResourceID = start, end, resourceID
		candidate := availability.Interval{Start: start, End: end}
		if res != nil {
			biz, err := tx.GetBusiness(ctx, cur.BusinessID)
			if err != nil {
				return err
			}
			err = reserveResource(ctx, tx, biz, *res, candidate, cur.ID, buffersOf(svc))
			if err != nil {
				return err
			}
		} else if err := reserve(ctx, tx, scopeOf(next), candidate, cur.ID, buffersOf(svc)); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, &next); err != nil {
			return err
		}

		var history []model.BookingHistory
		record := func(field, oldV, newV string) {
			if oldV == newV {
				return
			}
			history = append(history, model.BookingHistory{
				BookingID: cur.ID, Field: field, OldValue: oldV, NewValue: newV,
				Actor: in.Actor, Reason: in.Reason,
			})
		}
		record("start_time", cur.Start.Format(time.RFC3339), next.Start.Format(time.RFC3339))
		record("end_time", cur.End.Format(time.RFC3339), next.End.Format(time.RFC3339))
		record("resource_id", cur.ResourceID, next.ResourceID)
		if err := tx.AppendHistory(ctx, history...); err != nil {
			return err
		}

		var m messages
		m.add(dispatch.TopicBookingRescheduled, next, rescheduledPayload{
			bookingPayload: payloadOf(next),
			OldStartTime:   cur.Start.Format(time.RFC3339),
			OldEndTime:     cur.End.Format(time.RFC3339),
			OldResourceID:  cur.ResourceID,
		})
		if next.Status == model.StatusConfirmed {
			m.reminders(next, e.offsets, now)
		}
		if len(m.errs) > 0 {
			e.logger.ErrorContext(ctx, "failed to build booking events", "err", errors.Join(m.errs...), "booking_id", cur.ID)
		}
		msgs = m.out
		freed = freedSlotOf(cur)
		b = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.Dispatch(ctx, msgs)
	e.slotFreed(ctx, freed)
	return b, nil
}

func bookingService(ctx context.Context, tx store.Tx, b model.Booking) (*model.Service, error) {
	if b.ServiceID == "" {
		return nil, nil
	}
	svc, err := tx.GetService(ctx, b.ServiceID)
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func scopeOf(b model.Booking) store.Scope {
	if b.ResourceID != "" {
		return store.ResourceScope(b.ResourceID)
	}
	return store.ServiceScope(b.ServiceID)
}

func freedSlotOf(b model.Booking) *FreedSlot {
	return &FreedSlot{
		BusinessID: b.BusinessID,
		ServiceID:  b.ServiceID,
		ResourceID: b.ResourceID,
		Start:      b.Start,
		End:        b.End,
	}
}
