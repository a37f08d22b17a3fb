package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
)

// bufferHorizon is the longest buffer honoured. Longer service buffers are clamped so a
// bounded range query still finds every booking whose padding can reach a candidate.
const bufferHorizon = 24 * time.Hour

// Buffers pad a booking before and after its interval. They belong to the booking's
// service and are reserved along with it.
type Buffers struct {
	Before time.Duration
	After  time.Duration
}

func buffersOf(svc *model.Service) Buffers {
	if svc == nil {
		return Buffers{}
	}
	return Buffers{Before: clampBuffer(svc.BufferBefore), After: clampBuffer(svc.BufferAfter)}
}

func clampBuffer(d time.Duration) time.Duration {
	return min(max(d, 0), bufferHorizon)
}

// serviceBuffers loads and memoizes buffers per service id within one transaction.
type serviceBuffers struct {
	tx   store.Tx
	byID map[string]Buffers
}

func newServiceBuffers(tx store.Tx) *serviceBuffers {
	return &serviceBuffers{tx: tx, byID: map[string]Buffers{}}
}

// reserved is b's interval widened by its own service's buffers. Bookings without a
// service, or whose service is gone, reserve only their interval.
func (s *serviceBuffers) reserved(ctx context.Context, b model.Booking) (availability.Interval, error) {
	in := availability.Interval{Start: b.Start, End: b.End}
	if b.ServiceID == "" {
		return in, nil
	}
	buf, ok := s.byID[b.ServiceID]
	if !ok {
		svc, err := s.tx.GetService(ctx, b.ServiceID)
		switch {
		case apperr.IsNotFound(err):
		case err != nil:
			return availability.Interval{}, err
		default:
			buf = buffersOf(&svc)
		}
		s.byID[b.ServiceID] = buf
	}
	return availability.Expand(in, buf.Before, buf.After), nil
}

// busy lists the reserved intervals of holding bookings in scope that can reach [from, to).
func (s *serviceBuffers) busy(ctx context.Context, scope store.Scope, from, to time.Time, excludeID string) ([]availability.Interval, error) {
	existing, err := s.tx.HoldingBookings(ctx, scope, from.Add(-bufferHorizon), to.Add(bufferHorizon), excludeID)
	if err != nil {
		return nil, err
	}
	out := make([]availability.Interval, 0, len(existing))
	for _, b := range existing {
		r, err := s.reserved(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// lockScope serializes writers on every UTC date the candidate's own reservation
// touches. Two reservations that overlap always share one of those dates.
func lockScope(ctx context.Context, tx store.Tx, scope store.Scope, candidate availability.Interval, own Buffers) error {
	r := availability.Expand(candidate, own.Before, own.After)
	return tx.LockKeys(ctx, scope.LockKeys(r.Start, r.End)...)
}

// checkConflict reports whether candidate is free in scope: it must not overlap any
// holding booking widened by that booking's buffers. The caller must hold the scope lock.
func checkConflict(ctx context.Context, bufs *serviceBuffers, scope store.Scope, candidate availability.Interval, excludeID string) (bool, error) {
	busy, err := bufs.busy(ctx, scope, candidate.Start, candidate.End, excludeID)
	if err != nil {
		return false, err
	}
	return !availability.OverlapsAny(candidate, busy), nil
}

// reserve locks scope and fails with Conflict when candidate is taken.
func reserve(ctx context.Context, tx store.Tx, scope store.Scope, candidate availability.Interval, excludeID string, own Buffers) error {
	if err := lockScope(ctx, tx, scope, candidate, own); err != nil {
		return err
	}
	free, err := checkConflict(ctx, newServiceBuffers(tx), scope, candidate, excludeID)
	if err != nil {
		return err
	}
	if !free {
		return apperr.Conflict("time slot unavailable")
	}
	return nil
}

// worksDuring reports whether res is on duty for the whole candidate. Only staff have
// rosters; other resources are always available to book.
func worksDuring(ctx context.Context, tx store.Tx, biz model.Business, res model.Resource, candidate availability.Interval) (bool, error) {
	if res.Type != model.ResourceStaff {
		return true, nil
	}
	loc := biz.Location()
	date := calendar.Date(candidate.Start.In(loc))
	hours, err := calendar.ScheduleFor(tx, biz.ID, &res).ResolveHours(ctx, date)
	if err != nil {
		return false, err
	}
	open, close, ok := hours.Window(date, loc)
	return ok && !candidate.Start.Before(open) && !candidate.End.After(close), nil
}

// allocate returns the first bookable linked resource, in creation order, that is on
// duty and free for candidate. Locks on every inspected resource stay held until the
// transaction ends.
func allocate(ctx context.Context, tx store.Tx, biz model.Business, linked []model.Resource, candidate availability.Interval, own Buffers) (*model.Resource, error) {
	bufs := newServiceBuffers(tx)
	for i := range linked {
		res := linked[i]
		if !res.Bookable() {
			continue
		}
		working, err := worksDuring(ctx, tx, biz, res, candidate)
		if err != nil {
			return nil, err
		}
		if !working {
			continue
		}
		scope := store.ResourceScope(res.ID)
		if err := lockScope(ctx, tx, scope, candidate, own); err != nil {
			return nil, err
		}
		free, err := checkConflict(ctx, bufs, scope, candidate, "")
		if err != nil {
			return nil, err
		}
		if free {
			return &res, nil
		}
	}
	return nil, apperr.Conflict("no available resource")
}

// reserveResource is reserve for a named resource: staff must also be on duty.
func reserveResource(ctx context.Context, tx store.Tx, biz model.Business, res model.Resource, candidate availability.Interval, excludeID string, own Buffers) error {
	working, err := worksDuring(ctx, tx, biz, res, candidate)
	if err != nil {
		return err
	}
	if !working {
		return apperr.Conflict("staff member is not working at that time")
	}
	return reserve(ctx, tx, store.ResourceScope(res.ID), candidate, excludeID, own)
}

// IsSlotFree locks and checks a scope inside the caller's transaction. A service with
// linked resources is free when any of them is.
func (e *Engine) IsSlotFree(ctx context.Context, tx store.Tx, slot FreedSlot) (bool, error) {
	candidate := availability.Interval{Start: slot.Start, End: slot.End}
	biz, err := tx.GetBusiness(ctx, slot.BusinessID)
	if err != nil {
		return false, err
	}
	var svc *model.Service
	if slot.ServiceID != "" {
		s, err := tx.GetService(ctx, slot.ServiceID)
		if err != nil {
			return false, err
		}
		svc = &s
	}
	own := buffersOf(svc)

	if slot.ResourceID != "" {
		res, err := tx.GetResource(ctx, slot.ResourceID)
		if err != nil {
			return false, err
		}
		err = reserveResource(ctx, tx, biz, res, candidate, "", own)
		if apperr.IsConflict(err) {
			return false, nil
		}
		return err == nil, err
	}
	if svc == nil {
		return false, apperr.BadRequest("service_id or resource_id required")
	}
	linked, err := tx.ServiceResources(ctx, svc.ID)
	if err != nil {
		return false, err
	}
	if len(linked) == 0 {
		err = reserve(ctx, tx, store.ServiceScope(svc.ID), candidate, "", own)
	} else {
		_, err = allocate(ctx, tx, biz, linked, candidate, own)
	}
	if apperr.IsConflict(err) {
		return false, nil
	}
	return err == nil, err
}
