package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

type AvailabilityQuery struct {
	BusinessID string
	ServiceID  string
	ResourceID string
	// Date is the civil date in the business's timezone, as midnight UTC.
	Date time.Time
	// Duration overrides the service duration. Required without a service.
	Duration time.Duration
}

type Availability struct {
	Date     time.Time
	Timezone string
	IsClosed bool
	Open     calendar.Clock
	Close    calendar.Clock
	Slots    []Slot
}

type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// CheckAvailability lists every candidate slot of the day with its availability. Slots
// that start before now are reported unavailable. A closed day has no slots.
func (e *Engine) CheckAvailability(ctx context.Context, q AvailabilityQuery) (out *Availability, err error) {
	ctx, span := e.startSpan(ctx, "booking.CheckAvailability",
		attribute.String("business_id", q.BusinessID),
		attribute.String("date", q.Date.Format("2006-01-02")),
	)
	defer func() { endSpan(span, err) }()

	date := calendar.Date(q.Date)
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		biz, err := tx.GetBusiness(ctx, q.BusinessID)
		if err != nil {
			return err
		}

		var svc *model.Service
		if q.ServiceID != "" {
			s, err := tx.GetService(ctx, q.ServiceID)
			if err != nil {
				return err
			}
			if s.BusinessID != biz.ID || s.DeletedAt != nil {
				return apperr.NotFound("service not found")
			}
			svc = &s
		}
		duration := q.Duration
		if duration <= 0 && svc != nil {
			duration = svc.Duration
		}
		if duration <= 0 {
			return apperr.BadRequest("duration or service_id required")
		}

		var res *model.Resource
		if q.ResourceID != "" {
			r, err := tx.GetResource(ctx, q.ResourceID)
			if err != nil {
				return err
			}
			if r.BusinessID != biz.ID || r.DeletedAt != nil {
				return apperr.NotFound("resource not found")
			}
			res = &r
		}
		if res == nil && svc == nil {
			return apperr.BadRequest("service_id or resource_id required")
		}

		loc := biz.Location()
		targets, err := availabilityTargets(ctx, tx, svc, res)
		if err != nil {
			return err
		}
		out = &Availability{Date: date, Timezone: loc.String(), Slots: []Slot{}}

		// Each target resolves its own hours; the day spans the union of them.
		var (
			first, last time.Time
			windows     = make([]availability.Interval, len(targets))
			open        = make([]bool, len(targets))
		)
		for i, tgt := range targets {
			hours, err := calendar.ScheduleFor(tx, biz.ID, tgt.res).ResolveHours(ctx, date)
			if err != nil {
				return err
			}
			from, to, ok := hours.Window(date, loc)
			if !ok {
				continue
			}
			windows[i], open[i] = availability.Interval{Start: from, End: to}, true
			if first.IsZero() || from.Before(first) {
				first, out.Open = from, hours.Open
			}
			if last.IsZero() || to.After(last) {
				last, out.Close = to, hours.Close
			}
		}
		if first.IsZero() {
			out.IsClosed = true
			return nil
		}

		now := e.Now()
		bufs := newServiceBuffers(tx)
		free := map[int64]bool{}
		for i, tgt := range targets {
			if !open[i] || !tgt.bookable {
				continue
			}
			busy, err := bufs.busy(ctx, tgt.scope, windows[i].Start.UTC(), windows[i].End.UTC(), "")
			if err != nil {
				return err
			}
			for _, start := range availability.AvailableSlots(alignUp(windows[i].Start, first, e.step), windows[i].End, duration, e.step, busy, now) {
				free[start.Unix()] = true
			}
		}
		for slot := range availability.Slots(first, last, duration, e.step) {
			out.Slots = append(out.Slots, Slot{Start: slot.Start, End: slot.End, Available: free[slot.Start.Unix()]})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// alignUp returns the first point of the grid anchored at origin with the given step
// that is not before t.
func alignUp(t, origin time.Time, step time.Duration) time.Time {
	if step <= 0 {
		step = availability.DefaultStep
	}
	off := t.Sub(origin)
	if off <= 0 {
		return origin
	}
	n := (off + step - 1) / step
	return origin.Add(n * step)
}

type availabilityTarget struct {
	scope    store.Scope
	res      *model.Resource
	bookable bool
}

// availabilityTargets lists where a slot may be booked: the named resource, the
// service's bookable linked resources, or the service itself when it has no links.
func availabilityTargets(ctx context.Context, tx store.Tx, svc *model.Service, res *model.Resource) ([]availabilityTarget, error) {
	if res != nil {
		return []availabilityTarget{{scope: store.ResourceScope(res.ID), res: res, bookable: res.Bookable()}}, nil
	}
	linked, err := tx.ServiceResources(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	if len(linked) == 0 {
		return []availabilityTarget{{scope: store.ServiceScope(svc.ID), bookable: true}}, nil
	}
	var out []availabilityTarget
	for i := range linked {
		r := linked[i]
		if r.Bookable() {
			out = append(out, availabilityTarget{scope: store.ResourceScope(r.ID), res: &r, bookable: true})
		}
	}
	return out, nil
}
