package booking

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/pricing"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

type CreateInput struct {
	BusinessID string
	ServiceID  string
	ResourceID string
	CustomerID string
	Start      time.Time
	// End defaults to Start plus the service duration.
	End      time.Time
	Metadata map[string]string
	Notes    string
	Actor    string
}

// Create reserves an interval and returns the new booking. A priced booking starts in
// pending_payment; anything else is confirmed immediately.
func (e *Engine) Create(ctx context.Context, in CreateInput) (b *model.Booking, err error) {
	ctx, span := e.startSpan(ctx, "booking.Create",
		attribute.String("business_id", in.BusinessID),
		attribute.String("service_id", in.ServiceID),
		attribute.String("resource_id", in.ResourceID),
	)
	defer func() { endSpan(span, err) }()

	var msgs []dispatch.Message
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		created, out, err := e.CreateTx(ctx, tx, in)
		b, msgs = created, out
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("booking_id", b.ID), attribute.String("status", string(b.Status)))
	e.Dispatch(ctx, msgs)
	return b, nil
}

// CreateTx runs the creation inside the caller's transaction and returns the side
// effects the caller must dispatch after commit.
func (e *Engine) CreateTx(ctx context.Context, tx store.Tx, in CreateInput) (*model.Booking, []dispatch.Message, error) {
	now := e.Now()

	biz, err := tx.GetBusiness(ctx, in.BusinessID)
	if err != nil {
		return nil, nil, err
	}
	if !biz.Status.Operational() {
		return nil, nil, apperr.BadRequest("business is not accepting bookings")
	}

	var svc *model.Service
	if in.ServiceID != "" {
		s, err := tx.GetService(ctx, in.ServiceID)
		if err != nil {
			return nil, nil, err
		}
		if s.BusinessID != biz.ID || s.DeletedAt != nil {
			return nil, nil, apperr.NotFound("service not found")
		}
		if !s.Active {
			return nil, nil, apperr.BadRequest("service is inactive")
		}
		svc = &s
	}

	end := in.End
	if end.IsZero() {
		if svc == nil || svc.Duration <= 0 {
			return nil, nil, apperr.BadRequest("end time is required")
		}
		end = in.Start.Add(svc.Duration)
	}
	if in.Start.IsZero() || !in.Start.Before(end) {
		return nil, nil, apperr.BadRequest("start must be before end")
	}
	if in.Start.Before(now) {
		return nil, nil, apperr.BadRequest("start is in the past")
	}
	candidate := availability.Interval{Start: in.Start.UTC(), End: end.UTC()}

	if in.CustomerID != "" {
		c, err := tx.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return nil, nil, err
		}
		if c.BusinessID != biz.ID || c.DeletedAt != nil {
			return nil, nil, apperr.NotFound("customer not found")
		}
	}

	var linked []model.Resource
	if svc != nil {
		linked, err = tx.ServiceResources(ctx, svc.ID)
		if err != nil {
			return nil, nil, err
		}
	}

	buf := buffersOf(svc)
	resourceID := in.ResourceID
	switch {
	case resourceID != "":
		res, err := e.validateResource(ctx, tx, biz.ID, resourceID, linked)
		if err != nil {
			return nil, nil, err
		}
		if err := reserveResource(ctx, tx, biz, *res, candidate, "", buf); err != nil {
			return nil, nil, err
		}
	case len(linked) > 0:
		res, err := allocate(ctx, tx, biz, linked, candidate, buf)
		if err != nil {
			return nil, nil, err
		}
		resourceID = res.ID
	case svc != nil:
		if err := reserve(ctx, tx, store.ServiceScope(svc.ID), candidate, "", buf); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, apperr.BadRequest("service_id or resource_id required")
	}

	b := &model.Booking{
		BusinessID: biz.ID,
		ServiceID:  in.ServiceID,
		ResourceID: resourceID,
		CustomerID: in.CustomerID,
		Start:      candidate.Start,
		End:        candidate.End,
		Metadata:   in.Metadata,
		Notes:      in.Notes,
		Status:     model.StatusConfirmed,
	}

	if svc != nil && svc.BasePrice != nil {
		quote, err := e.quote(ctx, tx, *svc, biz, candidate.Start)
		if err != nil {
			return nil, nil, err
		}
		b.PriceSnapshot = quote.Snapshot(svc.Currency)
		if quote.FinalPrice > 0 {
			b.Status = model.StatusPendingPayment
		}
	}
	if svc != nil && svc.CancellationPolicyID != "" {
		p, err := tx.GetCancellationPolicy(ctx, svc.CancellationPolicyID)
		if err != nil {
			return nil, nil, err
		}
		b.PolicySnapshot = &model.PolicySnapshot{
			PolicyID:        p.ID,
			Name:            p.Name,
			FreeCancelHours: p.FreeCancelHours,
			RefundPercent:   p.RefundPercent,
			FeeFixed:        p.FeeFixed,
		}
	}

	if err := tx.InsertBooking(ctx, b); err != nil {
		return nil, nil, err
	}
	if err := tx.AppendHistory(ctx, model.BookingHistory{
		BookingID: b.ID,
		Field:     "status",
		NewValue:  string(b.Status),
		Actor:     in.Actor,
		Reason:    "created",
	}); err != nil {
		return nil, nil, err
	}

	var m messages
	m.add(dispatch.TopicBookingCreated, *b, payloadOf(*b))
	if b.Status == model.StatusConfirmed {
		m.confirmed(*b, e.offsets, now)
	}
	if len(m.errs) > 0 {
		e.logger.ErrorContext(ctx, "failed to build booking events", "err", errors.Join(m.errs...), "booking_id", b.ID)
	}
	return b, m.out, nil
}

func (e *Engine) validateResource(ctx context.Context, tx store.Tx, businessID, resourceID string, linked []model.Resource) (*model.Resource, error) {
	res, err := tx.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.BusinessID != businessID || res.DeletedAt != nil {
		return nil, apperr.NotFound("resource not found")
	}
	if !res.Active {
		return nil, apperr.BadRequest("resource is inactive")
	}
	if len(linked) > 0 && !slices.ContainsFunc(linked, func(r model.Resource) bool { return r.ID == res.ID }) {
		return nil, apperr.BadRequest("resource is not linked to service")
	}
	return &res, nil
}

// quote evaluates the service's pricing rules at the booking's local start time.
// Malformed rules are skipped.
func (e *Engine) quote(ctx context.Context, tx store.Tx, svc model.Service, biz model.Business, start time.Time) (pricing.Quote, error) {
	rules, err := tx.PricingRules(ctx, svc.ID)
	if err != nil {
		return pricing.Quote{}, err
	}
	valid := make([]model.PricingRule, 0, len(rules))
	for _, r := range rules {
		if err := pricing.ValidateRule(r); err != nil {
			e.logger.WarnContext(ctx, "skipping invalid pricing rule", "rule_id", r.ID, "err", err)
			continue
		}
		valid = append(valid, r)
	}
	var base int64
	if svc.BasePrice != nil {
		base = *svc.BasePrice
	}
	return pricing.Evaluate(valid, base, start.In(biz.Location())), nil
}

// Quote previews the price of a service at a start time without reserving anything.
func (e *Engine) Quote(ctx context.Context, serviceID string, start time.Time) (pricing.Quote, string, error) {
	var (
		q        pricing.Quote
		currency string
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		svc, err := tx.GetService(ctx, serviceID)
		if err != nil {
			return err
		}
		if svc.DeletedAt != nil {
			return apperr.NotFound("service not found")
		}
		if svc.BasePrice == nil {
			return apperr.BadRequest("service has no price")
		}
		biz, err := tx.GetBusiness(ctx, svc.BusinessID)
		if err != nil {
			return err
		}
		currency = svc.Currency
		q, err = e.quote(ctx, tx, svc, biz, start)
		return err
	})
	return q, currency, err
}
