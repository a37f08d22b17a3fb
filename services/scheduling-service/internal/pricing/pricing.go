// Package pricing evaluates time-dependent modifiers on a service's base price.
package pricing

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

type Quote struct {
	BasePrice     int64
	FinalPrice    int64
	TotalModifier int64
	AppliedRules  []Applied
}

type Applied struct {
	RuleID   string
	Name     string
	Type     model.ModifierType
	Modifier int64
}

// Snapshot converts the quote into the immutable form stored on a booking.
func (q Quote) Snapshot(currency string) *model.PriceSnapshot {
	snap := &model.PriceSnapshot{
		BasePrice:     q.BasePrice,
		FinalPrice:    q.FinalPrice,
		TotalModifier: q.TotalModifier,
		Currency:      currency,
	}
	for _, a := range q.AppliedRules {
		snap.AppliedRules = append(snap.AppliedRules, model.AppliedPrice{
			RuleID:   a.RuleID,
			Name:     a.Name,
			Type:     string(a.Type),
			Modifier: a.Modifier,
		})
	}
	return snap
}

// Evaluate applies every active rule that matches at, in descending priority order.
// Priority orders the applied list only; all matching rules accumulate. The result is
// clamped at zero. at should already be in the business's local time.
func Evaluate(rules []model.PricingRule, base int64, at time.Time) Quote {
	ordered := make([]model.PricingRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	q := Quote{BasePrice: base}
	for _, r := range ordered {
		if !Applies(r, at) {
			continue
		}
		mod := contribution(r, base)
		q.TotalModifier += mod
		q.AppliedRules = append(q.AppliedRules, Applied{
			RuleID:   r.ID,
			Name:     r.Name,
			Type:     r.ModifierType,
			Modifier: mod,
		})
	}
	q.FinalPrice = max(base+q.TotalModifier, 0)
	return q
}

// Applies reports whether every condition of r holds at the given local time.
func Applies(r model.PricingRule, at time.Time) bool {
	if len(r.DaysOfWeek) > 0 {
		found := false
		wd := int(at.Weekday())
		for _, d := range r.DaysOfWeek {
			if d == wd {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.TimeStart != nil && r.TimeEnd != nil {
		m := int(calendar.ClockOf(at))
		if m < *r.TimeStart || m >= *r.TimeEnd {
			return false
		}
	}
	date := calendar.Date(at)
	if r.DateStart != nil && date.Before(calendar.Date(*r.DateStart)) {
		return false
	}
	if r.DateEnd != nil && date.After(calendar.Date(*r.DateEnd)) {
		return false
	}
	return true
}

func contribution(r model.PricingRule, base int64) int64 {
	if r.ModifierType == model.ModifierPercentage {
		return floorDiv(base*r.Modifier, 100)
	}
	return r.Modifier
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ValidateRule rejects rules whose conditions can never be evaluated consistently.
func ValidateRule(r model.PricingRule) error {
	switch r.ModifierType {
	case model.ModifierPercentage, model.ModifierFixed:
	default:
		return apperr.BadRequest("invalid modifier type %q", r.ModifierType)
	}
	if r.ModifierType == model.ModifierPercentage && r.Modifier < -100 {
		return apperr.BadRequest("percentage modifier below -100")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return apperr.BadRequest("invalid day of week %d", d)
		}
	}
	if (r.TimeStart == nil) != (r.TimeEnd == nil) {
		return apperr.BadRequest("time window needs both start and end")
	}
	if r.TimeStart != nil {
		start, end := calendar.Clock(*r.TimeStart), calendar.Clock(*r.TimeEnd)
		if !start.Valid() || !end.Valid() || end <= start {
			return apperr.BadRequest("invalid time window %s-%s", start, end)
		}
	}
	if r.DateStart != nil && r.DateEnd != nil && calendar.Date(*r.DateEnd).Before(calendar.Date(*r.DateStart)) {
		return apperr.BadRequest("date range ends before it starts")
	}
	return nil
}
