package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

func (t *pgTx) BusinessHours(ctx context.Context, businessID string) ([]model.WeeklyHours, error) {
	return t.weekly(ctx, `
		SELECT weekday, closed, open_minute, close_minute
		FROM business_hours
		WHERE business_id = $1
		ORDER BY weekday
	`, businessID)
}

func (t *pgTx) StaffHours(ctx context.Context, resourceID string) ([]model.WeeklyHours, error) {
	return t.weekly(ctx, `
		SELECT weekday, closed, open_minute, close_minute
		FROM staff_hours
		WHERE resource_id = $1
		ORDER BY weekday
	`, resourceID)
}

func (t *pgTx) weekly(ctx context.Context, query, id string) ([]model.WeeklyHours, error) {
	rows, err := t.tx.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklyHours
	for rows.Next() {
		var h model.WeeklyHours
		if err := rows.Scan(&h.Weekday, &h.Closed, &h.Open, &h.Close); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *pgTx) BusinessHolidays(ctx context.Context, businessID string, from, to time.Time) ([]model.DateOverride, error) {
	return t.overrides(ctx, `
		SELECT day, working, open_minute, close_minute, reason
		FROM business_holidays
		WHERE business_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`, businessID, from, to)
}

func (t *pgTx) StaffExceptions(ctx context.Context, resourceID string, from, to time.Time) ([]model.DateOverride, error) {
	return t.overrides(ctx, `
		SELECT day, working, open_minute, close_minute, reason
		FROM staff_exceptions
		WHERE resource_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`, resourceID, from, to)
}

func (t *pgTx) overrides(ctx context.Context, query, id string, from, to time.Time) ([]model.DateOverride, error) {
	rows, err := t.tx.Query(ctx, query, id, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateOverride
	for rows.Next() {
		var o model.DateOverride
		if err := rows.Scan(&o.Date, &o.Working, &o.Open, &o.Close, &o.Reason); err != nil {
			return nil, err
		}
		o.Date = o.Date.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *pgTx) GetBusiness(ctx context.Context, id string) (model.Business, error) {
	var b model.Business
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, timezone, status, created_at
		FROM businesses
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Timezone, &b.Status, &b.CreatedAt)
	if err != nil {
		return model.Business{}, translate(err, "business")
	}
	return b, nil
}

const resourceColumns = `r.id, r.business_id, r.name, r.type, r.capacity, r.active, r.created_at, r.deleted_at`

func scanResource(row pgx.Row) (model.Resource, error) {
	var r model.Resource
	err := row.Scan(&r.ID, &r.BusinessID, &r.Name, &r.Type, &r.Capacity, &r.Active, &r.CreatedAt, &r.DeletedAt)
	return r, err
}

func (t *pgTx) GetResource(ctx context.Context, id string) (model.Resource, error) {
	r, err := scanResource(t.tx.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources r WHERE r.id = $1`, id))
	if err != nil {
		return model.Resource{}, translate(err, "resource")
	}
	return r, nil
}

func (t *pgTx) ServiceResources(ctx context.Context, serviceID string) ([]model.Resource, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+resourceColumns+`
		FROM service_resources sr
		JOIN resources r ON r.id = sr.resource_id
		WHERE sr.service_id = $1
		ORDER BY r.created_at, r.id
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) GetService(ctx context.Context, id string) (model.Service, error) {
	var (
		s                             model.Service
		duration, bufBefore, bufAfter int
		policyID                      *string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes,
			base_price, currency, cancellation_policy_id, active, created_at, deleted_at
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.BusinessID, &s.Name, &duration, &bufBefore, &bufAfter,
		&s.BasePrice, &s.Currency, &policyID, &s.Active, &s.CreatedAt, &s.DeletedAt)
	if err != nil {
		return model.Service{}, translate(err, "service")
	}
	s.Duration = time.Duration(duration) * time.Minute
	s.BufferBefore = time.Duration(bufBefore) * time.Minute
	s.BufferAfter = time.Duration(bufAfter) * time.Minute
	s.CancellationPolicyID = deref(policyID)
	return s, nil
}

func (t *pgTx) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	var c model.Customer
	err := t.tx.QueryRow(ctx, `
		SELECT id, business_id, name, email, phone, created_at, deleted_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.BusinessID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.DeletedAt)
	if err != nil {
		return model.Customer{}, translate(err, "customer")
	}
	return c, nil
}

func (t *pgTx) GetCancellationPolicy(ctx context.Context, id string) (model.CancellationPolicy, error) {
	var p model.CancellationPolicy
	err := t.tx.QueryRow(ctx, `
		SELECT id, business_id, name, free_cancel_hours, refund_percent, fee_fixed
		FROM cancellation_policies
		WHERE id = $1
	`, id).Scan(&p.ID, &p.BusinessID, &p.Name, &p.FreeCancelHours, &p.RefundPercent, &p.FeeFixed)
	if err != nil {
		return model.CancellationPolicy{}, translate(err, "cancellation policy")
	}
	return p, nil
}

func (t *pgTx) PricingRules(ctx context.Context, serviceID string) ([]model.PricingRule, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, service_id, name, days_of_week, time_start, time_end, date_start, date_end,
			modifier_type, modifier, priority, active, created_at
		FROM pricing_rules
		WHERE service_id = $1 AND active
		ORDER BY priority DESC, created_at, id
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PricingRule
	for rows.Next() {
		var (
			r    model.PricingRule
			days []int32
		)
		if err := rows.Scan(&r.ID, &r.ServiceID, &r.Name, &days, &r.TimeStart, &r.TimeEnd, &r.DateStart, &r.DateEnd,
			&r.ModifierType, &r.Modifier, &r.Priority, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		for _, d := range days {
			r.DaysOfWeek = append(r.DaysOfWeek, int(d))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
