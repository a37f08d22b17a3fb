// Package store defines the transactional persistence contract of the scheduling core.
// Implementations: store/postgres (pgx) and store/memstore (in-process, dev and tests).
package store

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// Store runs fn inside one atomic transaction. fn's error rolls the transaction back and
// is returned unchanged.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is everything the core reads and writes inside a transaction. Lookups of missing
// rows return an apperr NotFound error.
type Tx interface {
	calendar.Source

	// LockKeys serializes transactions on each key until commit or rollback. Callers pass
	// keys in a stable order; implementations lock them in sorted order.
	LockKeys(ctx context.Context, keys ...string) error

	GetBusiness(ctx context.Context, id string) (model.Business, error)
	GetResource(ctx context.Context, id string) (model.Resource, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	GetCustomer(ctx context.Context, id string) (model.Customer, error)
	GetCancellationPolicy(ctx context.Context, id string) (model.CancellationPolicy, error)

	// ServiceResources returns the resources linked to a service in creation order.
	ServiceResources(ctx context.Context, serviceID string) ([]model.Resource, error)
	// PricingRules returns the active rules of a service, highest priority first.
	PricingRules(ctx context.Context, serviceID string) ([]model.PricingRule, error)

	// HoldingBookings returns bookings in scope with a holding status whose interval
	// overlaps [from, to), skipping excludeID.
	HoldingBookings(ctx context.Context, scope Scope, from, to time.Time, excludeID string) ([]model.Booking, error)
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBooking(ctx context.Context, b *model.Booking) error
	AppendHistory(ctx context.Context, rows ...model.BookingHistory) error
	ListHistory(ctx context.Context, bookingID string) ([]model.BookingHistory, error)

	InsertWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id string) (model.WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error
	// OpenWaitlistEntries returns active or notified entries for a customer in a
	// (business, service-or-empty) pair.
	OpenWaitlistEntries(ctx context.Context, businessID, serviceID, customerID string) ([]model.WaitlistEntry, error)
	// ActiveWaitlist returns active entries for a business and service-or-empty.
	ActiveWaitlist(ctx context.Context, businessID, serviceID string) ([]model.WaitlistEntry, error)
	// OverdueWaitlist returns notified entries whose deadline is before now.
	OverdueWaitlist(ctx context.Context, now time.Time, limit int) ([]model.WaitlistEntry, error)
	// ListWaitlist returns entries in queue order, limited after ordering.
	ListWaitlist(ctx context.Context, businessID string, status model.WaitlistStatus, limit int) ([]model.WaitlistEntry, error)
}

// Scope is the set of bookings an overlap check looks at: one resource, or every
// resource-less booking of a service.
type Scope struct {
	ResourceID string
	ServiceID  string
}

func ResourceScope(id string) Scope { return Scope{ResourceID: id} }

func ServiceScope(id string) Scope { return Scope{ServiceID: id} }

func (s Scope) String() string {
	if s.ResourceID != "" {
		return "resource:" + s.ResourceID
	}
	return "service:" + s.ServiceID
}

// LockKeys returns one key per UTC date touched by [from, to), in date order.
func (s Scope) LockKeys(from, to time.Time) []string {
	if !to.After(from) {
		to = from.Add(time.Nanosecond)
	}
	prefix := s.String()
	last := to.Add(-time.Nanosecond).UTC()
	day := time.Date(from.UTC().Year(), from.UTC().Month(), from.UTC().Day(), 0, 0, 0, 0, time.UTC)
	var keys []string
	for !day.After(last) {
		keys = append(keys, prefix+":"+day.Format("2006-01-02"))
		day = day.AddDate(0, 0, 1)
	}
	return keys
}

func BookingKey(id string) string { return "booking:" + id }

func WaitlistKey(id string) string { return "waitlist:" + id }

type BookingFilter struct {
	BusinessID string
	ResourceID string
	CustomerID string
	Status     model.BookingStatus
	From       time.Time
	To         time.Time
	Limit      int
}
