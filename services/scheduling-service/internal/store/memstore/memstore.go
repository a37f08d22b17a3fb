// Package memstore is an in-process store.Store. Transactions read committed data plus
// their own staged writes and apply the writes atomically on commit. LockKeys gives the
// same per-key serialization the Postgres store gets from advisory locks.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/pricing"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	locks *keyLocks
	now   func() time.Time

	businesses      map[string]model.Business
	businessHours   map[string][]model.WeeklyHours
	holidays        map[string][]model.DateOverride
	resources       map[string]model.Resource
	resourceOrder   map[string]int64
	staffHours      map[string][]model.WeeklyHours
	staffExceptions map[string][]model.DateOverride
	services        map[string]model.Service
	links           map[string][]string
	customers       map[string]model.Customer
	policies        map[string]model.CancellationPolicy
	rules           map[string][]model.PricingRule

	bookings  map[string]model.Booking
	history   []model.BookingHistory
	waitlist  map[string]model.WaitlistEntry
	seq       int64
	historyID int64
}

func New() *Store {
	return &Store{
		locks:           newKeyLocks(),
		now:             time.Now,
		businesses:      make(map[string]model.Business),
		businessHours:   make(map[string][]model.WeeklyHours),
		holidays:        make(map[string][]model.DateOverride),
		resources:       make(map[string]model.Resource),
		resourceOrder:   make(map[string]int64),
		staffHours:      make(map[string][]model.WeeklyHours),
		staffExceptions: make(map[string][]model.DateOverride),
		services:        make(map[string]model.Service),
		links:           make(map[string][]string),
		customers:       make(map[string]model.Customer),
		policies:        make(map[string]model.CancellationPolicy),
		rules:           make(map[string][]model.PricingRule),
		bookings:        make(map[string]model.Booking),
		waitlist:        make(map[string]model.WaitlistEntry),
	}
}

// SetClock overrides the timestamp source used for created/updated fields.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx := &memTx{
		s:        s,
		held:     &heldLocks{locks: s.locks, held: make(map[string]chan struct{})},
		bookings: make(map[string]model.Booking),
		waitlist: make(map[string]model.WaitlistEntry),
	}
	defer tx.held.releaseAll()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// Seeding. Catalog data is owned by other services; these setters stand in for them.

func (s *Store) PutBusiness(b model.Business) model.Business {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	s.businesses[b.ID] = b
	return b
}

func (s *Store) SetBusinessHours(businessID string, rows ...model.WeeklyHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businessHours[businessID] = append([]model.WeeklyHours(nil), rows...)
}

func (s *Store) AddHoliday(businessID string, o model.DateOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holidays[businessID] = append(s.holidays[businessID], o)
}

func (s *Store) PutResource(r model.Resource) model.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if r.Capacity == 0 {
		r.Capacity = 1
	}
	if _, ok := s.resourceOrder[r.ID]; !ok {
		s.seq++
		s.resourceOrder[r.ID] = s.seq
	}
	s.resources[r.ID] = r
	return r
}

func (s *Store) SetStaffHours(resourceID string, rows ...model.WeeklyHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staffHours[resourceID] = append([]model.WeeklyHours(nil), rows...)
}

func (s *Store) AddStaffException(resourceID string, o model.DateOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staffExceptions[resourceID] = append(s.staffExceptions[resourceID], o)
}

func (s *Store) PutService(svc model.Service) model.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = s.now()
	}
	s.services[svc.ID] = svc
	return svc
}

func (s *Store) LinkResources(serviceID string, resourceIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[serviceID] = append(s.links[serviceID], resourceIDs...)
}

func (s *Store) PutCustomer(c model.Customer) model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.customers[c.ID] = c
	return c
}

func (s *Store) PutPolicy(p model.CancellationPolicy) model.CancellationPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.policies[p.ID] = p
	return p
}

// PutPricingRule validates and stores a rule.
func (s *Store) PutPricingRule(r model.PricingRule) (model.PricingRule, error) {
	if err := pricing.ValidateRule(r); err != nil {
		return model.PricingRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.rules[r.ServiceID] = append(s.rules[r.ServiceID], r)
	return r, nil
}

// BookingCount returns the number of committed bookings.
func (s *Store) BookingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookings)
}

type memTx struct {
	s        *Store
	held     *heldLocks
	bookings map[string]model.Booking
	waitlist map[string]model.WaitlistEntry
	history  []model.BookingHistory
}

func (t *memTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	// Partial unique index on open waitlist entries.
	for _, e := range t.waitlist {
		if !e.Status.Open() {
			continue
		}
		for id, other := range t.s.waitlist {
			if id == e.ID {
				continue
			}
			if staged, ok := t.waitlist[id]; ok {
				other = staged
			}
			if other.Status.Open() && sameWaitlistKey(e, other) {
				return apperr.Conflict("customer already on the waitlist")
			}
		}
	}

	for id, b := range t.bookings {
		t.s.bookings[id] = b
	}
	for id, e := range t.waitlist {
		t.s.waitlist[id] = e
	}
	for _, h := range t.history {
		t.s.historyID++
		h.ID = t.s.historyID
		t.s.history = append(t.s.history, h)
	}
	return nil
}

func sameWaitlistKey(a, b model.WaitlistEntry) bool {
	return a.BusinessID == b.BusinessID && a.ServiceID == b.ServiceID && a.CustomerID == b.CustomerID
}

func (t *memTx) LockKeys(ctx context.Context, keys ...string) error {
	return t.held.lock(ctx, keys)
}

func (t *memTx) now() time.Time {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.now().UTC()
}

func (t *memTx) BusinessHours(_ context.Context, businessID string) ([]model.WeeklyHours, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return append([]model.WeeklyHours(nil), t.s.businessHours[businessID]...), nil
}

func (t *memTx) BusinessHolidays(_ context.Context, businessID string, from, to time.Time) ([]model.DateOverride, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return overridesBetween(t.s.holidays[businessID], from, to), nil
}

func (t *memTx) StaffHours(_ context.Context, resourceID string) ([]model.WeeklyHours, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return append([]model.WeeklyHours(nil), t.s.staffHours[resourceID]...), nil
}

func (t *memTx) StaffExceptions(_ context.Context, resourceID string, from, to time.Time) ([]model.DateOverride, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return overridesBetween(t.s.staffExceptions[resourceID], from, to), nil
}

func overridesBetween(rows []model.DateOverride, from, to time.Time) []model.DateOverride {
	var out []model.DateOverride
	for _, o := range rows {
		if o.Date.Before(from) || o.Date.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (t *memTx) GetBusiness(_ context.Context, id string) (model.Business, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.businesses[id]
	if !ok {
		return model.Business{}, apperr.NotFound("business not found")
	}
	return b, nil
}

func (t *memTx) GetResource(_ context.Context, id string) (model.Resource, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	r, ok := t.s.resources[id]
	if !ok {
		return model.Resource{}, apperr.NotFound("resource not found")
	}
	return r, nil
}

func (t *memTx) GetService(_ context.Context, id string) (model.Service, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	svc, ok := t.s.services[id]
	if !ok {
		return model.Service{}, apperr.NotFound("service not found")
	}
	return svc, nil
}

func (t *memTx) GetCustomer(_ context.Context, id string) (model.Customer, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	c, ok := t.s.customers[id]
	if !ok {
		return model.Customer{}, apperr.NotFound("customer not found")
	}
	return c, nil
}

func (t *memTx) GetCancellationPolicy(_ context.Context, id string) (model.CancellationPolicy, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.policies[id]
	if !ok {
		return model.CancellationPolicy{}, apperr.NotFound("cancellation policy not found")
	}
	return p, nil
}

func (t *memTx) ServiceResources(_ context.Context, serviceID string) ([]model.Resource, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []model.Resource
	for _, id := range t.s.links[serviceID] {
		if r, ok := t.s.resources[id]; ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return t.s.resourceOrder[out[i].ID] < t.s.resourceOrder[out[j].ID]
	})
	return out, nil
}

func (t *memTx) PricingRules(_ context.Context, serviceID string) ([]model.PricingRule, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []model.PricingRule
	for _, r := range t.s.rules[serviceID] {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// mergedBookings returns committed bookings overlaid with this transaction's writes.
func (t *memTx) mergedBookings() []model.Booking {
	t.s.mu.RLock()
	out := make([]model.Booking, 0, len(t.s.bookings)+len(t.bookings))
	for id, b := range t.s.bookings {
		if _, staged := t.bookings[id]; !staged {
			out = append(out, b)
		}
	}
	t.s.mu.RUnlock()
	for _, b := range t.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *memTx) HoldingBookings(_ context.Context, scope store.Scope, from, to time.Time, excludeID string) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.mergedBookings() {
		if b.ID == excludeID || !b.Status.Holding() {
			continue
		}
		if scope.ResourceID != "" && b.ResourceID != scope.ResourceID {
			continue
		}
		if scope.ResourceID == "" && (b.ServiceID != scope.ServiceID || b.ResourceID != "") {
			continue
		}
		if b.Start.Before(to) && from.Before(b.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) GetBooking(_ context.Context, id string) (model.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		return b, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.bookings[id]
	if !ok {
		return model.Booking{}, apperr.NotFound("booking not found")
	}
	return b, nil
}

func (t *memTx) ListBookings(_ context.Context, f store.BookingFilter) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.mergedBookings() {
		if f.BusinessID != "" && b.BusinessID != f.BusinessID {
			continue
		}
		if f.ResourceID != "" && b.ResourceID != f.ResourceID {
			continue
		}
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && !b.End.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !b.Start.Before(f.To) {
			continue
		}
		out = append(out, b)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	if !b.Start.Before(b.End) {
		return apperr.BadRequest("booking start must be before end")
	}
	now := t.now()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	t.bookings[b.ID] = *b
	return nil
}

func (t *memTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	if _, err := t.GetBooking(ctx, b.ID); err != nil {
		return err
	}
	if !b.Start.Before(b.End) {
		return apperr.BadRequest("booking start must be before end")
	}
	b.UpdatedAt = t.now()
	t.bookings[b.ID] = *b
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, rows ...model.BookingHistory) error {
	now := t.now()
	for _, r := range rows {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		t.history = append(t.history, r)
	}
	return nil
}

func (t *memTx) ListHistory(_ context.Context, bookingID string) ([]model.BookingHistory, error) {
	var out []model.BookingHistory
	t.s.mu.RLock()
	for _, h := range t.s.history {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	t.s.mu.RUnlock()
	for _, h := range t.history {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *memTx) InsertWaitlistEntry(_ context.Context, e *model.WaitlistEntry) error {
	now := t.now()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	t.waitlist[e.ID] = *e
	return nil
}

func (t *memTx) GetWaitlistEntry(_ context.Context, id string) (model.WaitlistEntry, error) {
	if e, ok := t.waitlist[id]; ok {
		return e, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.waitlist[id]
	if !ok {
		return model.WaitlistEntry{}, apperr.NotFound("waitlist entry not found")
	}
	return e, nil
}

func (t *memTx) UpdateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	if _, err := t.GetWaitlistEntry(ctx, e.ID); err != nil {
		return err
	}
	e.UpdatedAt = t.now()
	t.waitlist[e.ID] = *e
	return nil
}

func (t *memTx) mergedWaitlist() []model.WaitlistEntry {
	t.s.mu.RLock()
	out := make([]model.WaitlistEntry, 0, len(t.s.waitlist)+len(t.waitlist))
	for id, e := range t.s.waitlist {
		if _, staged := t.waitlist[id]; !staged {
			out = append(out, e)
		}
	}
	t.s.mu.RUnlock()
	for _, e := range t.waitlist {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *memTx) OpenWaitlistEntries(_ context.Context, businessID, serviceID, customerID string) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, e := range t.mergedWaitlist() {
		if e.BusinessID == businessID && e.ServiceID == serviceID && e.CustomerID == customerID && e.Status.Open() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) ActiveWaitlist(_ context.Context, businessID, serviceID string) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, e := range t.mergedWaitlist() {
		if e.BusinessID != businessID || e.Status != model.WaitlistActive {
			continue
		}
		if e.ServiceID != "" && e.ServiceID != serviceID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *memTx) OverdueWaitlist(_ context.Context, now time.Time, limit int) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, e := range t.mergedWaitlist() {
		if e.Status == model.WaitlistNotified && e.ResponseDeadline.Before(now) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ResponseDeadline.Before(out[j].ResponseDeadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) ListWaitlist(_ context.Context, businessID string, status model.WaitlistStatus, limit int) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, e := range t.mergedWaitlist() {
		if e.BusinessID != businessID || (status != "" && e.Status != status) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
