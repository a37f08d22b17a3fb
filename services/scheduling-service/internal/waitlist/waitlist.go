// Package waitlist queues demand for full slots and notifies customers, highest priority
// first, when capacity frees up.
package waitlist

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
)

const DefaultResponseWindow = 24 * time.Hour

type Config struct {
	ResponseWindow time.Duration
	Now            func() time.Time
}

type Service struct {
	store  store.Store
	engine *booking.Engine
	logger *slog.Logger
	window time.Duration
	now    func() time.Time
}

func NewService(st store.Store, engine *booking.Engine, logger *slog.Logger, cfg Config) *Service {
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = DefaultResponseWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{store: st, engine: engine, logger: logger, window: cfg.ResponseWindow, now: cfg.Now}
}

type JoinInput struct {
	BusinessID     string
	ServiceID      string
	CustomerID     string
	PreferredDate  *time.Time
	PreferredStart *int
	PreferredEnd   *int
	Priority       model.WaitlistPriority
	Notes          string
}

// Join adds a customer to the waitlist. A customer holds at most one active or notified
// entry per business and service.
func (s *Service) Join(ctx context.Context, in JoinInput) (*model.WaitlistEntry, error) {
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, apperr.BadRequest("invalid priority %q", in.Priority)
	}
	if (in.PreferredStart == nil) != (in.PreferredEnd == nil) {
		return nil, apperr.BadRequest("preferred time window needs both start and end")
	}
	if in.PreferredStart != nil {
		start, end := calendar.Clock(*in.PreferredStart), calendar.Clock(*in.PreferredEnd)
		if !start.Valid() || !end.Valid() || end <= start {
			return nil, apperr.BadRequest("invalid preferred time window")
		}
	}

	var out *model.WaitlistEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		biz, err := tx.GetBusiness(ctx, in.BusinessID)
		if err != nil {
			return err
		}
		if in.ServiceID != "" {
			svc, err := tx.GetService(ctx, in.ServiceID)
			if err != nil {
				return err
			}
			if svc.BusinessID != biz.ID || svc.DeletedAt != nil {
				return apperr.NotFound("service not found")
			}
		}
		cust, err := tx.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if cust.BusinessID != biz.ID || cust.DeletedAt != nil {
			return apperr.NotFound("customer not found")
		}

		if err := tx.LockKeys(ctx, "waitlist-customer:"+biz.ID+":"+in.ServiceID+":"+cust.ID); err != nil {
			return err
		}
		open, err := tx.OpenWaitlistEntries(ctx, biz.ID, in.ServiceID, cust.ID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return apperr.Conflict("customer already on the waitlist")
		}

		now := s.now().UTC()
		e := &model.WaitlistEntry{
			BusinessID:       biz.ID,
			ServiceID:        in.ServiceID,
			CustomerID:       cust.ID,
			PreferredStart:   in.PreferredStart,
			PreferredEnd:     in.PreferredEnd,
			Status:           model.WaitlistActive,
			Priority:         in.Priority,
			ResponseDeadline: now.Add(s.window),
			Notes:            in.Notes,
		}
		if in.PreferredDate != nil {
			d := calendar.Date(*in.PreferredDate)
			e.PreferredDate = &d
		}
		if err := tx.InsertWaitlistEntry(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// Candidate narrows selection to entries that accept a slot.
type Candidate struct {
	Date time.Time
	// Clock is the slot's local start time; nil ignores preferred time windows.
	Clock *calendar.Clock
}

// Accepts reports whether e wants a slot on c. Entries without a preferred date accept
// any date; entries without a preferred window accept any time.
func (c Candidate) Accepts(e model.WaitlistEntry) bool {
	if e.PreferredDate != nil && !calendar.Date(*e.PreferredDate).Equal(calendar.Date(c.Date)) {
		return false
	}
	if c.Clock != nil && e.PreferredStart != nil && e.PreferredEnd != nil {
		m := int(*c.Clock)
		if m < *e.PreferredStart || m >= *e.PreferredEnd {
			return false
		}
	}
	return true
}

// Order sorts entries vip > high > normal > low, then by creation time, then id.
func Order(entries []model.WaitlistEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func selectNext(entries []model.WaitlistEntry, c Candidate) *model.WaitlistEntry {
	var matching []model.WaitlistEntry
	for _, e := range entries {
		if e.Status == model.WaitlistActive && c.Accepts(e) {
			matching = append(matching, e)
		}
	}
	if len(matching) == 0 {
		return nil
	}
	Order(matching)
	return &matching[0]
}

// NextToNotify returns the active entry to offer a slot on date to, or nil.
func (s *Service) NextToNotify(ctx context.Context, businessID, serviceID string, date time.Time) (*model.WaitlistEntry, error) {
	var out *model.WaitlistEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		entries, err := tx.ActiveWaitlist(ctx, businessID, serviceID)
		if err != nil {
			return err
		}
		out = selectNext(entries, Candidate{Date: date})
		return nil
	})
	return out, err
}

// Notify moves an active entry to notified and opens its response window.
func (s *Service) Notify(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	var (
		out *model.WaitlistEntry
		msg []dispatch.Message
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		e, err := s.notifyTx(ctx, tx, id)
		if err != nil {
			return err
		}
		out = e
		msg = s.notificationMessage(ctx, *e, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.Dispatch(ctx, msg)
	return out, nil
}

func (s *Service) notifyTx(ctx context.Context, tx store.Tx, id string) (*model.WaitlistEntry, error) {
	if err := tx.LockKeys(ctx, store.WaitlistKey(id)); err != nil {
		return nil, err
	}
	e, err := tx.GetWaitlistEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != model.WaitlistActive {
		return nil, apperr.BadRequest("waitlist entry is %s, not active", e.Status)
	}
	now := s.now().UTC()
	e.Status = model.WaitlistNotified
	e.NotifiedAt = &now
	e.NotificationCount++
	e.ResponseDeadline = now.Add(s.window)
	if err := tx.UpdateWaitlistEntry(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

type notificationPayload struct {
	EntryID          string `json:"waitlist_entry_id"`
	BusinessID       string `json:"business_id"`
	ServiceID        string `json:"service_id,omitempty"`
	ResourceID       string `json:"resource_id,omitempty"`
	CustomerID       string `json:"customer_id"`
	SlotStart        string `json:"slot_start,omitempty"`
	SlotEnd          string `json:"slot_end,omitempty"`
	ResponseDeadline string `json:"response_deadline"`
	Notification     int    `json:"notification_count"`
}

func (s *Service) notificationMessage(ctx context.Context, e model.WaitlistEntry, slot *booking.FreedSlot) []dispatch.Message {
	p := notificationPayload{
		EntryID:          e.ID,
		BusinessID:       e.BusinessID,
		ServiceID:        e.ServiceID,
		CustomerID:       e.CustomerID,
		ResponseDeadline: e.ResponseDeadline.UTC().Format(time.RFC3339),
		Notification:     e.NotificationCount,
	}
	if slot != nil {
		if p.ServiceID == "" {
			p.ServiceID = slot.ServiceID
		}
		p.ResourceID = slot.ResourceID
		p.SlotStart = slot.Start.UTC().Format(time.RFC3339)
		p.SlotEnd = slot.End.UTC().Format(time.RFC3339)
	}
	msg, err := dispatch.NewMessage(dispatch.TopicWaitlistNotifyRequest, "waitlist_entry", e.ID, p)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build waitlist notification", "err", err, "entry_id", e.ID)
		return nil
	}
	return []dispatch.Message{msg}
}

// NotifyForFreedSlot offers a freed slot to the next matching entry. It does nothing
// when the slot has already started, is taken again, or nobody is waiting.
func (s *Service) NotifyForFreedSlot(ctx context.Context, slot booking.FreedSlot) error {
	if slot.Start.Before(s.now()) {
		return nil
	}
	var msg []dispatch.Message
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		free, err := s.engine.IsSlotFree(ctx, tx, slot)
		if err != nil || !free {
			return err
		}
		biz, err := tx.GetBusiness(ctx, slot.BusinessID)
		if err != nil {
			return err
		}
		local := slot.Start.In(biz.Location())
		clock := calendar.ClockOf(local)

		entries, err := tx.ActiveWaitlist(ctx, slot.BusinessID, slot.ServiceID)
		if err != nil {
			return err
		}
		next := selectNext(entries, Candidate{Date: calendar.Date(local), Clock: &clock})
		if next == nil {
			return nil
		}
		e, err := s.notifyTx(ctx, tx, next.ID)
		if err != nil {
			return err
		}
		msg = s.notificationMessage(ctx, *e, &slot)
		s.logger.InfoContext(ctx, "waitlist entry notified", "entry_id", e.ID, "business_id", e.BusinessID, "priority", e.Priority)
		return nil
	})
	if err != nil {
		return err
	}
	s.engine.Dispatch(ctx, msg)
	return nil
}

// ExpireOverdue moves notified entries whose response deadline is before now to expired
// and returns how many changed. Running it again with nothing overdue changes nothing.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		overdue, err := tx.OverdueWaitlist(ctx, now, 500)
		if err != nil {
			return err
		}
		for _, candidate := range overdue {
			if err := tx.LockKeys(ctx, store.WaitlistKey(candidate.ID)); err != nil {
				return err
			}
			e, err := tx.GetWaitlistEntry(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if e.Status != model.WaitlistNotified || !e.ResponseDeadline.Before(now) {
				continue
			}
			e.Status = model.WaitlistExpired
			if err := tx.UpdateWaitlistEntry(ctx, &e); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	return expired, err
}

// ExpireDue runs ExpireOverdue against the service clock.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	return s.ExpireOverdue(ctx, s.now().UTC())
}

// Convert books the slot for a notified entry and marks the entry converted, in one
// transaction. Missing booking fields default to the entry's.
func (s *Service) Convert(ctx context.Context, id string, in booking.CreateInput) (*model.Booking, *model.WaitlistEntry, error) {
	var (
		b    *model.Booking
		out  *model.WaitlistEntry
		msgs []dispatch.Message
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockKeys(ctx, store.WaitlistKey(id)); err != nil {
			return err
		}
		e, err := tx.GetWaitlistEntry(ctx, id)
		if err != nil {
			return err
		}
		if e.Status != model.WaitlistNotified {
			return apperr.BadRequest("waitlist entry is %s, not notified", e.Status)
		}
		if !s.now().Before(e.ResponseDeadline) {
			return apperr.BadRequest("waitlist response window has passed")
		}
		if in.BusinessID == "" {
			in.BusinessID = e.BusinessID
		}
		if in.BusinessID != e.BusinessID {
			return apperr.BadRequest("booking business does not match waitlist entry")
		}
		if in.ServiceID == "" {
			in.ServiceID = e.ServiceID
		}
		if e.ServiceID != "" && in.ServiceID != e.ServiceID {
			return apperr.BadRequest("booking service does not match waitlist entry")
		}
		in.CustomerID = e.CustomerID

		created, createMsgs, err := s.engine.CreateTx(ctx, tx, in)
		if err != nil {
			return err
		}
		e.Status = model.WaitlistConverted
		e.ConvertedBookingID = created.ID
		if err := tx.UpdateWaitlistEntry(ctx, &e); err != nil {
			return err
		}
		b, out, msgs = created, &e, createMsgs
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.engine.Dispatch(ctx, msgs)
	return b, out, nil
}

// Cancel withdraws an active or notified entry.
func (s *Service) Cancel(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	var out *model.WaitlistEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockKeys(ctx, store.WaitlistKey(id)); err != nil {
			return err
		}
		e, err := tx.GetWaitlistEntry(ctx, id)
		if err != nil {
			return err
		}
		if !e.Status.Open() {
			return apperr.BadRequest("waitlist entry is %s and cannot be cancelled", e.Status)
		}
		e.Status = model.WaitlistCancelled
		if err := tx.UpdateWaitlistEntry(ctx, &e); err != nil {
			return err
		}
		out = &e
		return nil
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	var out model.WaitlistEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		e, err := tx.GetWaitlistEntry(ctx, id)
		out = e
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns a business's entries, optionally filtered by status, in queue order.
func (s *Service) List(ctx context.Context, businessID string, status model.WaitlistStatus, limit int) ([]model.WaitlistEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []model.WaitlistEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.ListWaitlist(ctx, businessID, status, limit)
		out = rows
		return err
	})
	return out, err
}
