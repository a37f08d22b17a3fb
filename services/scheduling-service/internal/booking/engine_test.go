package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// Sunday 2026-03-01 08:00 UTC.
	now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	// Monday 2026-03-02.
	monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

func at(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fixture struct {
	st       *memstore.Store
	rec      *dispatch.Recorder
	engine   *Engine
	biz      model.Business
	room     model.Resource
	svc      model.Service
	customer model.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	st.SetClock(func() time.Time { return now })

	biz := st.PutBusiness(model.Business{Name: "Studio", Timezone: "UTC", Status: model.BusinessLive})
	st.SetBusinessHours(biz.ID, model.WeeklyHours{Weekday: 1, Open: 9 * 60, Close: 17 * 60})
	room := st.PutResource(model.Resource{BusinessID: biz.ID, Name: "Room A", Type: model.ResourceRoom, Active: true})
	svc := st.PutService(model.Service{
		BusinessID: biz.ID, Name: "Session", Active: true,
		Duration: time.Hour, BufferBefore: 10 * time.Minute, BufferAfter: 5 * time.Minute,
	})
	customer := st.PutCustomer(model.Customer{BusinessID: biz.ID, Name: "Dana"})

	rec := &dispatch.Recorder{}
	engine := NewEngine(st, rec, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Now: func() time.Time { return now },
	})
	return &fixture{st: st, rec: rec, engine: engine, biz: biz, room: room, svc: svc, customer: customer}
}

func (f *fixture) create(start, end time.Time) (*model.Booking, error) {
	return f.engine.Create(context.Background(), CreateInput{
		BusinessID: f.biz.ID,
		ServiceID:  f.svc.ID,
		ResourceID: f.room.ID,
		CustomerID: f.customer.ID,
		Start:      start,
		End:        end,
		Actor:      "test",
	})
}

func TestCreateFreeIntervalProducesOneBooking(t *testing.T) {
	f := newFixture(t)

	b, err := f.create(at(10, 0), at(11, 0))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Equal(t, f.room.ID, b.ResourceID)
	assert.Equal(t, 1, f.st.BookingCount())

	history, err := f.engine.History(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "status", history[0].Field)
	assert.Equal(t, "", history[0].OldValue)
	assert.Equal(t, "confirmed", history[0].NewValue)

	assert.Len(t, f.rec.Topic(dispatch.TopicBookingCreated), 1)
	assert.Len(t, f.rec.Topic(dispatch.TopicBookingConfirmed), 1)
	reminders := f.rec.Topic(dispatch.TopicReminderRequested)
	require.Len(t, reminders, 2)
	var first reminderPayload
	require.NoError(t, json.Unmarshal(reminders[0].Payload, &first))
	assert.Equal(t, 1440, first.OffsetMinutes)
	assert.Equal(t, "2026-03-01T10:00:00Z", first.RemindAt)
}

func TestEndDefaultsToServiceDuration(t *testing.T) {
	f := newFixture(t)
	b, err := f.create(at(13, 0), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, at(14, 0), b.End)
}

func TestConcurrentOverlappingCreatesOnlyOneWins(t *testing.T) {
	f := newFixture(t)

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	startGate := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-startGate
			offset := time.Duration(i%3) * 10 * time.Minute
			_, err := f.create(at(10, 0).Add(offset), at(11, 0).Add(offset))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.IsConflict(err):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(startGate)
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 1, f.st.BookingCount())
}

func TestBuffersWidenExistingBookings(t *testing.T) {
	f := newFixture(t)
	_, err := f.create(at(10, 0), at(11, 0))
	require.NoError(t, err)

	_, err = f.create(at(11, 4), at(12, 0))
	assert.True(t, apperr.IsConflict(err), "start before T+5 must conflict, got %v", err)

	_, err = f.create(at(11, 5), at(12, 0))
	require.NoError(t, err, "start at T+5 must succeed")

	_, err = f.create(at(8, 50), at(9, 51))
	assert.True(t, apperr.IsConflict(err), "end inside the leading buffer must conflict, got %v", err)

	_, err = f.create(at(8, 50), at(9, 50))
	require.NoError(t, err)
}

func TestBuffersFollowEachBookingsOwnService(t *testing.T) {
	f := newFixture(t)
	padded := f.st.PutService(model.Service{BusinessID: f.biz.ID, Name: "Deep clean", Active: true, Duration: time.Hour, BufferAfter: 5 * time.Minute})
	bare := f.st.PutService(model.Service{BusinessID: f.biz.ID, Name: "Quick chat", Active: true, Duration: 30 * time.Minute})

	book := func(svc model.Service, start time.Time) (*model.Booking, error) {
		return f.engine.Create(context.Background(), CreateInput{
			BusinessID: f.biz.ID, ServiceID: svc.ID, ResourceID: f.room.ID, Start: start,
		})
	}

	_, err := book(padded, at(10, 0))
	require.NoError(t, err)

	_, err = book(bare, at(11, 0))
	assert.True(t, apperr.IsConflict(err), "cleanup after the 10:00 booking holds the room until 11:05, got %v", err)

	var free bool
	err = f.st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		free, err = f.engine.IsSlotFree(ctx, tx, FreedSlot{BusinessID: f.biz.ID, ServiceID: bare.ID, ResourceID: f.room.ID, Start: at(11, 0), End: at(11, 30)})
		return err
	})
	require.NoError(t, err)
	assert.False(t, free)

	_, err = book(bare, at(11, 5))
	require.NoError(t, err)

	// The bare booking carries no buffer, so the padded service may start right after it.
	_, err = book(padded, at(11, 35))
	require.NoError(t, err)
}

func TestStaffHoursLimitAllocationAndAvailability(t *testing.T) {
	f := newFixture(t)
	alice := f.st.PutResource(model.Resource{BusinessID: f.biz.ID, Name: "Alice", Type: model.ResourceStaff, Active: true})
	f.st.SetStaffHours(alice.ID, model.WeeklyHours{Weekday: 1, Open: 10 * 60, Close: 12 * 60})
	consult := f.st.PutService(model.Service{BusinessID: f.biz.ID, Name: "Consult", Active: true, Duration: time.Hour})
	f.st.LinkResources(consult.ID, alice.ID)

	got, err := f.engine.CheckAvailability(context.Background(), AvailabilityQuery{BusinessID: f.biz.ID, ServiceID: consult.ID, Date: monday})
	require.NoError(t, err)
	assert.False(t, got.IsClosed)
	assert.Equal(t, "10:00", got.Open.String())
	assert.Equal(t, "12:00", got.Close.String())
	for _, s := range got.Slots {
		assert.False(t, s.Start.Equal(at(14, 0)) && s.Available, "14:00 is outside Alice's shift")
	}
	require.NotEmpty(t, got.Slots)
	assert.True(t, got.Slots[0].Available)
	assert.Equal(t, at(10, 0), got.Slots[0].Start.UTC())

	_, err = f.engine.Create(context.Background(), CreateInput{BusinessID: f.biz.ID, ServiceID: consult.ID, Start: at(14, 0)})
	assert.True(t, apperr.IsConflict(err), "nobody linked works at 14:00, got %v", err)
	assert.Zero(t, f.st.BookingCount())

	_, err = f.engine.Create(context.Background(), CreateInput{BusinessID: f.biz.ID, ServiceID: consult.ID, ResourceID: alice.ID, Start: at(14, 0)})
	assert.True(t, apperr.IsConflict(err), "explicit staff outside their shift, got %v", err)

	b, err := f.engine.Create(context.Background(), CreateInput{BusinessID: f.biz.ID, ServiceID: consult.ID, Start: at(10, 0)})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, b.ResourceID)

	_, err = f.engine.Reschedule(context.Background(), RescheduleInput{BookingID: b.ID, Start: at(14, 0), Actor: "test"})
	assert.True(t, apperr.IsConflict(err), "moving past the shift end, got %v", err)
}

func TestAvailabilityUnionsLinkedStaffShifts(t *testing.T) {
	f := newFixture(t)
	early := f.st.PutResource(model.Resource{BusinessID: f.biz.ID, Name: "Early", Type: model.ResourceStaff, Active: true})
	late := f.st.PutResource(model.Resource{BusinessID: f.biz.ID, Name: "Late", Type: model.ResourceStaff, Active: true})
	f.st.SetStaffHours(early.ID, model.WeeklyHours{Weekday: 1, Open: 9 * 60, Close: 11 * 60})
	f.st.SetStaffHours(late.ID, model.WeeklyHours{Weekday: 1, Open: 14 * 60, Close: 16 * 60})
	svc := f.st.PutService(model.Service{BusinessID: f.biz.ID, Name: "Consult", Active: true, Duration: time.Hour})
	f.st.LinkResources(svc.ID, early.ID, late.ID)

	got, err := f.engine.CheckAvailability(context.Background(), AvailabilityQuery{BusinessID: f.biz.ID, ServiceID: svc.ID, Date: monday})
	require.NoError(t, err)
	assert.Equal(t, "09:00", got.Open.String())
	assert.Equal(t, "16:00", got.Close.String())

	availableAt := map[string]bool{}
	for _, s := range got.Slots {
		availableAt[s.Start.Format("15:04")] = s.Available
	}
	assert.True(t, availableAt["09:00"])
	assert.True(t, availableAt["10:00"])
	assert.False(t, availableAt["10:15"], "runs past the early shift")
	assert.False(t, availableAt["12:00"], "between shifts")
	assert.True(t, availableAt["14:00"])
	assert.True(t, availableAt["15:00"])
}

func TestTransitionTable(t *testing.T) {
	f := newFixture(t)
	price := int64(1000)
	f.svc.BasePrice = &price
	f.st.PutService(f.svc)

	b, err := f.create(at(10, 0), at(11, 0))
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingPayment, b.Status)
	assert.Empty(t, f.rec.Topic(dispatch.TopicReminderRequested), "no reminders before confirmation")

	b, err = f.engine.Confirm(context.Background(), b.ID, "payments")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Len(t, f.rec.Topic(dispatch.TopicReminderRequested), 2)
	assert.Len(t, f.rec.Topic(dispatch.TopicBookingStatusChanged), 1)

	_, err = f.engine.Transition(context.Background(), TransitionInput{BookingID: b.ID, To: model.StatusPending})
	assert.True(t, apperr.IsBadRequest(err), "confirmed -> pending must be rejected, got %v", err)

	b, err = f.engine.Complete(context.Background(), b.ID, "staff")
	require.NoError(t, err)
	_, err = f.engine.Cancel(context.Background(), b.ID, "staff", "late")
	assert.True(t, apperr.IsBadRequest(err), "terminal states have no transitions")

	history, err := f.engine.History(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "pending_payment", history[1].OldValue)
	assert.Equal(t, "completed", history[2].NewValue)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.StatusPending, model.StatusPendingPayment))
	assert.True(t, CanTransition(model.StatusConfirmed, model.StatusNoShow))
	assert.False(t, CanTransition(model.StatusPendingPayment, model.StatusCompleted))
	assert.False(t, CanTransition(model.StatusExpired, model.StatusConfirmed))
	assert.False(t, CanTransition(model.StatusCancelled, model.StatusConfirmed))
}

func TestPricedCreationSnapshotsQuoteAndPolicy(t *testing.T) {
	f := newFixture(t)
	price := int64(1000)
	policy := f.st.PutPolicy(model.CancellationPolicy{BusinessID: f.biz.ID, Name: "24h", FreeCancelHours: 24, RefundPercent: 50})
	f.svc.BasePrice = &price
	f.svc.Currency = "usd"
	f.svc.CancellationPolicyID = policy.ID
	f.st.PutService(f.svc)

	start, end := 9*60, 12*60
	_, err := f.st.PutPricingRule(model.PricingRule{ServiceID: f.svc.ID, Name: "weekday", Active: true, Priority: 1,
		DaysOfWeek: []int{1, 2, 3, 4, 5}, ModifierType: model.ModifierPercentage, Modifier: 20})
	require.NoError(t, err)
	_, err = f.st.PutPricingRule(model.PricingRule{ServiceID: f.svc.ID, Name: "morning", Active: true, Priority: 2,
		TimeStart: &start, TimeEnd: &end, ModifierType: model.ModifierFixed, Modifier: -100})
	require.NoError(t, err)

	b, err := f.create(at(10, 0), time.Time{})
	require.NoError(t, err)
	require.NotNil(t, b.PriceSnapshot)
	assert.Equal(t, int64(1100), b.PriceSnapshot.FinalPrice)
	assert.Equal(t, "usd", b.PriceSnapshot.Currency)
	assert.Equal(t, model.StatusPendingPayment, b.Status)
	require.NotNil(t, b.PolicySnapshot)
	assert.Equal(t, 50, b.PolicySnapshot.RefundPercent)

	q, currency, err := f.engine.Quote(context.Background(), f.svc.ID, at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1100), q.FinalPrice)
	assert.Equal(t, "usd", currency)
}

func TestZeroPriceConfirmsDirectly(t *testing.T) {
	f := newFixture(t)
	price := int64(100)
	f.svc.BasePrice = &price
	f.st.PutService(f.svc)
	_, err := f.st.PutPricingRule(model.PricingRule{ServiceID: f.svc.ID, Active: true, ModifierType: model.ModifierFixed, Modifier: -500})
	require.NoError(t, err)

	b, err := f.create(at(10, 0), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.PriceSnapshot.FinalPrice)
	assert.Equal(t, model.StatusConfirmed, b.Status)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.create(at(11, 0), at(10, 0))
	assert.True(t, apperr.IsBadRequest(err))

	_, err = f.create(now.Add(-time.Hour), now)
	assert.True(t, apperr.IsBadRequest(err), "past start")

	_, err = f.engine.Create(context.Background(), CreateInput{BusinessID: "missing", ServiceID: f.svc.ID, Start: at(10, 0)})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.engine.Create(context.Background(), CreateInput{BusinessID: f.biz.ID, ServiceID: f.svc.ID, CustomerID: "ghost", Start: at(10, 0)})
	assert.True(t, apperr.IsNotFound(err))

	inactive := f.st.PutResource(model.Resource{BusinessID: f.biz.ID, Type: model.ResourceRoom, Active: false})
	_, err = f.engine.Create(context.Background(), CreateInput{BusinessID: f.biz.ID, ResourceID: inactive.ID, Start: at(10, 0), End: at(11, 0)})
	assert.True(t, apperr.IsBadRequest(err))

	_, err = f.engine.Create(context.Background(), CreateInput{BusinessID: f.biz.ID, Start: at(10, 0), End: at(11, 0)})
	assert.True(t, apperr.IsBadRequest(err), "needs a service or a resource")

	f.biz.Status = model.BusinessSuspended
	f.st.PutBusiness(f.biz)
	_, err = f.create(at(10, 0), at(11, 0))
	assert.True(t, apperr.IsBadRequest(err), "suspended business")
}

func TestAllocatorPicksFirstFreeLinkedResource(t *testing.T) {
	f := newFixture(t)
	second := f.st.PutResource(model.Resource{BusinessID: f.biz.ID, Name: "Room B", Type: model.ResourceRoom, Active: true})
	f.st.LinkResources(f.svc.ID, f.room.ID, second.ID)

	in := CreateInput{BusinessID: f.biz.ID, ServiceID: f.svc.ID, Start: at(10, 0)}
	b1, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, f.room.ID, b1.ResourceID)

	b2, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, second.ID, b2.ResourceID)

	_, err = f.engine.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "no available resource")

	unlinked := f.st.PutResource(model.Resource{BusinessID: f.biz.ID, Type: model.ResourceRoom, Active: true})
	_, err = f.engine.Create(context.Background(), CreateInput{BusinessID: f.biz.ID, ServiceID: f.svc.ID, ResourceID: unlinked.ID, Start: at(13, 0)})
	assert.True(t, apperr.IsBadRequest(err))
}

func TestServiceScopeWithoutLinkedResources(t *testing.T) {
	f := newFixture(t)
	in := CreateInput{BusinessID: f.biz.ID, ServiceID: f.svc.ID, Start: at(10, 0)}
	b, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, b.ResourceID)

	_, err = f.engine.Create(context.Background(), in)
	assert.True(t, apperr.IsConflict(err))
}

func TestRemindersSkipPastOffsets(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.Create(context.Background(), CreateInput{
		BusinessID: f.biz.ID, ResourceID: f.room.ID,
		Start: now.Add(2 * time.Hour), End: now.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	reminders := f.rec.Topic(dispatch.TopicReminderRequested)
	require.Len(t, reminders, 1)
	assert.Equal(t, b.ID, reminders[0].AggregateID)
}

type freedRecorder struct {
	mu    sync.Mutex
	slots []FreedSlot
}

func (r *freedRecorder) NotifyForFreedSlot(_ context.Context, slot FreedSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, slot)
	return nil
}

func TestCancelIsIdempotentAndFreesSlot(t *testing.T) {
	f := newFixture(t)
	freed := &freedRecorder{}
	f.engine.OnSlotFreed(freed)

	b, err := f.create(at(10, 0), at(11, 0))
	require.NoError(t, err)

	b, err = f.engine.Cancel(context.Background(), b.ID, "customer", "changed plans")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, b.Status)
	require.NotNil(t, b.CancelledAt)
	assert.Equal(t, "changed plans", b.CancelReason)
	assert.Len(t, f.rec.Topic(dispatch.TopicBookingCancelled), 1)
	require.Len(t, freed.slots, 1)
	assert.Equal(t, at(10, 0), freed.slots[0].Start)

	again, err := f.engine.Cancel(context.Background(), b.ID, "customer", "again")
	require.NoError(t, err)
	assert.Equal(t, "changed plans", again.CancelReason)
	history, _ := f.engine.History(context.Background(), b.ID)
	assert.Len(t, history, 2)

	_, err = f.create(at(10, 0), at(11, 0))
	require.NoError(t, err, "cancelled bookings no longer hold the slot")
}

func TestRescheduleRecordsChangedFields(t *testing.T) {
	f := newFixture(t)
	b, err := f.create(at(10, 0), at(11, 0))
	require.NoError(t, err)
	other, err := f.create(at(13, 0), at(14, 0))
	require.NoError(t, err)
	f.rec.Reset()

	// Overlapping its own old interval is fine.
	moved, err := f.engine.Reschedule(context.Background(), RescheduleInput{BookingID: b.ID, Start: at(10, 30), Actor: "staff"})
	require.NoError(t, err)
	assert.Equal(t, at(11, 30), moved.End)

	history, _ := f.engine.History(context.Background(), b.ID)
	require.Len(t, history, 3)
	assert.Equal(t, "start_time", history[1].Field)
	assert.Equal(t, "end_time", history[2].Field)
	assert.Len(t, f.rec.Topic(dispatch.TopicBookingRescheduled), 1)
	assert.Len(t, f.rec.Topic(dispatch.TopicReminderRequested), 2)

	_, err = f.engine.Reschedule(context.Background(), RescheduleInput{BookingID: b.ID, Start: at(12, 30)})
	assert.True(t, apperr.IsConflict(err), "moving onto another booking must conflict")

	room2 := f.st.PutResource(model.Resource{BusinessID: f.biz.ID, Type: model.ResourceRoom, Active: true})
	moved, err = f.engine.Reschedule(context.Background(), RescheduleInput{BookingID: b.ID, Start: at(13, 0), ResourceID: room2.ID})
	require.NoError(t, err)
	assert.Equal(t, room2.ID, moved.ResourceID)
	history, _ = f.engine.History(context.Background(), b.ID)
	assert.Len(t, history, 6)

	_, err = f.engine.Cancel(context.Background(), other.ID, "", "")
	require.NoError(t, err)
	_, err = f.engine.Reschedule(context.Background(), RescheduleInput{BookingID: other.ID, Start: at(15, 0)})
	assert.True(t, apperr.IsBadRequest(err), "terminal bookings cannot move")
}

func TestCheckAvailabilityClosedDay(t *testing.T) {
	f := newFixture(t)
	f.st.SetBusinessHours(f.biz.ID, model.WeeklyHours{Weekday: 1, Closed: true})

	got, err := f.engine.CheckAvailability(context.Background(), AvailabilityQuery{
		BusinessID: f.biz.ID, ServiceID: f.svc.ID, ResourceID: f.room.ID, Date: monday,
	})
	require.NoError(t, err)
	assert.True(t, got.IsClosed)
	assert.NotNil(t, got.Slots)
	assert.Empty(t, got.Slots)
}

func TestCheckAvailabilityMarksBookedSlots(t *testing.T) {
	f := newFixture(t)
	_, err := f.create(at(10, 0), at(11, 0))
	require.NoError(t, err)

	got, err := f.engine.CheckAvailability(context.Background(), AvailabilityQuery{
		BusinessID: f.biz.ID, ServiceID: f.svc.ID, ResourceID: f.room.ID, Date: monday,
	})
	require.NoError(t, err)
	assert.False(t, got.IsClosed)
	assert.Equal(t, "09:00", got.Open.String())
	assert.Equal(t, "17:00", got.Close.String())
	// 09:00..16:00 in 15 minute steps.
	require.Len(t, got.Slots, 29)

	availableAt := map[string]bool{}
	for _, s := range got.Slots {
		availableAt[s.Start.Format("15:04")] = s.Available
	}
	assert.False(t, availableAt["09:00"], "runs into the 09:50 leading buffer")
	assert.False(t, availableAt["09:15"])
	assert.False(t, availableAt["10:30"])
	assert.False(t, availableAt["11:00"], "after-buffer runs to 11:05")
	assert.True(t, availableAt["11:15"])
}

func TestCheckAvailabilityHolidayAndStaff(t *testing.T) {
	f := newFixture(t)
	f.st.AddHoliday(f.biz.ID, model.DateOverride{Date: monday, Working: false, Reason: "holiday"})
	got, err := f.engine.CheckAvailability(context.Background(), AvailabilityQuery{BusinessID: f.biz.ID, ServiceID: f.svc.ID, Date: monday})
	require.NoError(t, err)
	assert.True(t, got.IsClosed)

	staff := f.st.PutResource(model.Resource{BusinessID: f.biz.ID, Type: model.ResourceStaff, Active: true})
	f.st.SetStaffHours(staff.ID, model.WeeklyHours{Weekday: 1, Open: 12 * 60, Close: 14 * 60})
	got, err = f.engine.CheckAvailability(context.Background(), AvailabilityQuery{BusinessID: f.biz.ID, ResourceID: staff.ID, Date: monday, Duration: time.Hour})
	require.NoError(t, err)
	assert.False(t, got.IsClosed, "staff roster ignores business holidays")
	assert.Len(t, got.Slots, 5)
}

func TestDispatchFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.rec.Err = errors.New("broker unavailable")

	b, err := f.create(at(10, 0), at(11, 0))
	require.NoError(t, err)
	got, err := f.engine.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	_, err := f.create(at(13, 0), at(14, 0))
	require.NoError(t, err)
	_, err = f.create(at(10, 0), at(11, 0))
	require.NoError(t, err)

	rows, err := f.engine.List(context.Background(), store.BookingFilter{BusinessID: f.biz.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Start.Before(rows[1].Start))
}
