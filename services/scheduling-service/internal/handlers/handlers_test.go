package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store/memstore"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/waitlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sunday 2026-03-01 08:00 UTC.
var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	mux      *http.ServeMux
	rec      *dispatch.Recorder
	biz      model.Business
	room     model.Resource
	svc      model.Service
	priced   model.Service
	customer model.Customer
	other    model.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memstore.New()
	st.SetClock(func() time.Time { return now })

	biz := st.PutBusiness(model.Business{Name: "Studio", Timezone: "UTC", Status: model.BusinessLive})
	st.SetBusinessHours(biz.ID, model.WeeklyHours{Weekday: 1, Open: 9 * 60, Close: 17 * 60})
	room := st.PutResource(model.Resource{BusinessID: biz.ID, Name: "Room A", Type: model.ResourceRoom, Active: true})
	svc := st.PutService(model.Service{BusinessID: biz.ID, Name: "Session", Active: true, Duration: time.Hour})
	price := int64(1000)
	priced := st.PutService(model.Service{
		BusinessID: biz.ID, Name: "Massage", Active: true, Duration: time.Hour,
		BasePrice: &price, Currency: "USD",
	})
	st.LinkResources(svc.ID, room.ID)
	st.LinkResources(priced.ID, room.ID)
	customer := st.PutCustomer(model.Customer{BusinessID: biz.ID, Name: "Dana"})
	other := st.PutCustomer(model.Customer{BusinessID: biz.ID, Name: "Kai"})

	rec := &dispatch.Recorder{}
	engine := booking.NewEngine(st, rec, logger, booking.Config{Now: func() time.Time { return now }})
	wl := waitlist.NewService(st, engine, logger, waitlist.Config{Now: func() time.Time { return now }})
	engine.OnSlotFreed(wl)

	mux := http.NewServeMux()
	Register(mux, NewBookingHandler(engine, logger), NewWaitlistHandler(wl, logger), nil)
	return &fixture{mux: mux, rec: rec, biz: biz, room: room, svc: svc, priced: priced, customer: customer, other: other}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, httptest.NewRequest(method, target, &buf))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (f *fixture) book(t *testing.T, serviceID, customerID, start string) *httptest.ResponseRecorder {
	return f.do(t, http.MethodPost, "/api/v1/public/book", map[string]any{
		"business_id": f.biz.ID,
		"service_id":  serviceID,
		"resource_id": f.room.ID,
		"customer_id": customerID,
		"start_time":  start,
	})
}

func TestCreateGetAndConflict(t *testing.T) {
	f := newFixture(t)

	rr := f.book(t, f.svc.ID, f.customer.ID, "2026-03-02T10:00:00Z")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[bookingResponse](t, rr)
	assert.Equal(t, "confirmed", created.Status)
	assert.Equal(t, "2026-03-02T11:00:00Z", created.EndTime)

	rr = f.book(t, f.svc.ID, f.other.ID, "2026-03-02T10:30:00Z")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/bookings/get?booking_id="+created.BookingID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, created.BookingID, decode[bookingResponse](t, rr).BookingID)

	rr = f.do(t, http.MethodGet, "/api/v1/bookings/get?booking_id=missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/bookings?business_id="+f.biz.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[struct {
		Items []bookingResponse `json:"items"`
	}](t, rr)
	assert.Len(t, list.Items, 1)
}

func TestCreateRequestValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/public/book", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	f.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/public/book", map[string]any{"business_id": f.biz.ID})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.book(t, f.svc.ID, f.customer.ID, "tomorrow")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPricedBookingTransitions(t *testing.T) {
	f := newFixture(t)

	rr := f.book(t, f.priced.ID, f.customer.ID, "2026-03-02T13:00:00Z")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	b := decode[bookingResponse](t, rr)
	assert.Equal(t, "pending_payment", b.Status)
	require.NotNil(t, b.Price)
	assert.Equal(t, int64(1000), b.Price.FinalPrice)

	rr = f.do(t, http.MethodPost, "/api/v1/bookings/transition", map[string]any{"booking_id": b.BookingID, "status": "confirmed"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "confirmed", decode[bookingResponse](t, rr).Status)

	rr = f.do(t, http.MethodPost, "/api/v1/bookings/transition", map[string]any{"booking_id": b.BookingID, "status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/bookings/transition", map[string]any{"booking_id": b.BookingID, "status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/bookings/history?booking_id="+b.BookingID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode[struct {
		Items []historyItem `json:"items"`
	}](t, rr)
	require.Len(t, history.Items, 2)
	assert.Equal(t, "confirmed", history.Items[1].NewValue)
}

func TestCancelAndReschedule(t *testing.T) {
	f := newFixture(t)
	b := decode[bookingResponse](t, f.book(t, f.svc.ID, f.customer.ID, "2026-03-02T10:00:00Z"))

	rr := f.do(t, http.MethodPost, "/api/v1/bookings/reschedule", map[string]any{
		"booking_id": b.BookingID, "start_time": "2026-03-02T14:00:00Z",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	moved := decode[bookingResponse](t, rr)
	assert.Equal(t, "2026-03-02T14:00:00Z", moved.StartTime)
	assert.Equal(t, "2026-03-02T15:00:00Z", moved.EndTime)

	rr = f.do(t, http.MethodPost, "/api/v1/bookings/cancel", map[string]any{"booking_id": b.BookingID, "reason": "sick"})
	require.Equal(t, http.StatusOK, rr.Code)
	cancelled := decode[bookingResponse](t, rr)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "sick", cancelled.CancelReason)

	rr = f.do(t, http.MethodPost, "/api/v1/bookings/cancel", map[string]any{"booking_id": b.BookingID})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/public/availability?business_id="+f.biz.ID+"&service_id="+f.svc.ID+"&date=2026-03-01", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	closed := decode[availabilityResponse](t, rr)
	assert.True(t, closed.IsClosed)
	assert.NotNil(t, closed.Slots)
	assert.Empty(t, closed.Slots)
	assert.Contains(t, rr.Body.String(), `"slots":[]`)

	rr = f.do(t, http.MethodGet, "/api/v1/public/availability?business_id="+f.biz.ID+"&service_id="+f.svc.ID+"&date=2026-03-02", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	open := decode[availabilityResponse](t, rr)
	assert.False(t, open.IsClosed)
	assert.Equal(t, "09:00", open.Open)
	assert.Equal(t, "17:00", open.Close)
	require.NotEmpty(t, open.Slots)
	assert.Equal(t, "2026-03-02T09:00:00Z", open.Slots[0].StartTime)

	rr = f.do(t, http.MethodGet, "/api/v1/public/availability?business_id="+f.biz.ID+"&date=March", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuoteEndpoint(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/public/quote?service_id="+f.priced.ID+"&start_time=2026-03-02T10:00:00Z", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	q := decode[priceResponse](t, rr)
	assert.Equal(t, int64(1000), q.FinalPrice)
	assert.Equal(t, "USD", q.Currency)

	rr = f.do(t, http.MethodGet, "/api/v1/public/quote?service_id="+f.svc.ID+"&start_time=2026-03-02T10:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWaitlistFlow(t *testing.T) {
	f := newFixture(t)
	join := map[string]any{
		"business_id":     f.biz.ID,
		"service_id":      f.svc.ID,
		"customer_id":     f.other.ID,
		"priority":        "vip",
		"preferred_start": "09:00",
		"preferred_end":   "12:00",
	}
	rr := f.do(t, http.MethodPost, "/api/v1/public/waitlist", join)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	entry := decode[waitlistEntryResponse](t, rr)
	assert.Equal(t, "active", entry.Status)
	assert.Equal(t, "09:00", entry.PreferredStart)

	rr = f.do(t, http.MethodPost, "/api/v1/public/waitlist", join)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/waitlist/next?business_id="+f.biz.ID+"&service_id="+f.svc.ID+"&date=2026-03-02", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, entry.EntryID, decode[waitlistEntryResponse](t, rr).EntryID)

	rr = f.do(t, http.MethodPost, "/api/v1/waitlist/notify", map[string]any{"entry_id": entry.EntryID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	notified := decode[waitlistEntryResponse](t, rr)
	assert.Equal(t, "notified", notified.Status)
	assert.Equal(t, "2026-03-02T08:00:00Z", notified.ResponseDeadline)
	assert.Len(t, f.rec.Topic(dispatch.TopicWaitlistNotifyRequest), 1)

	rr = f.do(t, http.MethodPost, "/api/v1/waitlist/convert", map[string]any{
		"entry_id": entry.EntryID, "resource_id": f.room.ID, "start_time": "2026-03-02T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	converted := decode[struct {
		Booking bookingResponse       `json:"booking"`
		Entry   waitlistEntryResponse `json:"entry"`
	}](t, rr)
	assert.Equal(t, "converted", converted.Entry.Status)
	assert.Equal(t, converted.Booking.BookingID, converted.Entry.ConvertedBookingID)
	assert.Equal(t, f.other.ID, converted.Booking.CustomerID)

	rr = f.do(t, http.MethodGet, "/api/v1/waitlist?business_id="+f.biz.ID+"&status=converted", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[struct {
		Items []waitlistEntryResponse `json:"items"`
	}](t, rr).Items, 1)

	rr = f.do(t, http.MethodPost, "/api/v1/waitlist/sweep", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"expired":0}`, rr.Body.String())
}

func TestWaitlistCancelAndNextEmpty(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/public/waitlist", map[string]any{
		"business_id": f.biz.ID, "service_id": f.svc.ID, "customer_id": f.customer.ID,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	entry := decode[waitlistEntryResponse](t, rr)

	rr = f.do(t, http.MethodPost, "/api/v1/waitlist/cancel", map[string]any{"entry_id": entry.EntryID})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancelled", decode[waitlistEntryResponse](t, rr).Status)

	rr = f.do(t, http.MethodGet, "/api/v1/waitlist/next?business_id="+f.biz.ID+"&service_id="+f.svc.ID+"&date=2026-03-02", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/public/waitlist", map[string]any{
		"business_id": f.biz.ID, "customer_id": f.customer.ID, "preferred_start": "9am",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{apperr.NotFound("booking not found"), http.StatusNotFound, "booking not found"},
		{apperr.Forbidden("business is not accepting bookings"), http.StatusForbidden, "business is not accepting bookings"},
		{apperr.Wrap(apperr.KindConflict, errors.New("pq: 23P01"), "time slot unavailable"), http.StatusConflict, "time slot unavailable"},
		{errors.New("connection reset"), http.StatusInternalServerError, "failed"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		writeError(rr, logger, tc.err, "failed")
		assert.Equal(t, tc.status, rr.Code)
		assert.Equal(t, tc.body+"\n", rr.Body.String())
	}
}
