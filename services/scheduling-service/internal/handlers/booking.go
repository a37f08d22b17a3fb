package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store"
)

type BookingHandler struct {
	engine *booking.Engine
	logger *slog.Logger
}

func NewBookingHandler(engine *booking.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, logger: logger}
}

type createBookingRequest struct {
	BusinessID string            `json:"business_id"`
	ServiceID  string            `json:"service_id"`
	ResourceID string            `json:"resource_id"`
	CustomerID string            `json:"customer_id"`
	StartTime  string            `json:"start_time"`
	EndTime    string            `json:"end_time"`
	Metadata   map[string]string `json:"metadata"`
	Notes      string            `json:"notes"`
	Actor      string            `json:"actor"`
}

// toInput validates the request shape; the engine validates the rest.
func (req createBookingRequest) toInput() (booking.CreateInput, string) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.BusinessID == "" || req.ServiceID == "" || req.CustomerID == "" {
		return booking.CreateInput{}, "business_id, service_id and customer_id required"
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		return booking.CreateInput{}, "invalid start_time"
	}
	end, err := parseOptionalTime(req.EndTime)
	if err != nil {
		return booking.CreateInput{}, "invalid end_time"
	}
	return booking.CreateInput{
		BusinessID: req.BusinessID,
		ServiceID:  req.ServiceID,
		ResourceID: strings.TrimSpace(req.ResourceID),
		CustomerID: req.CustomerID,
		Start:      start,
		End:        end,
		Metadata:   req.Metadata,
		Notes:      strings.TrimSpace(req.Notes),
		Actor:      actorOr(req.Actor, "customer:"+req.CustomerID),
	}, ""
}

func actorOr(actor, fallback string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	return fallback
}

type priceResponse struct {
	BasePrice     int64                `json:"base_price"`
	FinalPrice    int64                `json:"final_price"`
	TotalModifier int64                `json:"total_modifier"`
	Currency      string               `json:"currency,omitempty"`
	AppliedRules  []model.AppliedPrice `json:"applied_rules,omitempty"`
}

type bookingResponse struct {
	BookingID    string                `json:"booking_id"`
	BusinessID   string                `json:"business_id"`
	ServiceID    string                `json:"service_id"`
	ResourceID   string                `json:"resource_id,omitempty"`
	CustomerID   string                `json:"customer_id"`
	StartTime    string                `json:"start_time"`
	EndTime      string                `json:"end_time"`
	Status       string                `json:"status"`
	Price        *priceResponse        `json:"price,omitempty"`
	Policy       *model.PolicySnapshot `json:"cancellation_policy,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	Notes        string                `json:"notes,omitempty"`
	CancelledAt  string                `json:"cancelled_at,omitempty"`
	CancelReason string                `json:"cancel_reason,omitempty"`
	CreatedAt    string                `json:"created_at"`
	UpdatedAt    string                `json:"updated_at"`
}

func toBookingResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:    b.ID,
		BusinessID:   b.BusinessID,
		ServiceID:    b.ServiceID,
		ResourceID:   b.ResourceID,
		CustomerID:   b.CustomerID,
		StartTime:    formatTime(b.Start),
		EndTime:      formatTime(b.End),
		Status:       string(b.Status),
		Policy:       b.PolicySnapshot,
		Metadata:     b.Metadata,
		Notes:        b.Notes,
		CancelledAt:  formatOptionalTime(b.CancelledAt),
		CancelReason: b.CancelReason,
		CreatedAt:    formatTime(b.CreatedAt),
		UpdatedAt:    formatTime(b.UpdatedAt),
	}
	if p := b.PriceSnapshot; p != nil {
		resp.Price = &priceResponse{
			BasePrice:     p.BasePrice,
			FinalPrice:    p.FinalPrice,
			TotalModifier: p.TotalModifier,
			Currency:      p.Currency,
			AppliedRules:  p.AppliedRules,
		}
	}
	return resp
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, problem := req.toInput()
	if problem != "" {
		http.Error(w, problem, http.StatusBadRequest)
		return
	}

	b, err := h.engine.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err, "failed to create booking")
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(*b))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id := queryParam(r, "booking_id")
	if id == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}
	b, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "failed to load booking")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(*b))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	businessID := strings.TrimSpace(r.Header.Get("X-Business-Id"))
	if businessID == "" {
		businessID = queryParam(r, "business_id")
	}
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	from, err := parseOptionalTime(queryParam(r, "from"))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := parseOptionalTime(queryParam(r, "to"))
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	status := model.BookingStatus(queryParam(r, "status"))
	if status != "" && !status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	bookings, err := h.engine.List(r.Context(), store.BookingFilter{
		BusinessID: businessID,
		ResourceID: queryParam(r, "resource_id"),
		CustomerID: queryParam(r, "customer_id"),
		Status:     status,
		From:       from,
		To:         to,
		Limit:      parseLimit(r, 50, 200),
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to list bookings")
		return
	}
	items := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type historyItem struct {
	Field     string `json:"field"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id := queryParam(r, "booking_id")
	if id == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}
	rows, err := h.engine.History(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "failed to load booking history")
		return
	}
	items := make([]historyItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, historyItem{
			Field:     row.Field,
			OldValue:  row.OldValue,
			NewValue:  row.NewValue,
			Actor:     row.Actor,
			Reason:    row.Reason,
			CreatedAt: formatTime(row.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking_id": id, "items": items})
}

type transitionRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason"`
}

func (h *BookingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	to := model.BookingStatus(strings.TrimSpace(req.Status))
	if req.BookingID == "" || !to.Valid() {
		http.Error(w, "booking_id and a valid status required", http.StatusBadRequest)
		return
	}

	b, err := h.engine.Transition(r.Context(), booking.TransitionInput{
		BookingID: req.BookingID,
		To:        to,
		Actor:     actorOr(req.Actor, "staff"),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to change booking status")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(*b))
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req cancelBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	b, err := h.engine.Cancel(r.Context(), req.BookingID, actorOr(req.Actor, "customer"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, h.logger, err, "failed to cancel booking")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(*b))
}

type rescheduleRequest struct {
	BookingID  string `json:"booking_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	ResourceID string `json:"resource_id"`
	Actor      string `json:"actor"`
	Reason     string `json:"reason"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := parseOptionalTime(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}

	b, err := h.engine.Reschedule(r.Context(), booking.RescheduleInput{
		BookingID:  req.BookingID,
		Start:      start,
		End:        end,
		ResourceID: strings.TrimSpace(req.ResourceID),
		Actor:      actorOr(req.Actor, "customer"),
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to reschedule booking")
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(*b))
}
