package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/waitlist"
)

type WaitlistHandler struct {
	svc    *waitlist.Service
	logger *slog.Logger
}

func NewWaitlistHandler(svc *waitlist.Service, logger *slog.Logger) *WaitlistHandler {
	return &WaitlistHandler{svc: svc, logger: logger}
}

type joinWaitlistRequest struct {
	BusinessID     string `json:"business_id"`
	ServiceID      string `json:"service_id"`
	CustomerID     string `json:"customer_id"`
	PreferredDate  string `json:"preferred_date"`
	PreferredStart string `json:"preferred_start"`
	PreferredEnd   string `json:"preferred_end"`
	Priority       string `json:"priority"`
	Notes          string `json:"notes"`
}

type waitlistEntryResponse struct {
	EntryID            string `json:"entry_id"`
	BusinessID         string `json:"business_id"`
	ServiceID          string `json:"service_id,omitempty"`
	CustomerID         string `json:"customer_id"`
	PreferredDate      string `json:"preferred_date,omitempty"`
	PreferredStart     string `json:"preferred_start,omitempty"`
	PreferredEnd       string `json:"preferred_end,omitempty"`
	Status             string `json:"status"`
	Priority           string `json:"priority"`
	NotificationCount  int    `json:"notification_count"`
	NotifiedAt         string `json:"notified_at,omitempty"`
	ResponseDeadline   string `json:"response_deadline,omitempty"`
	ConvertedBookingID string `json:"converted_booking_id,omitempty"`
	Notes              string `json:"notes,omitempty"`
	CreatedAt          string `json:"created_at"`
}

func toEntryResponse(e model.WaitlistEntry) waitlistEntryResponse {
	resp := waitlistEntryResponse{
		EntryID:            e.ID,
		BusinessID:         e.BusinessID,
		ServiceID:          e.ServiceID,
		CustomerID:         e.CustomerID,
		Status:             string(e.Status),
		Priority:           string(e.Priority),
		NotificationCount:  e.NotificationCount,
		NotifiedAt:         formatOptionalTime(e.NotifiedAt),
		ConvertedBookingID: e.ConvertedBookingID,
		Notes:              e.Notes,
		CreatedAt:          formatTime(e.CreatedAt),
	}
	if e.PreferredDate != nil {
		resp.PreferredDate = e.PreferredDate.Format("2006-01-02")
	}
	if e.PreferredStart != nil && e.PreferredEnd != nil {
		resp.PreferredStart = calendar.Clock(*e.PreferredStart).String()
		resp.PreferredEnd = calendar.Clock(*e.PreferredEnd).String()
	}
	if !e.ResponseDeadline.IsZero() {
		resp.ResponseDeadline = formatTime(e.ResponseDeadline)
	}
	return resp
}

func (req joinWaitlistRequest) toInput() (waitlist.JoinInput, string) {
	in := waitlist.JoinInput{
		BusinessID: strings.TrimSpace(req.BusinessID),
		ServiceID:  strings.TrimSpace(req.ServiceID),
		CustomerID: strings.TrimSpace(req.CustomerID),
		Priority:   model.WaitlistPriority(strings.TrimSpace(req.Priority)),
		Notes:      strings.TrimSpace(req.Notes),
	}
	if in.BusinessID == "" || in.CustomerID == "" {
		return in, "business_id and customer_id required"
	}
	if raw := strings.TrimSpace(req.PreferredDate); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			return in, "invalid preferred_date (use YYYY-MM-DD)"
		}
		in.PreferredDate = &d
	}
	if raw := strings.TrimSpace(req.PreferredStart); raw != "" {
		c, err := calendar.ParseClock(raw)
		if err != nil {
			return in, "invalid preferred_start (use HH:mm)"
		}
		v := int(c)
		in.PreferredStart = &v
	}
	if raw := strings.TrimSpace(req.PreferredEnd); raw != "" {
		c, err := calendar.ParseClock(raw)
		if err != nil {
			return in, "invalid preferred_end (use HH:mm)"
		}
		v := int(c)
		in.PreferredEnd = &v
	}
	return in, ""
}

func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req joinWaitlistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, problem := req.toInput()
	if problem != "" {
		http.Error(w, problem, http.StatusBadRequest)
		return
	}
	e, err := h.svc.Join(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err, "failed to join waitlist")
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(*e))
}

func (h *WaitlistHandler) List(w http.ResponseWriter, r *http.Request) {
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
	entries, err := h.svc.List(r.Context(), businessID, model.WaitlistStatus(queryParam(r, "status")), parseLimit(r, 50, 200))
	if err != nil {
		writeError(w, h.logger, err, "failed to list waitlist")
		return
	}
	items := make([]waitlistEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *WaitlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id := queryParam(r, "entry_id")
	if id == "" {
		http.Error(w, "entry_id required", http.StatusBadRequest)
		return
	}
	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "failed to load waitlist entry")
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(*e))
}

// Next previews the entry that would be notified for a freed slot on date.
func (h *WaitlistHandler) Next(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	businessID, serviceID := queryParam(r, "business_id"), queryParam(r, "service_id")
	if businessID == "" || serviceID == "" {
		http.Error(w, "business_id and service_id required", http.StatusBadRequest)
		return
	}
	date, err := calendar.ParseDate(queryParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date (use YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	e, err := h.svc.NextToNotify(r.Context(), businessID, serviceID, date)
	if err != nil {
		writeError(w, h.logger, err, "failed to select waitlist entry")
		return
	}
	if e == nil {
		http.Error(w, "no waiting customer", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(*e))
}

type entryRequest struct {
	EntryID string `json:"entry_id"`
}

func (h *WaitlistHandler) Notify(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, "failed to notify waitlist entry", h.svc.Notify)
}

func (h *WaitlistHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, "failed to cancel waitlist entry", h.svc.Cancel)
}

func (h *WaitlistHandler) entryAction(w http.ResponseWriter, r *http.Request, failure string,
	action func(ctx context.Context, id string) (*model.WaitlistEntry, error)) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req entryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.EntryID = strings.TrimSpace(req.EntryID)
	if req.EntryID == "" {
		http.Error(w, "entry_id required", http.StatusBadRequest)
		return
	}
	e, err := action(r.Context(), req.EntryID)
	if err != nil {
		writeError(w, h.logger, err, failure)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(*e))
}

type convertRequest struct {
	EntryID    string            `json:"entry_id"`
	ServiceID  string            `json:"service_id"`
	ResourceID string            `json:"resource_id"`
	StartTime  string            `json:"start_time"`
	EndTime    string            `json:"end_time"`
	Metadata   map[string]string `json:"metadata"`
	Notes      string            `json:"notes"`
	Actor      string            `json:"actor"`
}

// Convert books the offered slot for a notified entry.
func (h *WaitlistHandler) Convert(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req convertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.EntryID = strings.TrimSpace(req.EntryID)
	if req.EntryID == "" {
		http.Error(w, "entry_id required", http.StatusBadRequest)
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

	b, e, err := h.svc.Convert(r.Context(), req.EntryID, booking.CreateInput{
		ServiceID:  strings.TrimSpace(req.ServiceID),
		ResourceID: strings.TrimSpace(req.ResourceID),
		Start:      start,
		End:        end,
		Metadata:   req.Metadata,
		Notes:      strings.TrimSpace(req.Notes),
		Actor:      actorOr(req.Actor, "waitlist:"+req.EntryID),
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to convert waitlist entry")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"booking": toBookingResponse(*b),
		"entry":   toEntryResponse(*e),
	})
}

// Sweep expires overdue notified entries now. Cron jobs call it when the in-process
// sweeper is disabled.
func (h *WaitlistHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	n, err := h.svc.ExpireDue(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "failed to sweep waitlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}
