package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/calendar"
)

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

type availabilityResponse struct {
	Date     string     `json:"date"`
	Timezone string     `json:"timezone"`
	IsClosed bool       `json:"is_closed"`
	Open     string     `json:"open,omitempty"`
	Close    string     `json:"close,omitempty"`
	Slots    []slotItem `json:"slots"`
}

// Availability lists the candidate slots of one civil day. Query: business_id, date
// (YYYY-MM-DD) and service_id and/or resource_id, optional duration_minutes.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	businessID := queryParam(r, "business_id")
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	date, err := calendar.ParseDate(queryParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date (use YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	var duration time.Duration
	if raw := queryParam(r, "duration_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		duration = time.Duration(n) * time.Minute
	}

	avail, err := h.engine.CheckAvailability(r.Context(), booking.AvailabilityQuery{
		BusinessID: businessID,
		ServiceID:  queryParam(r, "service_id"),
		ResourceID: queryParam(r, "resource_id"),
		Date:       date,
		Duration:   duration,
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to compute availability")
		return
	}

	resp := availabilityResponse{
		Date:     avail.Date.Format("2006-01-02"),
		Timezone: avail.Timezone,
		IsClosed: avail.IsClosed,
		Slots:    make([]slotItem, 0, len(avail.Slots)),
	}
	if !avail.IsClosed {
		resp.Open = avail.Open.String()
		resp.Close = avail.Close.String()
	}
	for _, s := range avail.Slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime: formatTime(s.Start),
			EndTime:   formatTime(s.End),
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Quote previews the price of a service at start_time without reserving.
func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	serviceID := queryParam(r, "service_id")
	if serviceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, queryParam(r, "start_time"))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	q, currency, err := h.engine.Quote(r.Context(), serviceID, start)
	if err != nil {
		writeError(w, h.logger, err, "failed to quote price")
		return
	}
	snap := q.Snapshot(currency)
	writeJSON(w, http.StatusOK, priceResponse{
		BasePrice:     snap.BasePrice,
		FinalPrice:    snap.FinalPrice,
		TotalModifier: snap.TotalModifier,
		Currency:      snap.Currency,
		AppliedRules:  snap.AppliedRules,
	})
}
