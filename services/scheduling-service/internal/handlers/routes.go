package handlers

import "net/http"

// Register mounts the scheduling API on mux. webhook may be nil when payments are not
// configured.
func Register(mux *http.ServeMux, bookings *BookingHandler, waitlist *WaitlistHandler, webhook http.Handler) {
	mux.HandleFunc("/api/v1/public/availability", bookings.Availability)
	mux.HandleFunc("/api/v1/public/quote", bookings.Quote)
	mux.HandleFunc("/api/v1/public/book", bookings.Create)
	mux.HandleFunc("/api/v1/public/waitlist", waitlist.Join)

	mux.HandleFunc("/api/v1/bookings", bookings.List)
	mux.HandleFunc("/api/v1/bookings/get", bookings.Get)
	mux.HandleFunc("/api/v1/bookings/history", bookings.History)
	mux.HandleFunc("/api/v1/bookings/transition", bookings.Transition)
	mux.HandleFunc("/api/v1/bookings/cancel", bookings.Cancel)
	mux.HandleFunc("/api/v1/bookings/reschedule", bookings.Reschedule)

	mux.HandleFunc("/api/v1/waitlist", waitlist.List)
	mux.HandleFunc("/api/v1/waitlist/get", waitlist.Get)
	mux.HandleFunc("/api/v1/waitlist/next", waitlist.Next)
	mux.HandleFunc("/api/v1/waitlist/notify", waitlist.Notify)
	mux.HandleFunc("/api/v1/waitlist/convert", waitlist.Convert)
	mux.HandleFunc("/api/v1/waitlist/cancel", waitlist.Cancel)
	mux.HandleFunc("/api/v1/waitlist/sweep", waitlist.Sweep)

	if webhook != nil {
		mux.Handle("/api/v1/webhooks/stripe", webhook)
	}
}
