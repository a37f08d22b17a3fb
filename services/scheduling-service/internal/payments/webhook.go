// Package payments turns payment provider signals into booking transitions.
package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const actor = "payments:stripe"

// Bookings is the part of the booking engine the webhook drives.
type Bookings interface {
	Get(ctx context.Context, id string) (*model.Booking, error)
	Confirm(ctx context.Context, id, actor string) (*model.Booking, error)
	Cancel(ctx context.Context, id, actor, reason string) (*model.Booking, error)
}

type Webhook struct {
	bookings  Bookings
	logger    *slog.Logger
	secret    string
	tolerance time.Duration
}

func NewWebhook(bookings Bookings, logger *slog.Logger, secret string, tolerance time.Duration) *Webhook {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Webhook{bookings: bookings, logger: logger, secret: secret, tolerance: tolerance}
}

type outcome int

const (
	outcomeIgnore outcome = iota
	outcomePaid
	outcomeFailed
)

// ServeHTTP handles Stripe webhooks. The signature is the authentication.
// pending_payment bookings are confirmed on success and cancelled on failure.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	bookingID, result := classify(evt)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"booking_id", bookingID,
	)
	if result == outcomeIgnore || bookingID == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ctx := r.Context()
	cur, err := h.bookings.Get(ctx, bookingID)
	if apperr.IsNotFound(err) {
		h.logger.Warn("payment event for unknown booking", "booking_id", bookingID, "provider_event_id", evt.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	// Replays and late signals for bookings already past payment are acknowledged.
	if cur.Status != model.StatusPendingPayment && cur.Status != model.StatusPending {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "booking_status": string(cur.Status)})
		return
	}

	var b *model.Booking
	if result == outcomePaid {
		b, err = h.bookings.Confirm(ctx, bookingID, actor)
	} else {
		b, err = h.bookings.Cancel(ctx, bookingID, actor, "payment failed: "+evtType)
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "booking_status": string(b.Status)})
	case apperr.IsConflict(err) || apperr.IsBadRequest(err):
		// The slot was lost or the booking moved on; retries would not help.
		h.logger.Warn("payment event could not be applied", "booking_id", bookingID, "err", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected", "error": err.Error()})
	default:
		h.logger.Error("payment event failed", "booking_id", bookingID, "err", err)
		http.Error(w, "failed to apply payment event", http.StatusInternalServerError)
	}
}

func classify(evt stripe.Event) (string, outcome) {
	switch evt.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return "", outcomeIgnore
		}
		id := strings.TrimSpace(pi.Metadata["booking_id"])
		if evt.Type == "payment_intent.succeeded" {
			return id, outcomePaid
		}
		return id, outcomeFailed
	case "checkout.session.completed", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return "", outcomeIgnore
		}
		id := strings.TrimSpace(session.Metadata["booking_id"])
		if id == "" {
			id = strings.TrimSpace(session.ClientReferenceID)
		}
		if evt.Type == "checkout.session.completed" {
			if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
				return id, outcomeIgnore
			}
			return id, outcomePaid
		}
		return id, outcomeFailed
	}
	return "", outcomeIgnore
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
