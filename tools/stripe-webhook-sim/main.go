// Command stripe-webhook-sim signs a fake Stripe event for a booking and posts it to
// the scheduling service, so the payment lifecycle can be exercised without Stripe.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookPath = "/api/v1/webhooks/stripe"

type options struct {
	baseURL   string
	eventType string
	bookingID string
	secret    string
	unpaid    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "stripe-webhook-sim",
		Short:         "Send a signed Stripe payment event for a booking",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.DefaultClient, o, time.Now().UTC())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.baseURL, "base-url", config.String("BASE_URL", "http://localhost:8083"), "scheduling service base url")
	f.StringVar(&o.eventType, "type", config.String("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type")
	f.StringVar(&o.bookingID, "booking-id", config.String("BOOKING_ID", ""), "booking_id metadata")
	f.StringVar(&o.secret, "secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "webhook signing secret (whsec_...)")
	f.BoolVar(&o.unpaid, "unpaid", false, "mark a completed checkout session as unpaid")
	return cmd
}

func run(out io.Writer, client *http.Client, o options, now time.Time) error {
	if strings.TrimSpace(o.secret) == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(o.bookingID) == "" {
		return fmt.Errorf("BOOKING_ID is required")
	}

	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), o.eventType, now, o.bookingID, o.unpaid)
	if err != nil {
		return err
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    o.secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(o.baseURL, "/")+webhookPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Fprintf(out, "status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	return nil
}

func buildEventJSON(eventID, eventType string, t time.Time, bookingID string, unpaid bool) ([]byte, error) {
	var object map[string]any
	switch eventType {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		status := "succeeded"
		if eventType != "payment_intent.succeeded" {
			status = "canceled"
		}
		object = map[string]any{
			"id":       "pi_test_123",
			"object":   "payment_intent",
			"status":   status,
			"metadata": map[string]any{"booking_id": bookingID},
		}
	case "checkout.session.completed", "checkout.session.expired":
		paymentStatus := "paid"
		if unpaid || eventType == "checkout.session.expired" {
			paymentStatus = "unpaid"
		}
		object = map[string]any{
			"id":                  "cs_test_123",
			"object":              "checkout.session",
			"payment_status":      paymentStatus,
			"client_reference_id": bookingID,
			"metadata":            map[string]any{"booking_id": bookingID},
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}
