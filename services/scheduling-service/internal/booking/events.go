package booking

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

const aggregateBooking = "booking"

type bookingPayload struct {
	BookingID  string            `json:"booking_id"`
	BusinessID string            `json:"business_id"`
	ServiceID  string            `json:"service_id,omitempty"`
	ResourceID string            `json:"resource_id,omitempty"`
	CustomerID string            `json:"customer_id,omitempty"`
	Status     string            `json:"status"`
	StartTime  string            `json:"start_time"`
	EndTime    string            `json:"end_time"`
	FinalPrice *int64            `json:"final_price,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type statusChangedPayload struct {
	bookingPayload
	OldStatus string `json:"old_status"`
	Actor     string `json:"actor,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type rescheduledPayload struct {
	bookingPayload
	OldStartTime  string `json:"old_start_time"`
	OldEndTime    string `json:"old_end_time"`
	OldResourceID string `json:"old_resource_id,omitempty"`
}

type reminderPayload struct {
	BookingID     string `json:"booking_id"`
	BusinessID    string `json:"business_id"`
	CustomerID    string `json:"customer_id,omitempty"`
	ServiceID     string `json:"service_id,omitempty"`
	ResourceID    string `json:"resource_id,omitempty"`
	RemindAt      string `json:"remind_at"`
	OffsetMinutes int    `json:"offset_minutes"`
	StartTime     string `json:"start_time"`
}

func payloadOf(b model.Booking) bookingPayload {
	p := bookingPayload{
		BookingID:  b.ID,
		BusinessID: b.BusinessID,
		ServiceID:  b.ServiceID,
		ResourceID: b.ResourceID,
		CustomerID: b.CustomerID,
		Status:     string(b.Status),
		StartTime:  b.Start.UTC().Format(time.RFC3339),
		EndTime:    b.End.UTC().Format(time.RFC3339),
		Metadata:   b.Metadata,
	}
	if b.PriceSnapshot != nil {
		price := b.PriceSnapshot.FinalPrice
		p.FinalPrice = &price
		p.Currency = b.PriceSnapshot.Currency
	}
	return p
}

// messages collects side effects for one transaction. A marshal failure drops the
// message and is logged by the engine after commit.
type messages struct {
	out  []dispatch.Message
	errs []error
}

func (m *messages) add(topic string, b model.Booking, payload any) {
	msg, err := dispatch.NewMessage(topic, aggregateBooking, b.ID, payload)
	if err != nil {
		m.errs = append(m.errs, err)
		return
	}
	m.out = append(m.out, msg)
}

// reminders queues one reminder per offset whose send time is still after now.
func (m *messages) reminders(b model.Booking, offsets []time.Duration, now time.Time) {
	for _, offset := range offsets {
		remindAt := b.Start.Add(-offset)
		if !remindAt.After(now) {
			continue
		}
		m.add(dispatch.TopicReminderRequested, b, reminderPayload{
			BookingID:     b.ID,
			BusinessID:    b.BusinessID,
			CustomerID:    b.CustomerID,
			ServiceID:     b.ServiceID,
			ResourceID:    b.ResourceID,
			RemindAt:      remindAt.UTC().Format(time.RFC3339),
			OffsetMinutes: int(offset / time.Minute),
			StartTime:     b.Start.UTC().Format(time.RFC3339),
		})
	}
}

func (m *messages) confirmed(b model.Booking, offsets []time.Duration, now time.Time) {
	m.add(dispatch.TopicBookingConfirmed, b, payloadOf(b))
	m.reminders(b, offsets, now)
}
