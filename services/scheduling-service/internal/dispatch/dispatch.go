// Package dispatch hands committed side effects (reminders, waitlist notifications,
// lifecycle events) to the external dispatcher. Delivery is best effort.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Topic names. The Kafka topic equals the event type.
const (
	TopicBookingCreated        = "booking.created.v1"
	TopicBookingConfirmed      = "booking.confirmed.v1"
	TopicBookingRescheduled    = "booking.rescheduled.v1"
	TopicBookingCancelled      = "booking.cancelled.v1"
	TopicBookingStatusChanged  = "booking.status_changed.v1"
	TopicReminderRequested     = "booking.reminder.requested.v1"
	TopicWaitlistNotifyRequest = "waitlist.notification.requested.v1"
)

type Message struct {
	Topic         string
	AggregateType string
	AggregateID   string
	Payload       []byte
}

// NewMessage marshals payload as JSON.
func NewMessage(topic, aggregateType, aggregateID string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, AggregateType: aggregateType, AggregateID: aggregateID, Payload: body}, nil
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msgs ...Message) error
}

// LogDispatcher only logs messages. Used when no broker or database is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, msgs ...Message) error {
	for _, m := range msgs {
		d.Logger.InfoContext(ctx, "dispatch", "topic", m.Topic, "aggregate_id", m.AggregateID, "payload", string(m.Payload))
	}
	return nil
}

// Recorder keeps dispatched messages in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	Err  error
}

func (r *Recorder) Dispatch(_ context.Context, msgs ...Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Topic returns recorded messages with the given topic.
func (r *Recorder) Topic(topic string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
