package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaDispatcher writes straight to Kafka. It backs the in-memory store, which has no
// outbox table to stage events in.
type KafkaDispatcher struct {
	writer messageWriter
}

func NewKafkaDispatcher(w *kafka.Writer) *KafkaDispatcher {
	return &KafkaDispatcher{writer: w}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToKafka(ctx, uuid.NewString(), m))
	}
	return d.writer.WriteMessages(ctx, out...)
}

// ToKafka builds the wire message: keyed by aggregate id, with event metadata and trace
// context headers.
func ToKafka(ctx context.Context, eventID string, m Message) kafka.Message {
	headers := kafkax.MetaHeaders(kafkax.EventMeta{EventID: eventID, EventType: m.Topic, AggregateType: m.AggregateType})
	return kafka.Message{
		Topic:   m.Topic,
		Key:     []byte(m.AggregateID),
		Value:   m.Payload,
		Headers: kafkax.InjectTraceHeaders(ctx, headers),
	}
}
