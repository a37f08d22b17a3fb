package outbox

import "github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/dispatch"

// Event is a row to stage in outbox_events. EventType doubles as the Kafka topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func FromMessage(m dispatch.Message) Event {
	return Event{
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		EventType:     m.Topic,
		Payload:       m.Payload,
	}
}
