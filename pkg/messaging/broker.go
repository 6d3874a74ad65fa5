package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Broker is a fire-and-forget pub/sub transport. Subscribe's channel closes
// when ctx ends.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope published for every digest event. ID lets
// subscribers drop redeliveries.
type Message struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewMessage(msgType string, payload interface{}) Message {
	return Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
