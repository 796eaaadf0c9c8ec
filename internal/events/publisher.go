package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	SubjectMessageCreated      = "chat.message.created"
	SubjectMessageDeleted      = "chat.message.deleted"
	SubjectNotificationCreated = "notification.created"
	SubjectPostCreated         = "post.created"
	SubjectPostLiked           = "post.liked"
)

// Publisher emits domain events to a broker. Publishing is best effort; the
// request that produced an event never fails because of it.
type Publisher interface {
	Publish(ctx context.Context, subject, key string, payload interface{}) error
	Close() error
}

// Envelope is the JSON body of every event.
type Envelope struct {
	Subject    string          `json:"subject"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func encode(subject, key string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", subject, err)
	}
	return json.Marshal(Envelope{Subject: subject, Key: key, OccurredAt: time.Now().UTC(), Data: data})
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, interface{}) error { return nil }
func (Nop) Close() error { return nil }

// New picks a backend by name: "kafka", "nats", or anything else for Nop.
func New(backend string, kafkaBrokers []string, natsURL string) (Publisher, error) {
	switch backend {
	case "kafka":
		if len(kafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS is required for the kafka events backend")
		}
		return NewKafkaPublisher(kafkaBrokers), nil
	case "nats":
		return NewNatsPublisher(natsURL)
	default:
		return Nop{}, nil
	}
}
