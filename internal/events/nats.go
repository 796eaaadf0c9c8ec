package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsPublisher publishes each event on the subject of the same name.
type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(url string) (*NatsPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("socio"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{nc: nc}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, subject, key string, payload interface{}) error {
	b, err := encode(subject, key, payload)
	if err != nil {
		return err
	}
	return p.nc.Publish(subject, b)
}

// Subscribe delivers raw envelopes published on subject. Used by consumers and tests.
func (p *NatsPublisher) Subscribe(subject string, handler func(Envelope)) (*nats.Subscription, error) {
	return p.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err == nil {
			handler(env)
		}
	})
}

func (p *NatsPublisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}
