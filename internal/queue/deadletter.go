package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/menucast/outhook/internal/webhook"
)

// DeadLetterType tags dead-letter envelopes on the wire.
const DeadLetterType = "delivery.dead"

// DeadLetter is the envelope published when a delivery exhausts every
// attempt, for downstream alerting or archival.
type DeadLetter struct {
	Type           string        `json:"type"`    // "delivery.dead"
	Version        string        `json:"version"` // schema version
	At             string        `json:"at"`      // RFC3339 time the notice was emitted
	DeliveryID     string        `json:"delivery_id"`
	EventID        string        `json:"event_id"`
	OrganizationID string        `json:"organization_id"`
	EndpointID     string        `json:"endpoint_id"`
	EventType      string        `json:"event_type"`
	Attempts       int           `json:"attempts"`
	HTTPStatus     int           `json:"http_status,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	Payload        webhook.Event `json:"payload"` // full event snapshot
}

// NewDeadLetter snapshots an exhausted delivery.
func NewDeadLetter(d *webhook.Delivery) DeadLetter {
	return DeadLetter{
		Type:           DeadLetterType,
		Version:        "v1",
		At:             time.Now().Format(time.RFC3339Nano),
		DeliveryID:     d.ID,
		EventID:        d.EventID,
		OrganizationID: d.OrganizationID,
		EndpointID:     d.EndpointID,
		EventType:      string(d.EventType),
		Attempts:       d.Attempts,
		HTTPStatus:     d.HTTPStatus,
		LastError:      d.ErrorMessage,
		Payload:        d.Payload,
	}
}

// DeadLetterPublisher publishes DeadLetter envelopes to a topic. Wire it to
// the scheduler's OnExhausted hook.
type DeadLetterPublisher struct {
	producer *nsq.Producer
	topic    string
}

func NewDeadLetterPublisher(addr, topic string) (*DeadLetterPublisher, error) {
	p, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer: %w", err)
	}
	return &DeadLetterPublisher{producer: p, topic: topic}, nil
}

func (p *DeadLetterPublisher) Publish(d *webhook.Delivery) error {
	b, err := json.Marshal(NewDeadLetter(d))
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := p.producer.Publish(p.topic, b); err != nil {
		return fmt.Errorf("nsq publish: %w", err)
	}
	return nil
}

func (p *DeadLetterPublisher) Stop() {
	p.producer.Stop()
}
