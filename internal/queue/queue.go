// Package queue moves delivery tasks between processes over NSQ. The
// dispatcher publishes tasks; worker processes consume them and run the
// attempt executor. Single-process deployments skip this package entirely
// and use the engine's in-process transport.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"

	"github.com/menucast/outhook/internal/webhook"
)

// Transport publishes delivery tasks to an NSQ topic. It satisfies
// webhook.Transport.
type Transport struct {
	producer *nsq.Producer
	topic    string
}

// NewTransport connects a producer to nsqd at addr.
func NewTransport(addr, topic string) (*Transport, error) {
	p, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer: %w", err)
	}
	return &Transport{producer: p, topic: topic}, nil
}

// Deliver publishes the task. Publish is a local, fast operation; the HTTP
// attempt happens in whatever worker consumes the topic.
func (t *Transport) Deliver(_ context.Context, task webhook.Task) error {
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := t.producer.Publish(t.topic, b); err != nil {
		return fmt.Errorf("nsq publish: %w", err)
	}
	return nil
}

// Stop flushes and stops the underlying producer.
func (t *Transport) Stop() {
	t.producer.Stop()
}

// Consumer subscribes a worker to the deliveries topic and hands each task
// to the handler. Tasks that fail to decode are finished, not requeued:
// retrying a malformed payload can never succeed.
type Consumer struct {
	consumer *nsq.Consumer
}

// NewConsumer builds a consumer on topic/channel invoking handle per task.
func NewConsumer(topic, channel string, maxInFlight int, handle func(ctx context.Context, t webhook.Task)) (*Consumer, error) {
	conf := nsq.NewConfig()
	if maxInFlight > 0 {
		conf.MaxInFlight = maxInFlight
	}
	c, err := nsq.NewConsumer(topic, channel, conf)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer: %w", err)
	}
	c.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		var task webhook.Task
		if err := json.Unmarshal(m.Body, &task); err != nil {
			m.Finish()
			return nil
		}
		// The executor owns all retry decisions through the ledger, so the
		// message is always finished here; NSQ-level requeue would fight
		// the backoff schedule.
		handle(context.Background(), task)
		m.Finish()
		return nil
	}))
	return &Consumer{consumer: c}, nil
}

// Connect joins nsqd directly and discovers peers through lookupd. The
// direct connection forces channel creation instead of waiting for the first
// publish.
func (c *Consumer) Connect(nsqdTCPAddr, lookupHTTPAddr string) error {
	if err := c.consumer.ConnectToNSQD(nsqdTCPAddr); err != nil {
		return fmt.Errorf("connect to nsqd: %w", err)
	}
	if err := c.consumer.ConnectToNSQLookupd(lookupHTTPAddr); err != nil {
		return fmt.Errorf("connect to lookupd: %w", err)
	}
	return nil
}

// Stop begins a graceful shutdown and blocks until it completes.
func (c *Consumer) Stop() {
	c.consumer.Stop()
	<-c.consumer.StopChan
}
