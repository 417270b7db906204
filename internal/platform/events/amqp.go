package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmation is the broker's answer for one published message.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

// confirmChannel publishes through the default exchange and hands back the
// confirmation bound to that message's delivery tag.
type confirmChannel struct {
	*amqp.Channel
}

func (c confirmChannel) publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("channel is not in confirm mode")
	}
	return dc, nil
}

// AMQPPublisher publishes to durable RabbitMQ queues through the default
// exchange and waits for the broker to confirm each message.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	declared map[string]bool
}

func NewAMQPPublisher(url string, topics ...string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	p := newAMQPPublisher(confirmChannel{ch})
	p.conn = conn
	for _, topic := range topics {
		if err := p.declare(topic); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func newAMQPPublisher(ch amqpChannel) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, declared: make(map[string]bool)}
}

// declare must be called with mu held or before the publisher is shared.
func (p *AMQPPublisher) declare(queue string) error {
	if p.declared[queue] {
		return nil
	}
	if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	p.declared[queue] = true
	return nil
}

// Publish returns once the broker has acked the message. A nack, a closed
// channel or ctx expiring first is an error for this message only.
func (p *AMQPPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    msg.OccurredAt,
		Body:         msg.Body,
	}
	if msg.Key != "" {
		pub.Headers = amqp.Table{"key": msg.Key}
	}

	p.mu.Lock()
	if err := p.declare(topic); err != nil {
		p.mu.Unlock()
		return err
	}
	confirm, err := p.ch.publish(ctx, topic, pub)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.ID, topic, err)
	}
	if !acked {
		return fmt.Errorf("publish %s to %s: broker nacked message", msg.ID, topic)
	}
	return nil
}

func (p *AMQPPublisher) Name() string { return "amqp" }

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
