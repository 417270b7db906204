// Package events delivers domain change messages to an external bus.
// Callers hand a Message to a Dispatcher, which publishes it off the request
// path through one of the Publisher transports.
package events

import (
	"context"
	"time"
)

// Message is a serialized event ready for a transport.
type Message struct {
	ID         string
	Type       string
	Key        string
	OccurredAt time.Time
	Body       []byte
}

// Publisher sends a message to the named topic (queue or channel).
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Name() string
	Close() error
}
