package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the log instead of a broker. It backs
// local development when no bus is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, msg Message) error {
	p.logger.Info().
		Str("topic", topic).
		Str("event_id", msg.ID).
		Str("event_type", msg.Type).
		Str("key", msg.Key).
		RawJSON("body", msg.Body).
		Msg("event published")
	return nil
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Close() error { return nil }
