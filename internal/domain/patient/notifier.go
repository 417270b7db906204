package patient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patientcare/patient-service/internal/platform/events"
	"github.com/patientcare/patient-service/internal/platform/validation"
)

// EventCreated is the event type sent when a patient is registered.
const EventCreated = "PATIENT_CREATED"

// ChangeNotifier announces patient changes. It never reports failure to
// the caller and must not block on delivery.
type ChangeNotifier interface {
	PatientCreated(ctx context.Context, p *Patient)
}

// EventDispatcher is satisfied by *events.Dispatcher.
type EventDispatcher interface {
	Dispatch(ctx context.Context, topic string, msg events.Message) bool
}

type eventPayload struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	DateOfBirth    string `json:"date_of_birth"`
	RegisteredDate string `json:"registered_date"`
}

type eventEnvelope struct {
	EventID    string       `json:"event_id"`
	EventType  string       `json:"event_type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Patient    eventPayload `json:"patient"`
}

// EventNotifier turns patient changes into events on a topic.
type EventNotifier struct {
	dispatcher EventDispatcher
	topic      string
	logger     zerolog.Logger
}

func NewEventNotifier(d EventDispatcher, topic string, logger zerolog.Logger) *EventNotifier {
	return &EventNotifier{dispatcher: d, topic: topic, logger: logger}
}

func (n *EventNotifier) PatientCreated(ctx context.Context, p *Patient) {
	env := eventEnvelope{
		EventID:    uuid.NewString(),
		EventType:  EventCreated,
		OccurredAt: time.Now().UTC(),
		Patient: eventPayload{
			ID:             p.ID.String(),
			Name:           p.Name,
			Email:          p.Email,
			Address:        p.Address,
			DateOfBirth:    p.DateOfBirth.Format(validation.DateLayout),
			RegisteredDate: p.RegisteredDate.Format(validation.DateLayout),
		},
	}

	body, err := json.Marshal(env)
	if err != nil {
		n.logger.Error().Err(err).Str("patient_id", p.ID.String()).Msg("encode patient event")
		return
	}

	n.dispatcher.Dispatch(ctx, n.topic, events.Message{
		ID:         env.EventID,
		Type:       env.EventType,
		Key:        env.Patient.ID,
		OccurredAt: env.OccurredAt,
		Body:       body,
	})
}
