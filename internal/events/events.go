package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the pipeline
const (
	// AudioRequested is emitted once a record is in the deck and its clips need audio
	AudioRequested = "audio_requested"

	// TranslationFailed is emitted when a word permanently failed translation
	TranslationFailed = "translation_failed"
)

// Event is a notification emitted by a pipeline stage.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type selects the handlers that receive the event
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates an Event with the specified type and payload.
func NewEvent(eventType string, payload any) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}, nil
}

// Handler processes events of the types it subscribed to.
type Handler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent implements Handler
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Emitter publishes events to subscribed handlers.
type Emitter interface {
	// Emit delivers the event synchronously and returns the first handler error.
	Emit(ctx context.Context, event *Event) error
}
