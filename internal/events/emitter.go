package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEmitter dispatches events to handlers registered per event type.
// Delivery is synchronous, in subscription order.
type InMemoryEmitter struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

var _ Emitter = (*InMemoryEmitter)(nil)

// NewInMemoryEmitter creates an emitter with no subscriptions.
func NewInMemoryEmitter(logger *slog.Logger) *InMemoryEmitter {
	return &InMemoryEmitter{
		handlers: make(map[string][]Handler),
		logger:   logger.With("component", "event_emitter"),
	}
}

// Subscribe registers handler for events of the given type.
func (e *InMemoryEmitter) Subscribe(eventType string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], handler)
	e.logger.Debug("registered event handler",
		"event_type", eventType,
		"handler_count", len(e.handlers[eventType]))
}

// Emit publishes the event to every handler subscribed to its type.
// If any handler returns an error, the event is still delivered to the other
// handlers and the first error encountered is returned.
func (e *InMemoryEmitter) Emit(ctx context.Context, event *Event) error {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers[event.Type]))
	copy(handlers, e.handlers[event.Type])
	e.mu.RUnlock()

	if len(handlers) == 0 {
		e.logger.WarnContext(ctx, "no handlers registered for event",
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.ErrorContext(ctx, "handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
