// Package bus carries squad lifecycle events between the bridge and its
// subscribers, either in process or over NATS.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kandev/squad-bridge/internal/common/logger"
)

// Event is one lifecycle notification. Type doubles as the subject it is
// published on; CorrelationID ties it to the API request that caused it.
type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Source        string                 `json:"source"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Data          map[string]interface{} `json:"data"`
}

// NewEvent stamps a new event with a UUID and the current time.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// NewEventFromContext is NewEvent plus the correlation ID found in ctx.
func NewEventFromContext(ctx context.Context, eventType, source string, data map[string]interface{}) *Event {
	e := NewEvent(eventType, source, data)
	if id, ok := ctx.Value(logger.CorrelationIDKey).(string); ok {
		e.CorrelationID = id
	}
	return e
}

// HandlerContext is the context a handler receives for e. It is detached
// from the publisher's context, which may be a finished HTTP request, and
// carries only the correlation ID.
func (e *Event) HandlerContext() context.Context {
	ctx := context.Background()
	if e.CorrelationID != "" {
		ctx = context.WithValue(ctx, logger.CorrelationIDKey, e.CorrelationID)
	}
	return ctx
}

// EventHandler consumes one event. Returned errors are logged by the bus.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription is a live subscription; *nats.Subscription satisfies it.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus publishes events and fans them out to subscribers. Subscribe
// patterns use NATS wildcards: * matches one token, > the remainder.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler EventHandler) (Subscription, error)
	Close()
	IsConnected() bool
}
