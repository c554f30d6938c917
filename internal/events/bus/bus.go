// Package bus provides the Event Bus abstraction: at-least-once
// publish/subscribe with correlated request/response for cross-service RPC
// patterns such as discussion.command.create / discussion.response.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a message published on the bus. CorrelationID ties a response
// back to the request that triggered it for Request/response call patterns;
// it is empty for fire-and-forget publications.
type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Source        string                 `json:"source"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Data          map[string]interface{} `json:"data"`
}

// NewEvent creates a new Event with a generated id and current timestamp.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler processes a received Event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the Event Bus contract consumed by the Discussion Orchestrator
// and by peer services (agent-generation, LLM inference).
type EventBus interface {
	// Publish sends an event to a subject. Delivery is at-least-once; the
	// order in which handlers receive events is not guaranteed (the in-memory
	// bus invokes each handler on its own goroutine).
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe creates a subscription to a subject pattern.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// QueueSubscribe creates a load-balanced subscription: only one member
	// of the named queue group receives each matching event.
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)

	// Request publishes an event and waits up to timeout for a correlated
	// response. Returns a "Request timeout" error if none arrives.
	Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error)

	// Close releases the underlying connection.
	Close()

	// IsConnected reports whether the bus can currently deliver events.
	IsConnected() bool
}

// RequestTimeoutError is returned by Request when no correlated response
// arrives within the deadline.
type RequestTimeoutError struct {
	RequestID string
}

func (e *RequestTimeoutError) Error() string {
	return "Request timeout: " + e.RequestID
}
