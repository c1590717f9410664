package shared

import (
	"context"
	"time"
)

// EventHandler reacts to domain events such as a completed batch.
// Returning an error asks the bus to deliver the event again.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the accepted event types; empty means every type
	EventTypes() []string
}

// EventPublisher hands events to the bus once the producing transaction committed
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// DelayedPublisher delivers event after delay, at least once and unordered
// relative to other events.
type DelayedPublisher interface {
	PublishDelayed(ctx context.Context, delay time.Duration, event DomainEvent) error
}

// EventSubscriber manages handler registrations. Subscribing without event
// types registers a handler for all of them.
type EventSubscriber interface {
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus is the in-process transport between the batch repository and the
// completion workflow.
type EventBus interface {
	EventPublisher
	DelayedPublisher
	EventSubscriber
	// Start launches the delivery workers; Stop drains them until ctx expires
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
