package shared

import "context"

// EventHandler reacts to relayed domain events. Delivery is at least once,
// so Handle must tolerate seeing the same event id twice.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the event types to receive. Empty means all of them.
	EventTypes() []string
}

// EventPublisher delivers events to whatever sits behind it: in-process
// handlers, a broker, or several sinks at once
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus is an in-process publisher with handler subscriptions
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
