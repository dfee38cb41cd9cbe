// Package eventbus provides the in-process notification bus for envelope
// lifecycle events. Workers publish, observers subscribe; nothing in the
// pipeline depends on any particular subscriber being present.
//
// Delivery is fire-and-forget fan-out: every subscriber of an event type
// sees every published event, and a failing subscriber never stops the
// others or the publisher.
package eventbus

import (
	"context"
)

// Message is the protocol for all bus messages.
type Message interface {
	// Category returns the message category ("event").
	Category() string
}

// Handler is the protocol for message handlers.
type Handler interface {
	Handle(ctx context.Context, message Message) error
}

// HandlerFunc is a function type that implements Handler.
type HandlerFunc func(ctx context.Context, message Message) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, message Message) error {
	return f(ctx, message)
}

// Middleware intercepts messages before/after handling. Used for logging,
// metrics and failure protection.
type Middleware interface {
	// Before is called before a message is handled.
	// Returns the (possibly modified) message, or nil to abort processing.
	Before(ctx context.Context, message Message) (Message, error)

	// After is called after a message is handled.
	After(ctx context.Context, message Message, err error)
}

// Bus is the protocol for the notification bus.
type Bus interface {
	// Publish publishes an event to all subscribers.
	Publish(ctx context.Context, event Message) error

	// Subscribe subscribes to an event type. Returns an unsubscribe function.
	Subscribe(eventType string, handler HandlerFunc) func()

	// AddMiddleware adds middleware, executed in registration order.
	AddMiddleware(middleware Middleware)

	// Clear removes all subscribers and middleware.
	Clear()
}
