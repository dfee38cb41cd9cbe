package eventbus

import (
	"context"
	"sync"

	"github.com/hearthloom/wyrmhall/logging"
)

// InMemoryBus is an in-memory implementation of Bus.
//
// Thread-safe, single-process. Events fan out to every subscriber;
// subscriber errors are logged but never stop the others or the publisher.
type subscription struct {
	handler HandlerFunc
}

type InMemoryBus struct {
	subscribers map[string][]*subscription
	middleware  []Middleware
	log         logging.Logger
	mu          sync.RWMutex
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus(log logging.Logger) *InMemoryBus {
	if log == nil {
		log = logging.Nop()
	}
	return &InMemoryBus{
		subscribers: make(map[string][]*subscription),
		middleware:  make([]Middleware, 0),
		log:         log,
	}
}

// =============================================================================
// MESSAGING
// =============================================================================

// Publish publishes an event to all subscribers.
// Subscriber errors are logged but don't stop other subscribers.
func (b *InMemoryBus) Publish(ctx context.Context, event Message) error {
	eventType := GetMessageType(event)

	processed, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return err
	}
	if processed == nil {
		b.log.Debug("event aborted by middleware", "type", eventType)
		return nil
	}

	b.mu.RLock()
	subscribers := make([]*subscription, len(b.subscribers[eventType]))
	copy(subscribers, b.subscribers[eventType])
	b.mu.RUnlock()

	var firstError error
	for _, sub := range subscribers {
		if err := sub.handler(ctx, processed); err != nil {
			if firstError == nil {
				firstError = err
			}
			b.log.Warn("subscriber failed", "type", eventType, "error", err)
		}
	}

	b.runMiddlewareAfter(ctx, event, firstError)
	return nil
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Subscribe subscribes to an event type.
// Returns an unsubscribe function for cleanup.
func (b *InMemoryBus) Subscribe(eventType string, handler HandlerFunc) func() {
	sub := &subscription{handler: handler}
	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, s := range subs {
			if s == sub {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// AddMiddleware adds middleware to the bus.
// Middleware is executed in registration order.
func (b *InMemoryBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// SubscriberCount reports how many subscribers an event type has.
func (b *InMemoryBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Clear clears all subscribers and middleware.
// Useful for testing.
func (b *InMemoryBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]*subscription)
	b.middleware = make([]Middleware, 0)
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (b *InMemoryBus) runMiddlewareBefore(ctx context.Context, message Message) (Message, error) {
	b.mu.RLock()
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	current := message
	for _, mw := range middleware {
		result, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		current = result
	}
	return current, nil
}

// runMiddlewareAfter runs the after chain in reverse order.
func (b *InMemoryBus) runMiddlewareAfter(ctx context.Context, message Message, err error) {
	b.mu.RLock()
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	for i := len(middleware) - 1; i >= 0; i-- {
		middleware[i].After(ctx, message, err)
	}
}

var _ Bus = (*InMemoryBus)(nil)
