// Middleware implementations for the notification bus.
//
// Available Middleware:
//   - LoggingMiddleware: structured logging of all messages
//   - CircuitBreakerMiddleware: failure protection per message type
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/hearthloom/wyrmhall/logging"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs all message traffic.
type LoggingMiddleware struct {
	log logging.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(log logging.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{log: log}
}

// Before logs message receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	m.log.Debug("bus message", "category", message.Category(), "type", GetMessageType(message))
	return message, nil
}

// After logs message completion.
func (m *LoggingMiddleware) After(ctx context.Context, message Message, err error) {
	if err != nil {
		m.log.Warn("bus message failed", "type", GetMessageType(message), "error", err)
	}
}

// =============================================================================
// CIRCUIT BREAKER MIDDLEWARE
// =============================================================================

type breakerState struct {
	failures    int
	lastFailure time.Time
	state       string // "closed", "open", "half-open"
}

// CircuitBreakerMiddleware blocks a message type after repeated handler
// failures, then lets a single message through once the reset timeout
// passes.
type CircuitBreakerMiddleware struct {
	failureThreshold int
	resetTimeout     time.Duration
	states           map[string]*breakerState
	log              logging.Logger
	mu               sync.Mutex
}

// NewCircuitBreakerMiddleware creates a new CircuitBreakerMiddleware.
// A threshold of 0 means the circuit never opens.
func NewCircuitBreakerMiddleware(failureThreshold int, resetTimeout time.Duration, log logging.Logger) *CircuitBreakerMiddleware {
	if log == nil {
		log = logging.Nop()
	}
	return &CircuitBreakerMiddleware{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		states:           make(map[string]*breakerState),
		log:              log,
	}
}

func (m *CircuitBreakerMiddleware) getState(msgType string) *breakerState {
	if _, exists := m.states[msgType]; !exists {
		m.states[msgType] = &breakerState{state: "closed"}
	}
	return m.states[msgType]
}

// Before checks circuit state; an open circuit aborts the message.
func (m *CircuitBreakerMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	msgType := GetMessageType(message)

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(msgType)
	if state.state == "open" {
		if time.Since(state.lastFailure) >= m.resetTimeout {
			state.state = "half-open"
			m.log.Info("circuit half-open", "type", msgType)
		} else {
			m.log.Debug("circuit open, blocking", "type", msgType)
			return nil, nil
		}
	}
	return message, nil
}

// After updates circuit state based on the handler outcome.
func (m *CircuitBreakerMiddleware) After(ctx context.Context, message Message, err error) {
	msgType := GetMessageType(message)

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(msgType)
	if err != nil {
		state.failures++
		state.lastFailure = time.Now()
		if state.state == "half-open" {
			state.state = "open"
			m.log.Warn("circuit reopened", "type", msgType)
		} else if m.failureThreshold > 0 && state.failures >= m.failureThreshold {
			state.state = "open"
			m.log.Warn("circuit opened", "type", msgType, "failures", state.failures)
		}
		return
	}
	if state.state == "half-open" {
		state.state = "closed"
		state.failures = 0
		m.log.Info("circuit closed", "type", msgType)
	}
}

// States returns the current circuit state per message type.
func (m *CircuitBreakerMiddleware) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.states))
	for k, v := range m.states {
		out[k] = v.state
	}
	return out
}

var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*CircuitBreakerMiddleware)(nil)
)
