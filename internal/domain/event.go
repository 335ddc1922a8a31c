package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventRequestProcessed EventType = "agent.processed"
	EventRequestRouted    EventType = "agent.routed"
	EventCircuitChanged   EventType = "agent.circuit_changed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Agent     string          `json:"agent,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ProcessedPayload summarizes a finished request.
type ProcessedPayload struct {
	Success    bool      `json:"success"`
	Action     string    `json:"action,omitempty"`
	Tier       Tier      `json:"tier,omitempty"`
	Cached     bool      `json:"cached"`
	Fallback   bool      `json:"fallback"`
	ErrorCode  ErrorCode `json:"error_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// RoutedPayload describes a routing decision.
type RoutedPayload struct {
	BestMatch  string  `json:"best_match"`
	Confidence float64 `json:"confidence"`
	Delegated  bool    `json:"delegated"`
}

// CircuitPayload describes a breaker transition.
type CircuitPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewEvent builds an event, encoding payload as JSON. A payload that
// cannot be encoded is dropped.
func NewEvent(t EventType, agent, requestID string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now(), Agent: agent, RequestID: requestID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
