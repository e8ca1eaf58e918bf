package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the processor event name.
type EventType string

const (
	EventAuthorized EventType = "payment.authorized"
	EventCaptured   EventType = "payment.captured"
)

// Entity is the payment object embedded in processor events.
type Entity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Email    string `json:"email"`
}

// Event is the parsed form of a webhook body. Handled is false for event types
// the core acknowledges without acting on; Payment is only set when Handled.
type Event struct {
	Type    EventType
	Handled bool
	Payment Entity
}

// Status returns the record status the event moves a payment to.
func (e *Event) Status() Status {
	if e.Type == EventCaptured {
		return StatusCaptured
	}
	return StatusAuthorized
}

// DedupKey identifies one delivery target: the same event type for the same
// processor payment.
func (e *Event) DedupKey() string {
	return "payment-event." + string(e.Type) + "." + e.Payment.ID
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type paymentPayload struct {
	Payment *struct {
		Entity *Entity `json:"entity"`
	} `json:"payment"`
}

// ParseEvent decodes a webhook body. It fails closed: anything that is not a
// JSON object with an event name, or a handled event without a complete payment
// entity, is rejected before the caller touches any state.
func ParseEvent(body []byte) (*Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, errors.New("event body must be a JSON object")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.Event == "" {
		return nil, errors.New("event name is required")
	}

	ev := &Event{Type: EventType(env.Event)}
	if ev.Type != EventAuthorized && ev.Type != EventCaptured {
		return ev, nil
	}

	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%s: payload is required", env.Event)
	}
	var p paymentPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("%s: decode payload: %w", env.Event, err)
	}
	if p.Payment == nil || p.Payment.Entity == nil {
		return nil, fmt.Errorf("%s: payload.payment.entity is required", env.Event)
	}
	entity := p.Payment.Entity
	if entity.ID == "" {
		return nil, fmt.Errorf("%s: payment id is required", env.Event)
	}
	if entity.OrderID == "" {
		return nil, fmt.Errorf("%s: order id is required", env.Event)
	}

	ev.Handled = true
	ev.Payment = *entity
	return ev, nil
}
