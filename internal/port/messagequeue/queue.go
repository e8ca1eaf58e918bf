// Package messagequeue defines the message queue port (interface) and the
// schemas of the messages that travel over it.
package messagequeue

import "context"

// Handler processes one delivered message. ctx carries the request id of the
// publisher. Returning an error asks for redelivery.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue delivers messages at least once to durable subscribers.
type Queue interface {
	// Publish validates data against the subject's schema and sends it.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe attaches a durable handler to subject. Messages that keep
	// failing are moved to DeadLetter(subject) after the redelivery budget is
	// spent. The returned function stops delivery.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain finishes in-flight deliveries, then closes the connection.
	Drain() error

	// Close shuts down the connection immediately.
	Close() error

	// IsConnected reports whether the broker connection is up; the
	// readiness probe uses it.
	IsConnected() bool
}

// SubjectMailActivation carries ActivationMailPayload.
const SubjectMailActivation = "mail.activation"

// DeadLetter is the subject poisoned or exhausted messages are parked on.
func DeadLetter(subject string) string {
	return subject + ".dlq"
}
