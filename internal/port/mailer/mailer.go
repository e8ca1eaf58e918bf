// Package mailer defines the outbound mail port.
package mailer

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no mail relay is configured.
var ErrNotConfigured = errors.New("mailer: not configured")

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Sender delivers mail.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
