// Package notify delivers action outcome messages. Every sink is best-effort: callers log
// failures and never let them change the result of the operation that triggered them.
package notify

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned by sinks that need an address when Message.To is empty.
var ErrNoRecipient = errors.New("notify: no recipient")

// Message is a plain-text notification.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sink sends a message.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Noop discards every message.
type Noop struct{}

func (Noop) Send(context.Context, Message) error { return nil }
