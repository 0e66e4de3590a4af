// Package ai defines the assistant backend consumed by the routing core. The
// core only needs prompt-in, text-out; provider specifics live behind this
// interface.
package ai

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no assistant backend is configured.
var ErrUnavailable = errors.New("ai: assistant backend not configured")

// Client produces an assistant completion for a prompt. Complete may take
// seconds; callers must never invoke it from a connection read loop.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Disabled is the Client used when no backend is configured. Every request
// fails with ErrUnavailable, which the core reports back to the requester.
type Disabled struct{}

func (Disabled) Complete(context.Context, string) (string, error) {
	return "", ErrUnavailable
}
