// Package transport carries realtime events between the client and the speech
// model.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Write after the connection has shut down.
var ErrClosed = errors.New("transport: closed")

type Kind int

const (
	// KindOpen is delivered once, when the channel is ready for events.
	KindOpen Kind = iota + 1
	// KindMessage carries one inbound text frame.
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind Kind
	Data []byte
}

// Conn is one realtime channel. Events is closed when the channel ends; Err
// then reports why, and is nil after a local Close.
type Conn interface {
	Events() <-chan Event
	// Write queues frames to be sent back to back. Groups written by
	// concurrent callers never interleave.
	Write(frames ...[]byte) error
	Close() error
	Err() error
}

// Opener starts a channel authenticated with an ephemeral credential. It
// returns without waiting for the channel to open.
type Opener interface {
	Open(ctx context.Context, credential string) (Conn, error)
}
