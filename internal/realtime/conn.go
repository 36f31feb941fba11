// Package realtime owns the single shared push connection that tells the
// dashboard when the server-side log changed.
package realtime

import (
	"context"
	"errors"
)

// Event names delivered on a Conn.
const (
	// TopicLogUpdate is the payload-free invalidation signal for the log.
	TopicLogUpdate = "log:update"
	// EventConnectError reports that the connection failed or dropped.
	EventConnectError = "connect_error"
)

var (
	// ErrConnectionLost is passed to listeners when the shared connection ends.
	ErrConnectionLost = errors.New("realtime: connection lost")
	// ErrClosed is returned by a Manager after Close.
	ErrClosed = errors.New("realtime: manager closed")
	// ErrNoSubscribers is returned when a dial completes after every
	// subscription that wanted it was released.
	ErrNoSubscribers = errors.New("realtime: no subscribers left")
)

// Event is one message from the push channel. Err is set for EventConnectError.
type Event struct {
	Name string
	Err  error
}

// Conn is an established push connection. Events is closed when the
// connection ends; Close is safe to call more than once.
type Conn interface {
	Events() <-chan Event
	Close() error
}

// Dialer establishes a Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// NoopDialer always fails, which puts every subscriber on polling.
type NoopDialer struct{}

var errRealtimeDisabled = errors.New("realtime: push channel disabled")

func (NoopDialer) Dial(context.Context) (Conn, error) {
	return nil, errRealtimeDisabled
}
