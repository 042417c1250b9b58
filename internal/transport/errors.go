package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned when sending on a connection that is closed or
	// closing.
	ErrNotOpen = errors.New("connection is not open")

	// ErrBackpressure is returned when a connection's send queue is full.
	ErrBackpressure = errors.New("send queue full")
)

// ServerNotFoundError reports that nothing accepted the connection at
// Address. Callers may react by becoming the hub themselves.
type ServerNotFoundError struct {
	Address string
	Err     error
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("no hub listening at %s: %v", e.Address, e.Err)
}

func (e *ServerNotFoundError) Unwrap() error { return e.Err }

// TransportError wraps any other failure of connect, send or receive.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SendError reports a failed send to one peer.
type SendError struct {
	ConnID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.ConnID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
