package transport

import (
	"context"
	"net"
)

// Conn is a server-side connection handle owned by one registered peer.
type Conn interface {
	// ID is assigned by the transport and stays fixed for the life of the
	// connection.
	ID() string
	RemoteAddr() string
	// Send queues one text frame. It never blocks on a slow peer.
	Send(text string) error
	// IsAvailable reports whether the connection still accepts frames.
	IsAvailable() bool
	// Close starts a graceful close handshake carrying reason.
	Close(reason string) error
}

// Handler receives connection lifecycle notifications. Notifications for
// different connections may arrive concurrently.
type Handler interface {
	OnOpen(conn Conn)
	OnClose(conn Conn)
	OnError(conn Conn, err error)
	OnMessage(conn Conn, text string)
}

// Server accepts inbound connections.
type Server interface {
	// Listen binds address and starts accepting in the background.
	Listen(address string, handler Handler) error
	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr
	// Shutdown stops accepting and drops connections still open when ctx ends.
	Shutdown(ctx context.Context) error
}

// Frame is one inbound frame seen by a client connection.
type Frame struct {
	Text string
	// Close is set when the remote side sent a close frame.
	Close       bool
	CloseReason string
}

// ClientConn is the single outbound connection held by a peer. One goroutine
// may call Receive while another calls Send or CloseHandshake.
type ClientConn interface {
	Send(text string) error
	Receive() (Frame, error)
	// CloseHandshake sends a close frame carrying reason without waiting for
	// the reply; the reply surfaces as a close Frame from Receive.
	CloseHandshake(reason string) error
	// Close releases the socket immediately.
	Close() error
}

// Dialer opens client connections.
type Dialer interface {
	Dial(ctx context.Context, address string) (ClientConn, error)
}
