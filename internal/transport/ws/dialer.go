package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/relaychat/internal/transport"
)

// Dialer opens client connections with gorilla's dialer.
type Dialer struct {
	opts   Options
	dialer *websocket.Dialer
}

var _ transport.Dialer = (*Dialer)(nil)

func NewDialer(opts Options) *Dialer {
	return &Dialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// Dial connects to address, a ws:// or wss:// URL. When nothing listens at
// the address the error is a *transport.ServerNotFoundError.
func (d *Dialer) Dial(ctx context.Context, address string) (transport.ClientConn, error) {
	wsConn, resp, err := d.dialer.DialContext(ctx, address, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if isUnreachable(err) {
			return nil, &transport.ServerNotFoundError{Address: address, Err: err}
		}
		if resp != nil {
			log.Debug().Str("module", "ws").Str("address", address).Int("status", resp.StatusCode).Msg("handshake rejected")
		}
		return nil, &transport.TransportError{Op: "dial", Err: err}
	}

	log.Debug().Str("module", "ws").Str("address", address).Msg("dialed")
	return &clientConn{ws: wsConn, writeWait: d.opts.WriteWait}, nil
}

func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// clientConn serializes writes; gorilla allows one concurrent reader and one
// concurrent writer.
type clientConn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
}

func (c *clientConn) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return &transport.TransportError{Op: "send", Err: err}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return &transport.TransportError{Op: "send", Err: err}
	}
	return nil
}

// Receive blocks for the next text or close frame. Non-text frames are
// skipped.
func (c *clientConn) Receive() (transport.Frame, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
				return transport.Frame{Close: true, CloseReason: closeErr.Text}, nil
			}
			return transport.Frame{}, &transport.TransportError{Op: "receive", Err: err}
		}
		if mt == websocket.TextMessage {
			return transport.Frame{Text: string(data)}, nil
		}
	}
}

func (c *clientConn) CloseHandshake(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait)); err != nil {
		return &transport.TransportError{Op: "close", Err: err}
	}
	return nil
}

func (c *clientConn) Close() error {
	if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
		return &transport.TransportError{Op: "close", Err: err}
	}
	return nil
}
