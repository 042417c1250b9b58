package ws

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/relaychat/internal/transport"
)

// outFrame is one entry of the send queue. A close entry ends the queue.
type outFrame struct {
	text   string
	close  bool
	reason string
}

// conn is the hub side of one WebSocket connection.
type conn struct {
	id      string
	ws      *websocket.Conn
	addr    string
	opts    Options
	handler transport.Handler
	limiter *rate.Limiter
	onDone  func(*conn)

	mu   sync.RWMutex
	open bool
	send chan outFrame

	closeSent  atomic.Bool
	writeErr   atomic.Pointer[error]
	finishOnce sync.Once
}

func newConn(ws *websocket.Conn, addr string, opts Options, handler transport.Handler) *conn {
	ws.SetReadLimit(opts.MaxMessageSize)

	every := opts.RateInterval / time.Duration(max(opts.RateBurst, 1))
	return &conn{
		id:      uuid.NewString(),
		ws:      ws,
		addr:    addr,
		opts:    opts,
		handler: handler,
		limiter: rate.NewLimiter(rate.Every(every), max(opts.RateBurst, 1)),
		open:    true,
		send:    make(chan outFrame, opts.SendBuffer),
	}
}

func (c *conn) ID() string         { return c.id }
func (c *conn) RemoteAddr() string { return c.addr }

func (c *conn) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Send queues text without blocking. A full queue means the peer is not
// keeping up; the frame is refused rather than stalling the caller.
func (c *conn) Send(text string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.open {
		return &transport.SendError{ConnID: c.id, Err: transport.ErrNotOpen}
	}
	select {
	case c.send <- outFrame{text: text}:
		return nil
	default:
		return &transport.SendError{ConnID: c.id, Err: transport.ErrBackpressure}
	}
}

// Close queues a close frame behind any pending text so queued frames are
// flushed first. If the peer never answers, the socket is dropped after the
// close timeout.
func (c *conn) Close(reason string) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	queued := false
	select {
	case c.send <- outFrame{close: true, reason: reason}:
		queued = true
	default:
	}
	c.mu.Unlock()

	time.AfterFunc(c.opts.CloseTimeout, func() { _ = c.ws.Close() })
	if queued {
		return nil
	}
	return c.writeClose(reason)
}

func (c *conn) writeClose(reason string) error {
	c.closeSent.Store(true)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait)); err != nil {
		if !isExpectedCloseError(err) {
			return &transport.TransportError{Op: "close", Err: err}
		}
	}
	return nil
}

// fail records a write failure and drops the socket, which ends the read pump.
// Writes refused because the close frame went out first are part of a normal
// close and leave the handshake to the read pump.
func (c *conn) fail(err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	c.writeErr.CompareAndSwap(nil, &err)
	_ = c.ws.Close()
}

// finish tears the connection down and delivers the single terminal
// notification. A nil err means the connection closed normally.
func (c *conn) finish(err error) {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		c.open = false
		close(c.send)
		c.mu.Unlock()

		if cerr := c.ws.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			log.Debug().Err(cerr).Str("module", "ws").Str("id", c.id).Msg("close socket")
		}

		if err != nil {
			c.handler.OnError(c, err)
		} else {
			c.handler.OnClose(c)
		}
		if c.onDone != nil {
			c.onDone(c)
		}
	})
}

// classify maps the error that ended the read loop to the terminal
// notification: nil for a close, the error itself otherwise.
func (c *conn) classify(err error) error {
	if p := c.writeErr.Load(); p != nil {
		return *p
	}
	if c.closeSent.Load() {
		return nil
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseAbnormalClosure {
			return err
		}
		return nil
	}
	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		return nil
	}
	return err
}

func (c *conn) readPump() {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("id", c.id).Msg("set initial read deadline")
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Warn().Str("module", "ws").Str("id", c.id).Int64("limit", c.opts.MaxMessageSize).Msg("message exceeded maximum size")
			}
			c.finish(c.classify(err))
			return
		}

		if mt != websocket.TextMessage {
			log.Warn().Str("module", "ws").Str("id", c.id).Int("type", mt).Msg("ignoring non-text frame")
			continue
		}

		if !c.limiter.Allow() {
			log.Warn().Str("module", "ws").Str("id", c.id).
				Int("burst", c.opts.RateBurst).Dur("interval", c.opts.RateInterval).
				Msg("rate limit exceeded, discarding message")
			continue
		}

		c.handler.OnMessage(c, string(data))
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			if f.close {
				if err := c.writeClose(f.reason); err != nil {
					log.Warn().Err(err).Str("module", "ws").Str("id", c.id).Msg("write close frame")
				}
				return
			}
			// Close already wrote the close frame when the queue was full;
			// text behind it can no longer be sent.
			if c.closeSent.Load() {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				c.fail(err)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(f.text)); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// isExpectedCloseError reports errors that only mean the socket is already
// gone.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe")
}
