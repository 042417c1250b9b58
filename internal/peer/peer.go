// Package peer holds the single outbound connection a process keeps to a
// running hub.
//
// A Peer moves Disconnected -> Connecting -> Open -> Closed. A failed dial
// leaves it Faulted. Both Closed and Faulted are terminal; a new connection
// needs a new Peer. One goroutine may block in Receive while another calls
// Send or Disconnect.
package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/transport"
)

// ErrInvalidState is returned by Connect on a peer that already connected once.
var ErrInvalidState = errors.New("peer is not disconnected")

// State is the peer lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Options tune the close handshake.
type Options struct {
	// CloseTimeout bounds how long Disconnect waits for the hub to answer
	// the close frame.
	CloseTimeout time.Duration
}

type Peer struct {
	dialer   transport.Dialer
	opts     Options
	observer Observer

	mu         sync.Mutex
	state      State
	address    string
	conn       transport.ClientConn
	cancelDial context.CancelFunc

	// done is closed once Receive has seen the end of the connection.
	done     chan struct{}
	doneOnce sync.Once
}

// New returns a disconnected peer. observer may be nil.
func New(dialer transport.Dialer, opts Options, observer Observer) *Peer {
	return &Peer{
		dialer:   dialer,
		opts:     opts,
		observer: observer,
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Connect validates address and dials it. A *transport.ServerNotFoundError
// means no hub is running there.
func (p *Peer) Connect(ctx context.Context, address string) error {
	p.mu.Lock()
	if p.state != StateDisconnected {
		state := p.state
		p.mu.Unlock()
		log.Debug().Str("module", "peer").Stringer("state", state).Msg("connect rejected")
		return ErrInvalidState
	}

	endpoint, err := chat.ValidateEndpoint(address)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	dialCtx, cancel := context.WithCancel(ctx)
	p.state = StateConnecting
	p.address = endpoint.String()
	p.cancelDial = cancel
	p.mu.Unlock()

	log.Debug().Str("module", "peer").Str("address", endpoint.String()).Msg("connecting")
	conn, err := p.dialer.Dial(dialCtx, endpoint.String())

	p.mu.Lock()
	cancel()
	p.cancelDial = nil

	if p.state != StateConnecting {
		// Disconnect aborted the dial.
		p.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		if err != nil {
			return err
		}
		return &transport.TransportError{Op: "dial", Err: context.Canceled}
	}

	if err != nil {
		p.state = StateFaulted
		p.mu.Unlock()
		return err
	}

	p.state = StateOpen
	p.conn = conn
	p.mu.Unlock()

	log.Info().Str("module", "peer").Str("address", endpoint.String()).Msg("connected to hub")
	p.notify(Event{Kind: Connected, Address: endpoint.String()})
	return nil
}

// Send writes one text frame. It does nothing unless the peer is open.
func (p *Peer) Send(text string) error {
	p.mu.Lock()
	if p.state != StateOpen {
		p.mu.Unlock()
		return nil
	}
	conn := p.conn
	p.mu.Unlock()

	if err := conn.Send(text); err != nil {
		return err
	}
	p.notify(Event{Kind: MessageSent, Address: p.address, Text: text})
	return nil
}

// Receive blocks for the next frame from the hub. It returns "" once the
// connection has ended or when the peer is not open; a read failure on an
// open connection is returned as an error.
func (p *Peer) Receive() (string, error) {
	p.mu.Lock()
	if p.state != StateOpen {
		p.mu.Unlock()
		return "", nil
	}
	conn := p.conn
	p.mu.Unlock()

	frame, err := conn.Receive()
	if err != nil {
		wasOpen := p.finish()
		if !wasOpen {
			// Disconnect dropped the socket under us.
			return "", nil
		}
		_ = conn.Close()
		log.Warn().Err(err).Str("module", "peer").Msg("connection lost")
		return "", err
	}

	if frame.Close {
		if p.finish() {
			_ = conn.Close()
			log.Info().Str("module", "peer").Str("reason", frame.CloseReason).Msg("hub closed the connection")
			p.notify(Event{Kind: CloseReceived, Address: p.address, Reason: frame.CloseReason})
		}
		return "", nil
	}

	p.notify(Event{Kind: MessageReceived, Address: p.address, Text: frame.Text})
	return frame.Text, nil
}

// finish marks the connection as ended from the receive side and reports
// whether it was still open.
func (p *Peer) finish() bool {
	p.mu.Lock()
	wasOpen := p.state == StateOpen
	if wasOpen {
		p.state = StateClosed
	}
	p.mu.Unlock()

	p.doneOnce.Do(func() { close(p.done) })
	return wasOpen
}

// Disconnect aborts a dial in progress or closes an open connection with
// reason, waiting up to CloseTimeout for the hub's reply before dropping the
// socket. It always emits Disconnected.
func (p *Peer) Disconnect(reason string) error {
	p.mu.Lock()
	prev := p.state
	conn := p.conn
	cancel := p.cancelDial
	switch prev {
	case StateDisconnected, StateConnecting, StateOpen:
		p.state = StateClosed
	}
	p.mu.Unlock()

	var err error
	switch prev {
	case StateConnecting:
		if cancel != nil {
			cancel()
		}
	case StateOpen:
		err = p.closeOpen(conn, reason)
	}

	log.Info().Str("module", "peer").Str("reason", reason).Stringer("from", prev).Msg("disconnected")
	p.notify(Event{Kind: Disconnected, Address: p.address, Reason: reason})
	return err
}

func (p *Peer) closeOpen(conn transport.ClientConn, reason string) error {
	herr := conn.CloseHandshake(reason)
	if herr == nil {
		select {
		case <-p.done:
		case <-time.After(p.opts.CloseTimeout):
			log.Debug().Str("module", "peer").Dur("timeout", p.opts.CloseTimeout).Msg("no close reply from hub")
		}
	}

	if err := conn.Close(); err != nil && herr == nil {
		return err
	}
	return herr
}

func (p *Peer) notify(e Event) {
	if p.observer != nil {
		p.observer.Notify(e)
	}
}
