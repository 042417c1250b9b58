// Package hub relays chat between every peer connected to one listening
// transport. It owns the registry, turns nickname commands into renames and
// fans chat out to everyone except the sender.
package hub

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/metrics"
	"github.com/Tyrowin/relaychat/internal/registry"
	"github.com/Tyrowin/relaychat/internal/transport"
)

// ShutdownReason is the close reason sent to every peer when the hub stops.
const ShutdownReason = "Server shutting down"

var (
	ErrAlreadyStarted = errors.New("hub already started")
	ErrHubClosed      = errors.New("hub is closed")
)

// State is the hub lifecycle state.
type State int

const (
	StateStopped State = iota
	StateListening
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Hub implements transport.Handler on top of a registry.
type Hub struct {
	server   transport.Server
	observer Observer
	registry *registry.Registry
	stats    *metrics.Stats

	mu    sync.Mutex
	state State
}

var _ transport.Handler = (*Hub)(nil)

// New returns a stopped hub that will accept connections through server.
// observer may be nil.
func New(server transport.Server, observer Observer) *Hub {
	return &Hub{
		server:   server,
		observer: observer,
		registry: registry.NewRegistry(),
		stats:    &metrics.Stats{},
	}
}

// Start binds address and begins accepting peers.
func (h *Hub) Start(address string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateListening:
		return ErrAlreadyStarted
	case StateClosed:
		return ErrHubClosed
	}

	if err := h.server.Listen(address, h); err != nil {
		return err
	}
	h.state = StateListening
	log.Info().Str("module", "hub").Str("address", address).Msg("hub started")
	return nil
}

// Stop closes every registered peer and shuts the transport down within ctx.
// The hub cannot be restarted.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return nil
	}
	wasListening := h.state == StateListening
	h.state = StateClosed
	// OnOpen registers under h.mu, so every peer is either in this snapshot
	// or sees the closed state.
	peers := h.registry.All()
	h.mu.Unlock()

	if !wasListening {
		return nil
	}

	log.Info().Str("module", "hub").Int("peers", len(peers)).Msg("stopping hub")
	for _, p := range peers {
		if err := p.Conn.Close(ShutdownReason); err != nil {
			log.Warn().Err(err).Str("module", "hub").Str("peer", p.DisplayName()).Msg("close peer")
		}
	}

	return h.server.Shutdown(ctx)
}

// State returns the current lifecycle state.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Addr returns the bound address, or nil when not listening.
func (h *Hub) Addr() net.Addr {
	return h.server.Addr()
}

// Count returns the number of registered peers.
func (h *Hub) Count() int {
	return h.registry.Count()
}

// Clients returns a snapshot of the registered peers in connect order.
func (h *Hub) Clients() []registry.PeerConnection {
	return h.registry.All()
}

// MetricsHandler serves the hub counters in Prometheus text format.
func (h *Hub) MetricsHandler() http.Handler {
	return metrics.Handler(h.stats, h.registry.Count)
}

// OnOpen registers a new peer. Connections arriving after Stop and
// connections reusing a registered id are closed instead.
func (h *Hub) OnOpen(conn transport.Conn) {
	peer := registry.New(conn)

	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		log.Info().Str("module", "hub").Str("id", conn.ID()).Msg("rejecting connection, hub is stopping")
		if cerr := conn.Close(ShutdownReason); cerr != nil {
			log.Warn().Err(cerr).Str("module", "hub").Str("id", conn.ID()).Msg("close late connection")
		}
		return
	}
	err := h.registry.Add(peer)
	h.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("id", conn.ID()).Msg("rejecting connection")
		if cerr := conn.Close("duplicate connection id"); cerr != nil {
			log.Warn().Err(cerr).Str("module", "hub").Str("id", conn.ID()).Msg("close duplicate")
		}
		return
	}

	h.stats.ConnectionOpened()
	log.Info().Str("module", "hub").Str("peer", peer.DisplayName()).Str("remote", conn.RemoteAddr()).
		Int("clients", h.registry.Count()).Msg("client connected")
	h.notify(Event{Kind: ClientConnected, Peer: peer})
}

// OnClose unregisters conn after a normal close.
func (h *Hub) OnClose(conn transport.Conn) {
	peer, err := h.registry.RemoveConn(conn.ID(), conn)
	if err != nil {
		log.Debug().Str("module", "hub").Str("id", conn.ID()).Msg("close for unregistered connection")
		return
	}

	h.stats.ConnectionClosed()
	log.Info().Str("module", "hub").Str("peer", peer.DisplayName()).
		Int("clients", h.registry.Count()).Msg("client disconnected")
	h.notify(Event{Kind: ClientDisconnected, Peer: peer})
}

// OnError unregisters conn after a transport failure.
func (h *Hub) OnError(conn transport.Conn, err error) {
	peer, rerr := h.registry.RemoveConn(conn.ID(), conn)
	if rerr != nil {
		log.Debug().Err(err).Str("module", "hub").Str("id", conn.ID()).Msg("error for unregistered connection")
		return
	}

	h.stats.ConnectionFailed()
	log.Warn().Err(err).Str("module", "hub").Str("peer", peer.DisplayName()).
		Int("clients", h.registry.Count()).Msg("client connection error")
	h.notify(Event{Kind: ClientConnectionError, Peer: peer, Err: err})
}

// OnMessage applies a nickname command or relays text to the other peers.
func (h *Hub) OnMessage(conn transport.Conn, text string) {
	peer, err := h.registry.Find(conn.ID())
	if err != nil {
		log.Warn().Str("module", "hub").Str("id", conn.ID()).Msg("message from unregistered connection dropped")
		return
	}

	h.stats.MessageReceived()
	log.Info().Str("module", "hub").Str("peer", peer.DisplayName()).Str("text", text).Msg("message received")
	h.notify(Event{Kind: MessageReceived, Peer: peer, Text: text})

	if name, ok := chat.ParseNickname(text); ok {
		h.rename(peer, name)
		return
	}

	h.SendToAll(chat.FormatChat(peer.DisplayName(), text), peer.ID)
}

func (h *Hub) rename(peer registry.PeerConnection, name string) {
	old, err := h.registry.SetDisplayName(peer.ID, name)
	if err != nil {
		// The peer left between Find and the rename.
		log.Debug().Err(err).Str("module", "hub").Str("id", peer.ID).Msg("rename skipped")
		return
	}

	renamed, err := h.registry.Find(peer.ID)
	if err != nil {
		renamed = peer
	}

	h.stats.NicknameChanged()
	log.Info().Str("module", "hub").Str("old", old).Str("new", name).Msg("nickname changed")
	h.notify(Event{Kind: NicknameChanged, Peer: renamed, OldName: old})

	h.SendToAll(chat.FormatNicknameChange(old, name))
}

// SendToAll sends message to every available peer whose id is not in
// exclude and returns how many sends succeeded. A failed send is logged and
// never stops delivery to the remaining peers.
func (h *Hub) SendToAll(message string, exclude ...string) int {
	peers := h.registry.All()

	delivered := 0
	for _, p := range peers {
		if slices.Contains(exclude, p.ID) || !p.Conn.IsAvailable() {
			continue
		}
		if err := p.Conn.Send(message); err != nil {
			h.stats.SendFailed()
			log.Warn().Err(err).Str("module", "hub").Str("peer", p.DisplayName()).Msg("send failed")
			continue
		}
		delivered++
	}

	h.stats.FramesDelivered(delivered)
	return delivered
}

func (h *Hub) notify(e Event) {
	if h.observer != nil {
		h.observer.Notify(e)
	}
}
