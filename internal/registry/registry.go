// Package registry tracks the peers currently connected to the hub, keyed by
// the connection id assigned by the transport.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/relaychat/internal/transport"
)

var (
	ErrNotFound    = errors.New("peer not registered")
	ErrDuplicateID = errors.New("peer id already registered")
)

// PeerConnection is one registered peer. Values handed out by the Registry
// are copies; renaming a peer never mutates a copy already returned.
type PeerConnection struct {
	ID   string
	Conn transport.Conn

	nickname string
}

// New builds an entry for conn with no nickname set.
func New(conn transport.Conn) PeerConnection {
	return PeerConnection{ID: conn.ID(), Conn: conn}
}

// DisplayName returns the nickname, or the fallback derived from the id.
func (p PeerConnection) DisplayName() string {
	if p.nickname != "" {
		return p.nickname
	}
	return FallbackName(p.ID)
}

// FallbackName is the display name of a peer that never chose one.
func FallbackName(id string) string {
	return fmt.Sprintf("Client %s", id)
}

// Registry is an insertion-ordered set of peers guarded by a single lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*PeerConnection
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*PeerConnection)}
}

// Add registers p. It fails with ErrDuplicateID if the id is present.
func (r *Registry) Add(p PeerConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
	}
	entry := p
	r.entries[p.ID] = &entry
	r.order = append(r.order, p.ID)
	log.Debug().Str("module", "registry").Str("id", p.ID).Int("count", len(r.order)).Msg("added peer")
	return nil
}

// Remove unregisters id and returns the entry as it was last seen.
func (r *Registry) Remove(id string) (PeerConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return PeerConnection{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.remove(entry), nil
}

// RemoveConn unregisters id only while it is still held by conn. A rejected
// connection reusing a registered id never evicts the owner.
func (r *Registry) RemoveConn(id string, conn transport.Conn) (PeerConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.Conn != conn {
		return PeerConnection{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.remove(entry), nil
}

func (r *Registry) remove(entry *PeerConnection) PeerConnection {
	delete(r.entries, entry.ID)
	for i, v := range r.order {
		if v == entry.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Debug().Str("module", "registry").Str("id", entry.ID).Int("count", len(r.order)).Msg("removed peer")
	return *entry
}

// Find returns a copy of the entry registered under id.
func (r *Registry) Find(id string) (PeerConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return PeerConnection{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *entry, nil
}

// SetDisplayName renames id and returns the display name it had before.
func (r *Registry) SetDisplayName(id, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	old := entry.DisplayName()
	entry.nickname = name
	log.Debug().Str("module", "registry").Str("id", id).Str("old", old).Str("name", name).Msg("renamed peer")
	return old, nil
}

// All returns a snapshot of the registered peers in connect order.
func (r *Registry) All() []PeerConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeerConnection, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
