package hub

import "github.com/Tyrowin/relaychat/internal/registry"

// EventKind identifies a hub notification.
type EventKind int

const (
	ClientConnected EventKind = iota
	ClientDisconnected
	ClientConnectionError
	MessageReceived
	NicknameChanged
)

func (k EventKind) String() string {
	switch k {
	case ClientConnected:
		return "client_connected"
	case ClientDisconnected:
		return "client_disconnected"
	case ClientConnectionError:
		return "client_connection_error"
	case MessageReceived:
		return "message_received"
	case NicknameChanged:
		return "nickname_changed"
	default:
		return "unknown"
	}
}

// Event describes something that happened to a registered peer. Peer is a
// snapshot taken when the event fired.
type Event struct {
	Kind EventKind
	Peer registry.PeerConnection
	// Text is the raw message for MessageReceived.
	Text string
	// OldName is the display name before a NicknameChanged.
	OldName string
	// Err is set for ClientConnectionError.
	Err error
}

// Observer receives hub events. Notify is called synchronously from the
// connection's goroutine and must not block.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }
