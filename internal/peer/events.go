package peer

// EventKind identifies a peer notification.
type EventKind int

const (
	Connected EventKind = iota
	MessageSent
	MessageReceived
	CloseReceived
	Disconnected
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case MessageSent:
		return "message_sent"
	case MessageReceived:
		return "message_received"
	case CloseReceived:
		return "close_received"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event describes a change on the peer's single connection.
type Event struct {
	Kind EventKind
	// Address is the hub endpoint the peer dialed.
	Address string
	// Text is the frame sent or received.
	Text string
	// Reason is the close reason for CloseReceived and Disconnected.
	Reason string
}

// Observer receives peer events synchronously.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }
