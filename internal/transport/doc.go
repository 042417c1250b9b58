// Package transport defines the seam between the chat logic and the
// message-framed network link underneath it.
//
// A Server accepts connections and reports their lifecycle to a Handler:
// exactly one OnOpen per connection, OnMessage only while it is open, and at
// most one of OnClose or OnError when it ends. A Dialer opens the single
// outbound connection used by a peer. The WebSocket implementation lives in
// the ws subpackage.
package transport
