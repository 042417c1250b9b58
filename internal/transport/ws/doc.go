// Package ws implements the transport over WebSocket text frames.
//
// Server upgrades HTTP requests on the configured path, gives every
// connection a UUID and runs a read pump and a write pump per connection.
// The read pump enforces the read limit, the pong deadline and a token bucket
// rate limit before handing text frames to the transport.Handler. The write
// pump drains a bounded send queue and pings the peer periodically.
//
// Dialer opens the peer side of the link and tells a missing hub apart from
// other connection failures.
package ws
