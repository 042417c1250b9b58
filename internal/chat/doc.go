// Package chat holds the in-band text protocol shared by the hub and the
// peer: operator commands, the wire formats of relayed lines and the
// validation of ports and endpoints entered by the operator.
package chat
