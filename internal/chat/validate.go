package chat

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const (
	minPort = 1
	maxPort = 65535
)

// ValidatePortNumber parses and validates a port given as text.
func ValidatePortNumber(port string) (int, error) {
	if port == "" {
		return 0, &InvalidPortError{Value: port, Reason: "a port number has not been specified"}
	}

	n, err := strconv.Atoi(port)
	if err != nil {
		return 0, &InvalidPortError{Value: port, Reason: "the port is not a numerical value"}
	}

	if err := ValidatePort(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ValidatePort checks that n lies in the valid port range.
func ValidatePort(n int) error {
	if n < minPort || n > maxPort {
		return &InvalidPortError{
			Value:  strconv.Itoa(n),
			Reason: "the port is outside the valid numeric range (1 to 65535)",
		}
	}
	return nil
}

// ValidateEndpoint checks that address names a WebSocket endpoint with a
// host and a valid port. A bare "host:port" is read as ws://host:port/.
func ValidateEndpoint(address string) (*url.URL, error) {
	if strings.TrimSpace(address) == "" {
		return nil, &InvalidEndpointError{Address: address, Reason: "empty address"}
	}

	raw := address
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidEndpointError{Address: address, Reason: err.Error()}
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, &InvalidEndpointError{Address: address, Reason: "scheme must be ws or wss"}
	}

	if u.Hostname() == "" {
		return nil, &InvalidEndpointError{Address: address, Reason: "missing host"}
	}

	if _, err := ValidatePortNumber(u.Port()); err != nil {
		var portErr *InvalidPortError
		if errors.As(err, &portErr) {
			return nil, &InvalidEndpointError{Address: address, Reason: portErr.Reason}
		}
		return nil, &InvalidEndpointError{Address: address, Reason: err.Error()}
	}

	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}
