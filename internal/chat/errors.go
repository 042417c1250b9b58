package chat

import "fmt"

// InvalidPortError reports a port that is missing, non-numeric or outside
// the range 1-65535. It is raised before any network action takes place.
type InvalidPortError struct {
	Value  string
	Reason string
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("invalid port %q: %s", e.Value, e.Reason)
}

// InvalidEndpointError reports a malformed hub address.
type InvalidEndpointError struct {
	Address string
	Reason  string
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("invalid endpoint %q: %s", e.Address, e.Reason)
}
