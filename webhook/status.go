package webhook

import "fmt"

/* Status represents the current state of a webhook delivery
 * Follows the lifecycle: Pending -> Retrying* -> Delivered/Failed
 */
type Status int

const (
	Pending Status = iota + 1
	Delivered
	Failed
	Retrying
)

// Statuses lists every delivery status
var Statuses = []Status{Pending, Delivered, Failed, Retrying}

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Retrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "delivered":
		return Delivered
	case "failed":
		return Failed
	case "retrying":
		return Retrying
	default:
		return Pending
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > Retrying {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Delivered || s == Failed
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(b []byte) error {
	*s = NewStatus(string(b))
	return nil
}

/* EndpointStatus represents the lifecycle of a registered endpoint
 * Active -> Failed happens automatically, every other change is explicit
 */
type EndpointStatus int

const (
	EndpointActive EndpointStatus = iota + 1
	EndpointInactive
	EndpointFailed
)

// String returns the string representation of the endpoint status
func (s EndpointStatus) String() string {
	switch s {
	case EndpointActive:
		return "active"
	case EndpointInactive:
		return "inactive"
	case EndpointFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewEndpointStatus creates an EndpointStatus from a string
func NewEndpointStatus(str string) EndpointStatus {
	switch str {
	case "inactive":
		return EndpointInactive
	case "failed":
		return EndpointFailed
	default:
		return EndpointActive
	}
}

// Validate checks if the endpoint status is valid
func (s EndpointStatus) Validate() error {
	if s < EndpointActive || s > EndpointFailed {
		return fmt.Errorf("invalid endpoint status: %d", s)
	}
	return nil
}

// MarshalText encodes the endpoint status by name
func (s EndpointStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes an endpoint status name
func (s *EndpointStatus) UnmarshalText(b []byte) error {
	*s = NewEndpointStatus(string(b))
	return nil
}
