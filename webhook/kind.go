package webhook

import "fmt"

/* Kind distinguishes how a delivery was created
 * EventKind deliveries fan out from an event to a registered endpoint
 * DirectKind deliveries target an ad-hoc URL with caller supplied headers
 */
type Kind int

const (
	EventKind Kind = iota + 1
	DirectKind
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case EventKind:
		return "event"
	case DirectKind:
		return "direct"
	default:
		return "unknown"
	}
}

// NewKind creates a Kind from a string
func NewKind(s string) Kind {
	switch s {
	case "direct":
		return DirectKind
	default:
		return EventKind
	}
}

// Validate checks if the kind is valid
func (k Kind) Validate() error {
	if k != EventKind && k != DirectKind {
		return fmt.Errorf("invalid delivery kind: %d", k)
	}
	return nil
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name
func (k *Kind) UnmarshalText(b []byte) error {
	*k = NewKind(string(b))
	return nil
}
