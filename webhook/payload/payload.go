package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// Wildcard subscribes to every event type
const Wildcard = "*"

// Envelope is an event as submitted for publishing. Only Data is sent to
// endpoints, the rest travels in headers.
type Envelope struct {
	// ID is optional, one is generated when empty
	ID string `json:"id,omitempty"`

	// Type is a full-stop delimited type associated with the event
	// Examples: "transaction.created", "tax.calculated", "sync.failed"
	Type string `json:"type"`

	IntegrationID string `json:"integration_id"`

	// Timestamp is when the event occurred, defaults to now
	Timestamp time.Time `json:"timestamp"`

	Live bool `json:"live"`

	// Retryable defaults to true when omitted
	Retryable *bool `json:"retryable,omitempty"`

	// Data is the payload delivered verbatim as the request body
	Data json.RawMessage `json:"data"`
}

// Validate validates the envelope structure
func (e Envelope) Validate() error {
	if err := ValidateEventType(e.Type); err != nil {
		return err
	}
	if strings.HasSuffix(e.Type, ".*") || e.Type == Wildcard {
		return fmt.Errorf("event type cannot be a wildcard: %s", e.Type)
	}

	if e.IntegrationID == "" {
		return fmt.Errorf("integration_id is required")
	}

	if err := ValidateData(e.Data); err != nil {
		return err
	}

	return nil
}

// IsRetryable reports whether failed deliveries of the event are retried
func (e Envelope) IsRetryable() bool {
	return e.Retryable == nil || *e.Retryable
}

// MarshalJSON returns the JSON encoding of the envelope
func (e Envelope) MarshalJSON() ([]byte, error) {
	type Alias Envelope
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp,omitempty"`
		*Alias
	}{
		Timestamp: formatTimestamp(e.Timestamp),
		Alias:     (*Alias)(&e),
	})
}

// UnmarshalJSON parses the JSON-encoded data and stores the result
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type Alias Envelope
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling envelope: %w", err)
	}

	if aux.Timestamp == "" {
		e.Timestamp = time.Time{}
		return nil
	}

	// Parse timestamp
	timestamp, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		// Try RFC3339 without nano precision
		timestamp, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
	}
	e.Timestamp = timestamp

	return nil
}

// Parse parses and validates a JSON envelope
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshaling envelope: %w", err)
	}

	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("validating envelope: %w", err)
	}

	return env, nil
}

// Encode marshals data into a payload body
func Encode(data any) (json.RawMessage, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling data: %w", err)
	}
	return b, nil
}

// ValidateData checks a payload body is present and valid JSON
func ValidateData(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("data is required")
	}
	if !json.Valid(data) {
		return fmt.Errorf("data must be valid JSON")
	}
	return nil
}

// Matches checks if eventType matches any of the given subscriptions
// Supports exact matching, prefix matching (e.g., "order.*" matches "order.created")
// and the "*" wildcard. An empty subscription list matches nothing.
func Matches(eventType string, subscriptions []string) bool {
	for _, sub := range subscriptions {
		if sub == Wildcard || sub == eventType {
			return true
		}

		// Prefix match (e.g., "order.*" matches "order.created", "order.refunded")
		if prefix, ok := strings.CutSuffix(sub, ".*"); ok && prefix != "" {
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}

	return false
}

// ValidateEventType validates an event type or subscription format
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if eventType == Wildcard {
		return nil
	}

	// Allow wildcard suffix for filtering
	if len(eventType) > 2 && eventType[len(eventType)-2:] == ".*" {
		eventType = eventType[:len(eventType)-2]
	}

	if !eventTypePattern.MatchString(eventType) {
		return fmt.Errorf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", eventType)
	}

	return nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
