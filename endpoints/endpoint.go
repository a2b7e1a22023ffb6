package endpoints

import (
	"fmt"

	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
)

// Endpoint is a webhook subscriber declared in the bootstrap file
type Endpoint struct {
	ID            string           `yaml:"id"`
	URL           string           `yaml:"url"`
	IntegrationID string           `yaml:"integration_id"`
	EventTypes    []string         `yaml:"event_types"`
	Secret        string           `yaml:"secret"`
	RateLimits    ratelimit.Limits `yaml:"rate_limits"`
}

// Validate checks if the endpoint declaration is valid
func (e *Endpoint) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if err := e.Webhook().Validate(); err != nil {
		return fmt.Errorf("endpoint %s: %w", e.ID, err)
	}

	return nil
}

// Webhook converts the declaration into the delivery model
func (e *Endpoint) Webhook() webhook.Endpoint {
	return webhook.Endpoint{
		ID:            e.ID,
		URL:           e.URL,
		Secret:        e.Secret,
		EventTypes:    append([]string(nil), e.EventTypes...),
		IntegrationID: e.IntegrationID,
		RateLimits:    e.RateLimits,
	}
}
