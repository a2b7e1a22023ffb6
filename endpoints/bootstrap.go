package endpoints

import (
	"context"
	"errors"
	"fmt"

	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
)

// Registrar is the part of webhook.Manager used to seed endpoints
type Registrar interface {
	Endpoint(ctx context.Context, id string) (webhook.Endpoint, error)
	RegisterEndpoint(ctx context.Context, ep webhook.Endpoint) (string, error)
}

// Bootstrap registers every loaded endpoint the store does not know yet.
// Stored endpoints keep their status and counters. Returns how many were added.
func Bootstrap(ctx context.Context, l *Loader, r Registrar) (int, error) {
	added := 0
	for _, ep := range l.List() {
		_, err := r.Endpoint(ctx, ep.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, webhook.ErrNotFound) {
			return added, fmt.Errorf("looking up endpoint %s: %w", ep.ID, err)
		}

		if _, err := r.RegisterEndpoint(ctx, ep.Webhook()); err != nil {
			return added, fmt.Errorf("registering endpoint %s: %w", ep.ID, err)
		}
		added++
	}
	return added, nil
}
