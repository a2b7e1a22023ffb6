package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/ratelimit"
)

// Record is a normalized domain object (transaction, product, customer or
// tax calculation) whose shape belongs to the adapter layer
type Record = json.RawMessage

// SyncOptions selects the page of records to pull from a platform
type SyncOptions struct {
	Since  time.Time `json:"since"`
	Cursor string    `json:"cursor,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// SyncResult is one page of synced records
type SyncResult struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// WebhookRequest is an inbound platform notification
type WebhookRequest struct {
	Headers http.Header
	Body    []byte
}

// RateLimitStatus is the quota a platform reports for the current credentials
type RateLimitStatus struct {
	Limits ratelimit.Limits `json:"limits"`
	// Remaining is the live count left in the current window, -1 when unknown
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

/* Adapter is the capability every platform integration exposes
 * Implementations map platform payloads to Records and are wrapped by
 * EnhancedAdapter for resilience
 */
type Adapter interface {
	Platform() Platform
	SyncTransactions(ctx context.Context, opts SyncOptions) (SyncResult, error)
	SyncProducts(ctx context.Context, opts SyncOptions) (SyncResult, error)
	SyncCustomers(ctx context.Context, opts SyncOptions) (SyncResult, error)
	CalculateTax(ctx context.Context, req Record) (Record, error)
	UpdateTransaction(ctx context.Context, id string, patch Record) error
	HandleWebhook(ctx context.Context, req WebhookRequest) error
	TestConnection(ctx context.Context) error
	GetRateLimits(ctx context.Context) (RateLimitStatus, error)
}
