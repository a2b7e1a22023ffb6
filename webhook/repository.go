package webhook

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an endpoint or delivery does not exist
var ErrNotFound = errors.New("not found")

// ErrEndpointNotActive is recorded on deliveries whose endpoint was disabled
var ErrEndpointNotActive = errors.New("endpoint is not active")

// ValidationError marks caller input that was rejected before anything was stored
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// EndpointReader provides read operations for endpoints
type EndpointReader interface {
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)
	/* ListEndpoints returns the endpoints of one integration
	 * An empty integrationID lists every endpoint
	 */
	ListEndpoints(ctx context.Context, integrationID string) ([]Endpoint, error)
}

// EndpointWriter provides write operations for endpoints
type EndpointWriter interface {
	SaveEndpoint(ctx context.Context, endpoint Endpoint) error
	/* UpdateEndpoint applies fn to the stored endpoint atomically
	 * fn returning an error aborts the update
	 */
	UpdateEndpoint(ctx context.Context, id string, fn func(*Endpoint) error) (Endpoint, error)
}

// DeliveryReader provides read operations for deliveries
type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	/* DueDeliveries returns non-terminal deliveries whose NextRetryAt is at
	 * or before now, oldest first, at most limit of them
	 */
	DueDeliveries(ctx context.Context, now time.Time, limit int) ([]Delivery, error)
	// PendingForEndpoint returns the non-terminal deliveries of one endpoint
	PendingForEndpoint(ctx context.Context, endpointID string) ([]Delivery, error)
}

// DeliveryWriter provides write operations for deliveries
type DeliveryWriter interface {
	SaveDelivery(ctx context.Context, delivery Delivery) error
	/* UpdateDelivery applies fn to the stored delivery atomically
	 * Terminal deliveries are expired by the store after their TTL
	 */
	UpdateDelivery(ctx context.Context, id string, fn func(*Delivery) error) (Delivery, error)
}

// StatsReader exposes aggregate counts for metrics
type StatsReader interface {
	// QueueLengths maps endpoint id to its number of non-terminal deliveries
	QueueLengths(ctx context.Context) (map[string]int64, error)
	StatusCounts(ctx context.Context) (map[Status]int64, error)
	// DeliveredSince counts deliveries that reached Delivered after since
	DeliveredSince(ctx context.Context, since time.Time) (int64, error)
}

// SweeperInfo is the heartbeat payload of a running sweeper
type SweeperInfo struct {
	SweeperID     string    `json:"sweeper_id"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// HeartbeatStore tracks live sweepers
type HeartbeatStore interface {
	Heartbeat(ctx context.Context, info SweeperInfo) error
	RemoveHeartbeat(ctx context.Context, sweeperID string) error
	ActiveSweepers(ctx context.Context) ([]SweeperInfo, error)
}

/* AttemptClaimer leases an attempt to one worker across every process
 * sharing the store. A lease expires after ttl so a crashed worker does
 * not block the delivery forever
 */
type AttemptClaimer interface {
	ClaimAttempt(ctx context.Context, deliveryID string, attempt int, ttl time.Duration) (bool, error)
	ReleaseAttempt(ctx context.Context, deliveryID string, attempt int) error
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	EndpointReader
	EndpointWriter
	DeliveryReader
	DeliveryWriter
	StatsReader
	HeartbeatStore
	AttemptClaimer
	Close(ctx context.Context) error
}
