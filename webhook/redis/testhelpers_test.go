//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

/* deliveryStore is a throwaway Redis holding deliveries for one test
 * The container is terminated through t.Cleanup
 */
type deliveryStore struct {
	addr   string
	client *goredis.Client
}

// startDeliveryStore runs redis:7-alpine and waits until it answers PING
func startDeliveryStore(t *testing.T, ctx context.Context) *deliveryStore {
	t.Helper()

	container, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "starting delivery store")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating delivery store: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "reading delivery store address")

	store := &deliveryStore{addr: strings.TrimPrefix(uri, "redis://")}
	store.client = goredis.NewClient(&goredis.Options{Addr: store.addr})
	t.Cleanup(func() { _ = store.client.Close() })

	require.Eventually(t, func() bool {
		return store.client.Ping(ctx).Err() == nil
	}, 10*time.Second, 100*time.Millisecond, "delivery store never answered")
	return store
}

// repository opens a separate delivery repository on the store, as another process would
func (s *deliveryStore) repository(t *testing.T, opts ...redis.Option) *redis.Repository {
	t.Helper()

	repo, err := redis.NewRepository(s.addr, "", 0, opts...)
	require.NoError(t, err, "opening delivery repository")
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	return repo
}

func (s *deliveryStore) ttl(t *testing.T, key string) time.Duration {
	t.Helper()

	ttl, err := s.client.TTL(context.Background(), key).Result()
	require.NoError(t, err)
	return ttl
}

func (s *deliveryStore) exists(t *testing.T, key string) bool {
	t.Helper()

	n, err := s.client.Exists(context.Background(), key).Result()
	require.NoError(t, err)
	return n > 0
}

// deliveryID is unique across runs against a reused container
func deliveryID(n int) string {
	return fmt.Sprintf("d-%d-%d", n, time.Now().UnixNano())
}
