//go:build integration

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"everkeep/internal/dispatch"
	"everkeep/internal/platform/config"
	redisplatform "everkeep/internal/platform/redis"
	"everkeep/pkg/testutil/containers"
)

func TestRedisLeaseSerializesRuns(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	client, err := redisplatform.New(config.RedisConfig{
		URL:          rc.Addr,
		PoolSize:     5,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	first := dispatch.NewRedisLease(client, "instance-a")
	second := dispatch.NewRedisLease(client, "instance-b")

	acquired, err := first.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	t.Run("second instance is locked out while the lease is held", func(t *testing.T) {
		acquired, err := second.Acquire(ctx, time.Minute)
		require.NoError(t, err)
		require.False(t, acquired)
	})

	t.Run("release only honors the holder", func(t *testing.T) {
		require.NoError(t, second.Release(ctx))

		// The non-holder's release was a no-op; the lease is still taken.
		acquired, err := second.Acquire(ctx, time.Minute)
		require.NoError(t, err)
		require.False(t, acquired)

		require.NoError(t, first.Release(ctx))
		acquired, err = second.Acquire(ctx, time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)
	})
}
