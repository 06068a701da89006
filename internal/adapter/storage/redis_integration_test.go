//go:build integration

package storage_test

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rl1809/fitfast/internal/adapter/storage"
	"github.com/rl1809/fitfast/internal/adapter/storage/storagetest"
	"github.com/rl1809/fitfast/internal/port"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStockStore(t *testing.T) {
	client := startRedis(t)

	suite.Run(t, &storagetest.StockStoreSuite{
		NewStore: func() port.StockStore { return storage.NewRedisStockStore(client) },
	})
}

func TestRedisCache_SetIdempotency(t *testing.T) {
	client := startRedis(t)
	cache := storage.NewRedisCache(client)
	ctx := context.Background()

	ok, err := cache.SetIdempotency(ctx, "order:req-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cache.SetIdempotency(ctx, "order:req-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.ReleaseIdempotency(ctx, "order:req-1"))
	ok, err = cache.SetIdempotency(ctx, "order:req-1")
	require.NoError(t, err)
	require.True(t, ok)
}
