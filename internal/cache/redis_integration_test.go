package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *RedisClient {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		t.Skip("Docker not available")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(RedisConfig{Addr: host + ":" + port.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	return err == nil
}

func TestRedisClient_Integration(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("set get delete", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "cache:test", []byte("value"), time.Minute))

		val, err := client.Get(ctx, "cache:test")
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), val)

		require.NoError(t, client.Delete(ctx, "cache:test"))
		_, err = client.Get(ctx, "cache:test")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("incr and exists", func(t *testing.T) {
		n, err := client.Incr(ctx, "count:test")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = client.Incr(ctx, "count:test")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		exists, err := client.Exists(ctx, "count:test")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("keys by prefix strip namespace", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "cache:a", []byte("1"), time.Minute))
		require.NoError(t, client.Set(ctx, "cache:b", []byte("2"), time.Minute))

		keys, err := client.KeysByPrefix(ctx, "cache:")
		require.NoError(t, err)
		assert.Contains(t, keys, "cache:a")
		assert.Contains(t, keys, "cache:b")

		require.NoError(t, client.DeleteByPrefix(ctx, "cache:"))
		keys, err = client.KeysByPrefix(ctx, "cache:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestNLClient_IntegrationRoundTrip(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	nl := NewNLClient(client, time.Hour, nil)
	require.NoError(t, nl.HealthCheck(ctx))

	err := nl.Store(ctx, "show top 5 pools", "SELECT ?p WHERE { ?p a cardano:Pool } ORDER BY DESC(?stake) LIMIT 5", StoreOptions{})
	require.NoError(t, err)

	result, err := nl.Lookup(ctx, "show top 3 pools")
	require.NoError(t, err)
	assert.Contains(t, result.RestoredQuery, "LIMIT 3")

	count, err := nl.QueryCount(ctx, "show top 5 pools")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, nl.Clear(ctx))
	_, err = nl.Lookup(ctx, "show top 5 pools")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
