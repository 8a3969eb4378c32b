package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisClient spins up an in-process miniredis server so these
// tests exercise real GET/SET/DEL/EXPIRE semantics without a Redis
// instance on the host.
func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestNewRedisMetrics(t *testing.T) {
	client := newTestRedisClient(t)

	rm := NewRedisMetrics(client)

	assert.NotNil(t, rm)
	assert.Equal(t, client, rm.client)
	assert.Equal(t, int64(0), rm.hits)
	assert.Equal(t, int64(0), rm.misses)
}

func TestRedisMetrics_Client(t *testing.T) {
	client := newTestRedisClient(t)

	rm := NewRedisMetrics(client)

	// Client() should return the underlying client
	assert.Equal(t, client, rm.Client())
}

func TestRedisMetrics_ResetStats(t *testing.T) {
	client := newTestRedisClient(t)

	rm := NewRedisMetrics(client)

	// Set some values
	rm.hits = 100
	rm.misses = 50

	// Reset
	rm.ResetStats()

	assert.Equal(t, int64(0), rm.hits)
	assert.Equal(t, int64(0), rm.misses)
}

func TestRedisMetrics_UpdateHitRate(t *testing.T) {
	client := newTestRedisClient(t)

	rm := NewRedisMetrics(client)

	// Test with no hits/misses
	assert.NotPanics(t, func() {
		rm.updateHitRate()
	})

	// Test with some hits
	rm.hits = 80
	rm.misses = 20

	assert.NotPanics(t, func() {
		rm.updateHitRate()
	})

	// Test with all hits
	rm.hits = 100
	rm.misses = 0

	assert.NotPanics(t, func() {
		rm.updateHitRate()
	})

	// Test with all misses
	rm.hits = 0
	rm.misses = 100

	assert.NotPanics(t, func() {
		rm.updateHitRate()
	})
}

func TestRedisMetrics_Get(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	rm := NewRedisMetrics(client)

	testKey := "test:metrics:get"

	// Test cache miss
	_, err := rm.Get(ctx, testKey)
	assert.Error(t, err)
	assert.Equal(t, redis.Nil, err)
	assert.Equal(t, int64(0), rm.hits)
	assert.Equal(t, int64(1), rm.misses)

	// Set a value
	require.NoError(t, client.Set(ctx, testKey, "test-value", time.Minute).Err())

	// Reset stats
	rm.ResetStats()

	// Test cache hit
	val, err := rm.Get(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, "test-value", val)
	assert.Equal(t, int64(1), rm.hits)
	assert.Equal(t, int64(0), rm.misses)
}

func TestRedisMetrics_Set(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	rm := NewRedisMetrics(client)

	testKey := "test:metrics:set"

	err := rm.Set(ctx, testKey, "test-value", time.Minute)
	assert.NoError(t, err)

	val, err := client.Get(ctx, testKey).Result()
	assert.NoError(t, err)
	assert.Equal(t, "test-value", val)
}

func TestRedisMetrics_Del(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	rm := NewRedisMetrics(client)

	testKey := "test:metrics:del"

	require.NoError(t, client.Set(ctx, testKey, "test-value", time.Minute).Err())

	err := rm.Del(ctx, testKey)
	assert.NoError(t, err)

	_, err = client.Get(ctx, testKey).Result()
	assert.Error(t, err)
	assert.Equal(t, redis.Nil, err)
}

func TestRedisMetrics_Exists(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	rm := NewRedisMetrics(client)

	testKey := "test:metrics:exists"

	count, err := rm.Exists(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, client.Set(ctx, testKey, "test-value", time.Minute).Err())

	count, err = rm.Exists(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisMetrics_Expire(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	rm := NewRedisMetrics(client)

	testKey := "test:metrics:expire"

	require.NoError(t, client.Set(ctx, testKey, "test-value", 0).Err())

	err := rm.Expire(ctx, testKey, time.Second)
	assert.NoError(t, err)

	ttl, err := client.TTL(ctx, testKey).Result()
	assert.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestRedisMetrics_HitRateCalculation(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	rm := NewRedisMetrics(client)

	testKey1 := "test:metrics:hit1"
	testKey2 := "test:metrics:hit2"

	require.NoError(t, client.Set(ctx, testKey1, "value1", time.Minute).Err())

	rm.ResetStats()

	// Generate 2 hits and 1 miss
	_, _ = rm.Get(ctx, testKey1)
	_, _ = rm.Get(ctx, testKey1)
	_, _ = rm.Get(ctx, testKey2)

	assert.Equal(t, int64(2), rm.hits)
	assert.Equal(t, int64(1), rm.misses)
}

func TestRedisMetrics_MultipleKeys(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	rm := NewRedisMetrics(client)

	keys := []string{"test:multi:1", "test:multi:2", "test:multi:3"}

	for i, key := range keys {
		err := rm.Set(ctx, key, i, time.Minute)
		assert.NoError(t, err)
	}

	err := rm.Del(ctx, keys...)
	assert.NoError(t, err)

	for _, key := range keys {
		_, err := client.Get(ctx, key).Result()
		assert.Error(t, err)
	}
}
