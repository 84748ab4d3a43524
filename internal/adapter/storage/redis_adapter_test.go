package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func newTestRedis(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisAdapter(client, time.Hour, 10*time.Minute), mr
}

func TestSetIdempotency_Success(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	ok, err := adapter.SetIdempotency(ctx, "checkout:u1:k1")
	require.NoError(t, err)
	assert.True(t, ok, "first claim should succeed")

	ok, err = adapter.SetIdempotency(ctx, "checkout:u1:k1")
	require.NoError(t, err)
	assert.False(t, ok, "second claim should be rejected")
}

func TestSetIdempotency_Expires(t *testing.T) {
	adapter, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := adapter.SetIdempotency(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Hour)

	ok, err = adapter.SetIdempotency(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseIdempotency(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := adapter.SetIdempotency(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, adapter.ReleaseIdempotency(ctx, "k"))

	ok, err := adapter.SetIdempotency(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "released key should be claimable again")
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	adapter, _ := newTestRedis(t)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
}

func TestProductCache_RoundTrip(t *testing.T) {
	adapter, mr := newTestRedis(t)
	ctx := context.Background()

	got, err := adapter.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got, "miss should return nil")

	p := &domain.Product{ID: "p1", Name: "Widget", Code: "W-1", Price: decimal.RequireFromString("12.50"), Stock: 4}
	require.NoError(t, adapter.SetProduct(ctx, p))
	assert.True(t, mr.Exists("product:p1"))

	got, err = adapter.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Widget", got.Name)
	assert.True(t, got.Price.Equal(p.Price))
	assert.Equal(t, 4, got.Stock)

	mr.FastForward(11 * time.Minute)
	got, err = adapter.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got, "entry should expire after the product TTL")
}

func TestInvalidateProducts(t *testing.T) {
	adapter, mr := newTestRedis(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, adapter.SetProduct(ctx, &domain.Product{ID: id}))
	}

	require.NoError(t, adapter.InvalidateProducts(ctx, "a", "b"))
	require.NoError(t, adapter.InvalidateProducts(ctx))

	assert.False(t, mr.Exists("product:a"))
	assert.False(t, mr.Exists("product:b"))
	assert.True(t, mr.Exists("product:c"))
}

func TestProductCache_CorruptEntry(t *testing.T) {
	adapter, mr := newTestRedis(t)

	require.NoError(t, mr.Set("product:bad", "{not json"))

	_, err := adapter.GetProduct(context.Background(), "bad")
	assert.Error(t, err)
}
