//go:build integration

package assign

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcel-gle/gb-qr-tracker/internal/store"
	"github.com/marcel-gle/gb-qr-tracker/internal/testutil"
)

func newIntegrationRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := testutil.RequireEnv(t, "REDIS_URL")

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, testutil.FlushRedis(context.Background(), rdb))
	return rdb
}

func TestRedisLocker_ExclusivePerBase(t *testing.T) {
	rdb := newIntegrationRedis(t)
	ctx := context.Background()

	first := NewRedisLocker(rdb, 5*time.Second, 0)
	second := NewRedisLocker(rdb, 5*time.Second, 0)

	unlock, err := first.Lock(ctx, "acme")
	require.NoError(t, err)

	_, err = second.Lock(ctx, "acme")
	assert.ErrorIs(t, err, ErrLocked)

	otherUnlock, err := second.Lock(ctx, "beta")
	require.NoError(t, err, "other bases are independent")
	require.NoError(t, otherUnlock(ctx))

	require.NoError(t, unlock(ctx))
	unlock, err = second.Lock(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	rdb := newIntegrationRedis(t)
	ctx := context.Background()

	holder := NewRedisLocker(rdb, 5*time.Second, 0)
	unlock, err := holder.Lock(ctx, "acme")
	require.NoError(t, err)

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = unlock(context.Background())
	}()

	waiter := NewRedisLocker(rdb, 5*time.Second, 3*time.Second)
	got, err := waiter.Lock(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, got(ctx))
}

func TestImport_WithRedisLocker(t *testing.T) {
	rdb := newIntegrationRedis(t)
	ctx := context.Background()

	repo := store.NewMemory()
	a := New(repo, WithLocker(NewRedisLocker(rdb, 5*time.Second, 3*time.Second)), WithConcurrency(4))

	results := a.Import(ctx, records("acme", "acme", "beta"))
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	assert.Equal(t, []string{"acme", "acme-1", "beta"}, flatten(3, results))

	// Locks are released once the group commits.
	exists, err := rdb.Exists(ctx, lockKeyPrefix+"acme").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
