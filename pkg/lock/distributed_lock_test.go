package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLockAcquireAndRelease(t *testing.T) {
	client := newTestClient(t)

	lock := NewRedisDistributedLock(client, "sdrwatch:test-lock")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	err = lock.Unlock(ctx)
	assert.NoError(t, err)
	assert.False(t, lock.IsHeld())
}

func TestLockMutualExclusion(t *testing.T) {
	client := newTestClient(t)

	lock1 := NewRedisDistributedLock(client, "sdrwatch:retention-lock")
	lock2 := NewRedisDistributedLock(client, "sdrwatch:retention-lock")
	ctx := context.Background()

	acquired1, err := lock1.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired1)

	acquired2, err := lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.False(t, acquired2, "second instance must not acquire a held lock")

	assert.NoError(t, lock1.Unlock(ctx))

	acquired2, err = lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired2, "lock must be free after release")
	assert.NoError(t, lock2.Unlock(ctx))
}

func TestLockExpiresAfterTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	lock1 := NewRedisDistributedLock(client, "sdrwatch:expire-lock")
	lock2 := NewRedisDistributedLock(client, "sdrwatch:expire-lock")
	ctx := context.Background()

	acquired1, err := lock1.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired1)

	mr.FastForward(lockTTL + time.Second)

	acquired2, err := lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired2, "lock must be available once the TTL lapses")
	assert.NoError(t, lock2.Unlock(ctx))
}

func TestLockNilClientDegradesToNoop(t *testing.T) {
	lock := NewRedisDistributedLock(nil, "sdrwatch:nil-lock")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	assert.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}

func TestLockReleaseOnlyOwnValue(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	lock1 := NewRedisDistributedLock(client, "sdrwatch:owner-lock")
	lock2 := NewRedisDistributedLock(client, "sdrwatch:owner-lock")

	acquired, err := lock1.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)

	// A stranger's unlock must not free the holder's lock
	assert.NoError(t, lock2.Unlock(ctx))

	stillBlocked, err := lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.False(t, stillBlocked)

	assert.NoError(t, lock1.Unlock(ctx))
}
