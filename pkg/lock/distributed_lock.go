// Package lock provides a redis-backed mutual exclusion primitive so
// that fleet-wide maintenance (history purges, uptime recomputes) runs
// on exactly one instance at a time.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sdrwatch/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	lockTTL            = 30 * time.Second
	lockAcquireTimeout = 5 * time.Second
	lockExtendInterval = 10 * time.Second
)

// releaseScript deletes the key only when it still carries our value,
// so an instance never releases a lock another instance re-acquired
// after our TTL lapsed.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// extendScript refreshes the TTL only on our own lock.
const extendScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("expire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// DistributedLock is the mutual exclusion contract used by jobs.
type DistributedLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	IsHeld() bool
}

// RedisDistributedLock implements DistributedLock over SET NX plus a
// background renewal goroutine. With a nil client it degrades to a
// no-op lock for single-instance deployments.
type RedisDistributedLock struct {
	client    *redis.Client
	lockKey   string
	lockValue string

	mu           sync.Mutex
	isHeld       bool
	stopRenew    chan struct{}
	renewStopped bool
}

// NewRedisDistributedLock creates a lock over the given key, e.g.
// "sdrwatch:retention-lock".
func NewRedisDistributedLock(client *redis.Client, lockKey string) *RedisDistributedLock {
	return &RedisDistributedLock{
		client:    client,
		lockKey:   lockKey,
		lockValue: fmt.Sprintf("%s-%d", lockKey, time.Now().UnixNano()),
	}
}

// TryLock attempts to acquire the lock without blocking on contention.
func (l *RedisDistributedLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		logger.Debug("redis client is nil, distributed lock degrades to single-instance mode")
		l.mu.Lock()
		l.isHeld = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.lockKey, l.lockValue, lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.lockKey, err)
	}
	if !acquired {
		logger.Debugf("lock %s already held by another instance", l.lockKey)
		return false, nil
	}

	l.mu.Lock()
	l.isHeld = true
	// Fresh channel per acquisition so TryLock/Unlock cycles work.
	l.stopRenew = make(chan struct{})
	l.renewStopped = false
	l.mu.Unlock()

	go l.renewLoop(ctx)
	return true, nil
}

// Unlock releases the lock if held.
func (l *RedisDistributedLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.isHeld {
		l.mu.Unlock()
		return nil
	}
	if l.client == nil {
		l.isHeld = false
		l.mu.Unlock()
		return nil
	}
	if !l.renewStopped {
		l.renewStopped = true
		close(l.stopRenew)
	}
	l.mu.Unlock()

	result, err := l.client.Eval(ctx, releaseScript, []string{l.lockKey}, l.lockValue).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.lockKey, err)
	}

	l.mu.Lock()
	l.isHeld = false
	l.mu.Unlock()

	if v, ok := result.(int64); ok && v == 0 {
		logger.Warnf("lock %s was already released or taken over by another instance", l.lockKey)
	}
	return nil
}

// IsHeld reports whether this instance currently believes it holds the
// lock.
func (l *RedisDistributedLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isHeld
}

func (l *RedisDistributedLock) renewLoop(ctx context.Context) {
	ticker := time.NewTicker(lockExtendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopRenew:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := l.client.Eval(ctx, extendScript,
				[]string{l.lockKey}, l.lockValue, int(lockTTL.Seconds())).Result()
			if err != nil {
				logger.Warnf("failed to renew lock %s: %v", l.lockKey, err)
				l.markLost()
				return
			}
			if v, ok := result.(int64); ok && v == 0 {
				logger.Warnf("lock %s renewal rejected, lock lost", l.lockKey)
				l.markLost()
				return
			}
		}
	}
}

func (l *RedisDistributedLock) markLost() {
	l.mu.Lock()
	l.isHeld = false
	l.mu.Unlock()
}
