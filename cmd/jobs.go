package main

import (
	"context"
	"time"

	"sdrwatch/internal/service"
	"sdrwatch/pkg/lock"
	"sdrwatch/pkg/logger"
	"sdrwatch/pkg/proxypool"
	redisstore "sdrwatch/pkg/store/redis"

	"github.com/go-redis/redis/v8"
)

const retentionLockKey = "sdrwatch:retention-lock"

// retentionCleanupJob purges status history and scan cycles older than
// the retention window. Runs daily, aligned to midnight, behind a
// distributed lock so only one instance does the sweep.
type retentionCleanupJob struct {
	persist       *service.PersistService
	lock          lock.DistributedLock
	retentionDays int
}

func newRetentionCleanupJob(persist *service.PersistService, redisClient *redisstore.RedisClient, retentionDays int) *retentionCleanupJob {
	// Without Redis the lock degrades to single-instance no-op mode.
	var redisConn *redis.Client
	if redisClient != nil {
		redisConn = redisClient.GetClient()
	}
	dl := lock.NewRedisDistributedLock(redisConn, retentionLockKey)
	return &retentionCleanupJob{
		persist:       persist,
		lock:          dl,
		retentionDays: retentionDays,
	}
}

func (j *retentionCleanupJob) Name() string {
	return "retention-cleanup"
}

func (j *retentionCleanupJob) Interval() time.Duration {
	return 24 * time.Hour
}

func (j *retentionCleanupJob) AlignToInterval() bool {
	return true
}

func (j *retentionCleanupJob) Run(ctx context.Context) error {
	acquired, err := j.lock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("retention cleanup skipped, another instance holds the lock")
		return nil
	}
	defer func() {
		if err := j.lock.Unlock(ctx); err != nil {
			logger.Warnf("failed to release retention lock: %v", err)
		}
	}()

	before := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	return j.persist.PurgeOlderThan(ctx, before)
}

// proxyRefreshJob keeps the proxy pool warm so probes never block on a
// cold feed fetch.
type proxyRefreshJob struct {
	pool     *proxypool.Pool
	interval time.Duration
}

func newProxyRefreshJob(pool *proxypool.Pool, interval time.Duration) *proxyRefreshJob {
	return &proxyRefreshJob{pool: pool, interval: interval}
}

func (j *proxyRefreshJob) Name() string {
	return "proxy-refresh"
}

func (j *proxyRefreshJob) Interval() time.Duration {
	return j.interval
}

func (j *proxyRefreshJob) Run(ctx context.Context) error {
	if err := j.pool.Refresh(ctx); err != nil {
		// Probes fall back to direct connections; a stale or empty
		// pool is not fatal.
		logger.Warnf("proxy feed refresh failed: %v", err)
	}
	logger.Debugf("proxy pool refreshed, %d proxies available", j.pool.Size())
	return nil
}
