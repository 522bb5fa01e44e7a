package main

import (
	"fmt"
	"net/http"
	"time"

	"sdrwatch/app/handler"
	"sdrwatch/app/router"
	"sdrwatch/internal/jobs"
	"sdrwatch/internal/service"
	"sdrwatch/pkg/batch"
	"sdrwatch/pkg/cache"
	"sdrwatch/pkg/config"
	"sdrwatch/pkg/logger"
	"sdrwatch/pkg/notification"
	"sdrwatch/pkg/probe"
	"sdrwatch/pkg/proxypool"
	queue "sdrwatch/pkg/queue/asynq"
	"sdrwatch/pkg/store/mysql"
	redisstore "sdrwatch/pkg/store/redis"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func (a *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	a.config = config.GlobalConfig
	return nil
}

func (a *Application) initLogger() error {
	return logger.Init()
}

func (a *Application) initMySQL() error {
	if !a.config.MySQL.Enabled {
		logger.Info("mysql disabled, running without persistence")
		return nil
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		a.config.MySQL.User,
		a.config.MySQL.Password,
		a.config.MySQL.Host,
		a.config.MySQL.Port,
		a.config.MySQL.Database,
	)

	repo, err := mysql.NewRepository(dsn)
	if err != nil {
		return err
	}
	if err := repo.Migrate(); err != nil {
		return err
	}

	a.repo = repo
	a.registerCleanup(func() {
		if err := a.repo.Close(); err != nil {
			logger.Errorf("failed to close mysql: %v", err)
		}
	})

	logger.Info("mysql initialized")
	return nil
}

func (a *Application) initRedis() error {
	if !a.config.Redis.Enabled {
		logger.Info("redis disabled, queue and distributed lock unavailable")
		return nil
	}

	client, err := redisstore.NewRedisClient(a.config)
	if err != nil {
		return err
	}

	a.redisClient = client
	a.registerCleanup(func() {
		if err := a.redisClient.Close(); err != nil {
			logger.Errorf("failed to close redis: %v", err)
		}
	})

	logger.Info("redis initialized")
	return nil
}

// initQueue wires the asynq maintenance queue. It needs both Redis
// (transport) and MySQL (the work it performs); without either the
// persistence service falls back to inline execution.
func (a *Application) initQueue() error {
	if a.redisClient == nil || a.repo == nil {
		return nil
	}

	manager, err := queue.NewManager(a.config)
	if err != nil {
		return err
	}

	a.queueManager = manager
	a.registerCleanup(func() {
		if err := a.queueManager.Close(); err != nil {
			logger.Errorf("failed to close queue manager: %v", err)
		}
	})

	logger.Info("queue manager initialized")
	return nil
}

func (a *Application) initProbing() error {
	var pool *proxypool.Pool
	if a.config.Proxy.Enabled {
		pool = proxypool.New(
			a.config.Proxy.FeedURL,
			time.Duration(a.config.Proxy.RefreshMinutes)*time.Minute,
			time.Duration(a.config.Proxy.FeedTimeout)*time.Second,
		)
	}
	a.proxyPool = pool

	a.resultCache = cache.New(time.Duration(a.config.Probe.CacheTTLMinutes) * time.Minute)

	fetcher := probe.NewFetcher(pool, a.config.Probe.UserAgent)
	a.checker = probe.NewChecker(fetcher, a.resultCache, &a.config.Probe)

	a.batchEngine = batch.NewEngine(a.checker.Check, batch.Options{
		WaveSize:  a.config.Batch.WaveSize,
		WaveDelay: time.Duration(a.config.Batch.WaveDelayMs) * time.Millisecond,
		JobTTL:    time.Duration(a.config.Batch.JobTTLMinutes) * time.Minute,
	})

	return nil
}

func (a *Application) initServices() error {
	a.statusService = service.NewStatusService(
		a.checker,
		a.resultCache,
		a.config.Batch.AdhocLimit,
		a.config.Batch.AdhocBatchMax,
	)

	a.persistService = service.NewPersistService(
		a.repo,
		a.queueManager,
		a.config.Retention.HistoryDays,
		a.config.Retention.PurgeMinIntervalHours,
	)

	if a.queueManager != nil {
		a.queueManager.RegisterHandler(queue.TypeUptimeRecompute, asynq.HandlerFunc(a.persistService.HandleUptimeRecompute))
		a.queueManager.RegisterHandler(queue.TypeHistoryPurge, asynq.HandlerFunc(a.persistService.HandleHistoryPurge))
	}

	a.refreshService = service.NewRefreshService(
		a.batchEngine,
		a.persistService,
		a.resultCache,
		a.config.Refresh.IntervalMinutes,
		a.config.Refresh.WatchIntervalSeconds,
	)

	if notifier := notification.NewFeishuNotifier(); notifier.Enabled() {
		a.refreshService.SetNotifier(notifier)
	}

	return nil
}

func (a *Application) initJobs() error {
	a.jobsManager = jobs.NewManager(a.ctx)

	if a.persistService.Enabled() {
		a.jobsManager.Register(newRetentionCleanupJob(a.persistService, a.redisClient,
			a.config.Retention.HistoryDays))
	}

	if a.proxyPool != nil {
		a.jobsManager.Register(newProxyRefreshJob(a.proxyPool,
			time.Duration(a.config.Proxy.RefreshMinutes)*time.Minute))
	}

	return nil
}

func (a *Application) initHTTPServer() error {
	gin.SetMode(a.config.Server.Mode)
	engine := gin.New()

	statusHandler := handler.NewStatusHandler(a.statusService, a.persistService)
	precheckHandler := handler.NewPrecheckHandler(a.refreshService)
	refreshHandler := handler.NewRefreshHandler(a.refreshService)
	wsHandler := handler.NewWSHandler(a.refreshService)

	a.router = router.NewRouter(statusHandler, precheckHandler, refreshHandler, wsHandler)
	a.router.Setup(engine)

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: engine,
	}

	return nil
}
