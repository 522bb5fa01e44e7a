package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"sdrwatch/app/router"
	"sdrwatch/internal/jobs"
	"sdrwatch/internal/service"
	"sdrwatch/pkg/batch"
	"sdrwatch/pkg/cache"
	"sdrwatch/pkg/config"
	"sdrwatch/pkg/logger"
	"sdrwatch/pkg/probe"
	"sdrwatch/pkg/proxypool"
	queue "sdrwatch/pkg/queue/asynq"
	"sdrwatch/pkg/store/mysql"
	redisstore "sdrwatch/pkg/store/redis"
)

// Application holds every long-lived component and owns their
// lifecycle. Components are initialized in dependency order and torn
// down in reverse.
type Application struct {
	config *config.Config

	// Storage (both optional; nil when disabled in config)
	repo        *mysql.Repository
	redisClient *redisstore.RedisClient

	// Post-scan maintenance queue (nil without Redis)
	queueManager *queue.Manager

	// Probing pipeline
	proxyPool   *proxypool.Pool
	resultCache *cache.ResultCache
	checker     *probe.Checker
	batchEngine *batch.Engine

	// Services
	statusService  *service.StatusService
	persistService *service.PersistService
	refreshService *service.RefreshService

	router     *router.Router
	httpServer *http.Server

	jobsManager *jobs.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanupFuncs []func()
}

// NewApplication creates a new application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all components in order
func (a *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"config", a.initConfig},
		{"logger", a.initLogger},
		{"mysql", a.initMySQL},
		{"redis", a.initRedis},
		{"queue", a.initQueue},
		{"probing", a.initProbing},
		{"services", a.initServices},
		{"jobs", a.initJobs},
		{"http server", a.initHTTPServer},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	return nil
}

// Start starts the background workers and the HTTP server
func (a *Application) Start() error {
	if a.queueManager != nil {
		if err := a.queueManager.Start(); err != nil {
			return fmt.Errorf("failed to start queue manager: %w", err)
		}
	}

	a.jobsManager.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Infof("HTTP server listening on :%d", a.config.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the application
func (a *Application) Shutdown(ctx context.Context) error {
	// Stop taking new work first
	var httpErr error
	if a.httpServer != nil {
		httpErr = a.httpServer.Shutdown(ctx)
	}

	if a.jobsManager != nil {
		a.jobsManager.Stop()
		a.jobsManager.Wait()
	}

	if a.refreshService != nil {
		a.refreshService.Shutdown()
	}

	if a.queueManager != nil {
		a.queueManager.Stop()
	}

	a.cancel()
	a.wg.Wait()

	// Release resources in reverse initialization order
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}

	logger.Sync()
	return httpErr
}

func (a *Application) registerCleanup(fn func()) {
	a.cleanupFuncs = append(a.cleanupFuncs, fn)
}
