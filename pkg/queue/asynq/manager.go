// Package asynq wraps the maintenance work queue. Post-scan work
// (uptime window recomputes, opportunistic history purges) is enqueued
// here and processed strictly one task at a time, so two overlapping
// scan cycles can never race on the aggregate columns.
package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sdrwatch/pkg/config"
	"sdrwatch/pkg/logger"

	"github.com/hibiken/asynq"
)

const (
	TypeUptimeRecompute = "maintenance:uptime-recompute"
	TypeHistoryPurge    = "maintenance:history-purge"

	maintenanceQueue = "maintenance"
)

// UptimeRecomputePayload carries the cycle that triggered the
// recompute, for logging only.
type UptimeRecomputePayload struct {
	CycleID string    `json:"cycle_id"`
	AsOf    time.Time `json:"as_of"`
}

// HistoryPurgePayload carries the retention cutoff.
type HistoryPurgePayload struct {
	Before time.Time `json:"before"`
}

// Manager queue manager
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewManager creates queue manager
func NewManager(cfg *config.Config) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Serialized on purpose, see package comment.
			Concurrency: 1,
			Queues: map[string]int{
				maintenanceQueue: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
		},
	)

	mux := asynq.NewServeMux()

	return &Manager{
		client: client,
		server: server,
		mux:    mux,
	}, nil
}

// EnqueueUptimeRecompute queues an uptime window recompute
func (m *Manager) EnqueueUptimeRecompute(ctx context.Context, cycleID string, asOf time.Time) error {
	payload, err := json.Marshal(UptimeRecomputePayload{CycleID: cycleID, AsOf: asOf})
	if err != nil {
		return fmt.Errorf("failed to marshal uptime recompute payload: %w", err)
	}

	task := asynq.NewTask(TypeUptimeRecompute, payload)
	info, err := m.client.EnqueueContext(ctx, task,
		asynq.Queue(maintenanceQueue),
		asynq.Timeout(5*time.Minute),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue uptime recompute: %w", err)
	}

	logger.Infof("uptime recompute enqueued, cycle_id: %s, queue: %s", cycleID, info.Queue)
	return nil
}

// EnqueueHistoryPurge queues a retention purge
func (m *Manager) EnqueueHistoryPurge(ctx context.Context, before time.Time) error {
	payload, err := json.Marshal(HistoryPurgePayload{Before: before})
	if err != nil {
		return fmt.Errorf("failed to marshal history purge payload: %w", err)
	}

	task := asynq.NewTask(TypeHistoryPurge, payload)
	info, err := m.client.EnqueueContext(ctx, task,
		asynq.Queue(maintenanceQueue),
		asynq.Timeout(10*time.Minute),
		asynq.MaxRetry(2),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue history purge: %w", err)
	}

	logger.Infof("history purge enqueued, cutoff: %s, queue: %s", before.Format(time.RFC3339), info.Queue)
	return nil
}

// RegisterHandler registers task handler
func (m *Manager) RegisterHandler(pattern string, handler asynq.Handler) {
	m.mux.Handle(pattern, handler)
}

// Start starts queue processor
func (m *Manager) Start() error {
	logger.Info("starting maintenance queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor
func (m *Manager) Stop() {
	logger.Info("stopping maintenance queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes client
func (m *Manager) Close() error {
	return m.client.Close()
}
