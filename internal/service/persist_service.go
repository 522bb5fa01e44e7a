package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/logger"
	queue "sdrwatch/pkg/queue/asynq"
	"sdrwatch/pkg/store/mysql"
	storemodel "sdrwatch/pkg/store/mysql/model"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// PersistService writes scan outcomes to MySQL. Persistence is a soft
// concern throughout: every failure is logged and reported upward, but
// a scan cycle never fails because the database was unavailable. With
// no datastore attached the whole service is a no-op.
type PersistService struct {
	receivers receiverRepository
	cycles    scanCycleRepository
	history   historyRepository
	tx        txRunner

	queue *queue.Manager // nil means maintenance runs inline

	retentionDays int
	purgeGate     time.Duration

	mu        sync.Mutex
	lastPurge time.Time

	now func() time.Time
}

// NewPersistService creates a persist service. repo may be nil
// (persistence disabled) and queueMgr may be nil (maintenance work
// runs inline instead of through the work queue).
func NewPersistService(repo *mysql.Repository, queueMgr *queue.Manager, retentionDays, purgeGateHours int) *PersistService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if purgeGateHours <= 0 {
		purgeGateHours = 6
	}
	s := &PersistService{
		queue:         queueMgr,
		retentionDays: retentionDays,
		purgeGate:     time.Duration(purgeGateHours) * time.Hour,
		now:           time.Now,
	}
	if repo != nil {
		s.receivers = repo.Receiver
		s.cycles = repo.ScanCycle
		s.history = repo.History
		s.tx = repo.GetDatastore()
	}
	return s
}

// Enabled reports whether a datastore is attached.
func (s *PersistService) Enabled() bool {
	return s.receivers != nil
}

// PersistScan records one completed scan cycle: the cycle row, the
// registry upsert per receiver, the history rows, and the deferred
// uptime recompute. The registry and history writes of one cycle share
// a transaction. labels carries the submitted display names keyed by
// normalized URL.
func (s *PersistService) PersistScan(ctx context.Context, meta model.ScanMeta, results map[string]model.ReceiverStatus, labels map[string]string) error {
	if !s.Enabled() {
		logger.Debugf("persistence disabled, dropping scan cycle %s (%d results)", meta.CycleID, len(results))
		return nil
	}

	cycle := &storemodel.ScanCycle{
		CycleID:   meta.CycleID,
		Total:     meta.Total,
		StartedAt: meta.StartedAt,
	}
	if err := s.cycles.Create(ctx, cycle); err != nil {
		return fmt.Errorf("persist scan cycle %s: %w", meta.CycleID, err)
	}

	var onlineCount int
	err := s.execTx(ctx, func(ctx context.Context) error {
		rows := make([]*storemodel.StatusHistory, 0, len(results))
		onlineCount = 0
		for url, status := range results {
			if status.Online {
				onlineCount++
			}

			var lastErr *string
			if status.Error != "" {
				e := status.Error
				lastErr = &e
			}
			rec, err := s.receivers.Upsert(ctx, mysql.Observation{
				URL:       url,
				Type:      string(status.Type),
				Label:     labels[url],
				Online:    status.Online,
				Error:     lastErr,
				CheckedAt: status.CheckedAt,
			})
			if err != nil {
				logger.Errorf("failed to upsert receiver %s: %v", url, err)
				continue
			}

			rows = append(rows, &storemodel.StatusHistory{
				ReceiverID:    rec.ID,
				CycleID:       meta.CycleID,
				Online:        status.Online,
				ViaProxy:      status.ViaProxy,
				Users:         status.Users,
				SNR:           status.SNR,
				UptimeSeconds: status.UptimeSeconds,
				Error:         lastErr,
				CheckedAt:     status.CheckedAt,
			})
		}
		return s.history.BulkInsert(ctx, rows)
	})
	if err != nil {
		return fmt.Errorf("persist history for cycle %s: %w", meta.CycleID, err)
	}

	offlineCount := meta.Total - onlineCount
	durationMs := meta.CompletedAt.Sub(meta.StartedAt).Milliseconds()
	if err := s.cycles.Complete(ctx, meta.CycleID, onlineCount, offlineCount, meta.CompletedAt, durationMs); err != nil {
		return fmt.Errorf("complete scan cycle %s: %w", meta.CycleID, err)
	}

	s.scheduleUptimeRecompute(ctx, meta.CycleID)
	s.maybeSchedulePurge(ctx)

	logger.Infof("scan cycle %s persisted, %d receivers, %d online", meta.CycleID, meta.Total, onlineCount)
	return nil
}

// execTx runs fn transactionally when a runner is attached.
func (s *PersistService) execTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.ExecTx(ctx, fn)
}

// scheduleUptimeRecompute hands the window recompute to the work queue
// so overlapping cycles serialize; without a queue it runs inline.
func (s *PersistService) scheduleUptimeRecompute(ctx context.Context, cycleID string) {
	asOf := s.now()
	if s.queue != nil {
		err := s.queue.EnqueueUptimeRecompute(ctx, cycleID, asOf)
		if err == nil {
			return
		}
		logger.Warnf("uptime recompute enqueue failed, running inline: %v", err)
	}
	if err := s.receivers.RecomputeUptimeWindows(ctx, asOf); err != nil {
		logger.Errorf("inline uptime recompute failed: %v", err)
	}
}

// maybeSchedulePurge runs the retention purge opportunistically after
// a cycle, at most once per gate interval.
func (s *PersistService) maybeSchedulePurge(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastPurge) < s.purgeGate {
		s.mu.Unlock()
		return
	}
	s.lastPurge = now
	s.mu.Unlock()

	before := now.AddDate(0, 0, -s.retentionDays)
	if s.queue != nil {
		err := s.queue.EnqueueHistoryPurge(ctx, before)
		if err == nil {
			return
		}
		logger.Warnf("history purge enqueue failed, running inline: %v", err)
	}
	s.purge(ctx, before)
}

// ListReceivers returns the fleet registry with its rolling uptime
// aggregates.
func (s *PersistService) ListReceivers(ctx context.Context) ([]*storemodel.Receiver, error) {
	if !s.Enabled() {
		return nil, nil
	}
	return s.receivers.List(ctx)
}

// ReceiverHistory is the persisted record of one receiver: the registry
// row, a live 24h uptime over the raw history, and the recent entries.
type ReceiverHistory struct {
	Receiver  *storemodel.Receiver        `json:"receiver"`
	Uptime24h *float64                    `json:"uptime_24h"`
	History   []*storemodel.StatusHistory `json:"history"`
}

// GetReceiverHistory looks one receiver up by raw URL and returns its
// check history, newest first.
func (s *PersistService) GetReceiverHistory(ctx context.Context, rawURL string, limit int) (*ReceiverHistory, error) {
	if !s.Enabled() {
		return nil, ErrReceiverNotFound
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rec, err := s.receivers.GetByURL(ctx, model.NormalizeURL(rawURL))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, err
	}

	since := s.now().Add(-24 * time.Hour)
	entries, err := s.history.ListByReceiver(ctx, rec.ID, time.Time{}, limit)
	if err != nil {
		return nil, err
	}

	out := &ReceiverHistory{Receiver: rec, History: entries}
	if pct, ok, err := s.history.WindowUptime(ctx, rec.ID, since); err != nil {
		logger.Warnf("window uptime for receiver %d failed: %v", rec.ID, err)
	} else if ok {
		out.Uptime24h = &pct
	}
	return out, nil
}

// ListRecentCycles returns the latest scan cycles, newest first.
func (s *PersistService) ListRecentCycles(ctx context.Context, limit int) ([]*storemodel.ScanCycle, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.cycles.ListRecent(ctx, limit)
}

// PurgeOlderThan deletes history and cycle rows past retention.
// Exposed for the background retention job.
func (s *PersistService) PurgeOlderThan(ctx context.Context, before time.Time) error {
	if !s.Enabled() {
		return nil
	}
	s.purge(ctx, before)
	return nil
}

func (s *PersistService) purge(ctx context.Context, before time.Time) {
	histRows, err := s.history.DeleteOlderThan(ctx, before)
	if err != nil {
		logger.Errorf("history purge failed: %v", err)
		return
	}
	cycleRows, err := s.cycles.DeleteOlderThan(ctx, before)
	if err != nil {
		logger.Errorf("scan cycle purge failed: %v", err)
		return
	}
	if histRows > 0 || cycleRows > 0 {
		logger.Infof("retention purge removed %d history rows, %d cycles (cutoff %s)",
			histRows, cycleRows, before.Format(time.RFC3339))
	}
}

// HandleUptimeRecompute processes a queued uptime recompute task.
func (s *PersistService) HandleUptimeRecompute(ctx context.Context, task *asynq.Task) error {
	if !s.Enabled() {
		return nil
	}
	var payload queue.UptimeRecomputePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("bad uptime recompute payload: %w", err)
	}
	logger.Debugf("recomputing uptime windows for cycle %s", payload.CycleID)
	return s.receivers.RecomputeUptimeWindows(ctx, payload.AsOf)
}

// HandleHistoryPurge processes a queued retention purge task.
func (s *PersistService) HandleHistoryPurge(ctx context.Context, task *asynq.Task) error {
	if !s.Enabled() {
		return nil
	}
	var payload queue.HistoryPurgePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("bad history purge payload: %w", err)
	}
	s.purge(ctx, payload.Before)
	return nil
}
