package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/batch"
	"sdrwatch/pkg/logger"
)

// precheckEngine is the slice of the batch engine the scheduler
// drives; swapped for a fake in tests.
type precheckEngine interface {
	Submit(targets []batch.Target) (string, int)
	Status(jobID string) (model.BatchSnapshot, bool)
	Current() (model.BatchSnapshot, bool)
	ResultsSince(since time.Time) (model.BatchSnapshot, bool)
	Cancel() bool
	Running() bool
}

// scanPersister receives completed cycles. Persistence failures are
// soft; the scheduler logs them and moves on.
type scanPersister interface {
	PersistScan(ctx context.Context, meta model.ScanMeta, results map[string]model.ReceiverStatus, labels map[string]string) error
}

// cacheClearer drops cached results before each cycle so the fleet
// gets genuinely fresh probes.
type cacheClearer interface {
	Clear()
}

// cycleNotifier pushes a summary of each settled cycle to an external
// channel. Optional; nil disables notifications. Failures are soft.
type cycleNotifier interface {
	NotifyCycleComplete(ctx context.Context, summary model.CycleSummary) error
}

// RefreshService owns the fleet and the auto-refresh schedule. The
// first precheck submission registers the fleet; once that initial
// run completes the scheduler re-scans it on a fixed interval. A tick
// that lands while a cycle is still running is skipped, never queued.
type RefreshService struct {
	engine   precheckEngine
	persist  scanPersister
	cache    cacheClearer
	notifier cycleNotifier

	interval      time.Duration
	watchInterval time.Duration

	mu             sync.Mutex
	fleet          []batch.Target
	labels         map[string]string
	active         bool
	cycleCount     int
	currentJobID   string
	awaitingJobID  string
	lastCycleAt    *time.Time
	lastCompleteAt *time.Time
	nextRefreshAt  *time.Time

	loopOnce sync.Once
	stopCh   chan struct{}

	now func() time.Time
}

// NewRefreshService creates the scheduler. The watcher loop starts
// lazily with the first precheck submission.
func NewRefreshService(engine precheckEngine, persist scanPersister, resultCache cacheClearer, intervalMinutes, watchIntervalSeconds int) *RefreshService {
	if intervalMinutes <= 0 {
		intervalMinutes = 30
	}
	if watchIntervalSeconds <= 0 {
		watchIntervalSeconds = 10
	}
	return &RefreshService{
		engine:        engine,
		persist:       persist,
		cache:         resultCache,
		interval:      time.Duration(intervalMinutes) * time.Minute,
		watchInterval: time.Duration(watchIntervalSeconds) * time.Second,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
}

// StartPrecheck registers the fleet and launches the initial full
// scan. Resubmitting replaces the fleet and supersedes any running
// job. Auto-refresh arms once this initial cycle completes.
func (s *RefreshService) StartPrecheck(receivers []model.PrecheckReceiver) (string, int, error) {
	if len(receivers) == 0 {
		return "", 0, NewValidationError("receivers", "at least one receiver is required")
	}

	targets := make([]batch.Target, 0, len(receivers))
	labels := make(map[string]string, len(receivers))
	for i, r := range receivers {
		if !model.ReceiverType(r.Type).Valid() {
			return "", 0, NewValidationError(fmt.Sprintf("receivers[%d].type", i),
				fmt.Sprintf("unsupported receiver type %q", r.Type))
		}
		if err := model.ValidateReceiverURL(r.URL); err != nil {
			return "", 0, NewValidationError(fmt.Sprintf("receivers[%d].url", i), err.Error())
		}
		normalized := model.NormalizeURL(r.URL)
		targets = append(targets, batch.Target{
			URL:   normalized,
			Type:  model.ReceiverType(r.Type),
			Label: r.Label,
		})
		if r.Label != "" {
			labels[normalized] = r.Label
		}
	}

	jobID, total := s.engine.Submit(targets)
	now := s.now()

	s.mu.Lock()
	s.fleet = targets
	s.labels = labels
	s.active = true
	s.cycleCount++
	s.currentJobID = jobID
	s.awaitingJobID = jobID
	s.lastCycleAt = &now
	s.nextRefreshAt = nil // armed when the initial cycle completes
	s.mu.Unlock()

	s.ensureLoop()
	return jobID, total, nil
}

// PrecheckStatus returns a snapshot of the given job.
func (s *RefreshService) PrecheckStatus(jobID string) (model.BatchSnapshot, bool) {
	if jobID == "" {
		return s.engine.Current()
	}
	return s.engine.Status(jobID)
}

// PrecheckResultsSince returns only results recorded after the given
// instant, for incremental polling.
func (s *RefreshService) PrecheckResultsSince(since time.Time) (model.BatchSnapshot, bool) {
	return s.engine.ResultsSince(since)
}

// CancelPrecheck aborts the live job, if any.
func (s *RefreshService) CancelPrecheck() bool {
	return s.engine.Cancel()
}

// ForceRefresh starts a cycle immediately. Rejected while a cycle is
// already running; forcing never interrupts work in progress.
func (s *RefreshService) ForceRefresh() (string, error) {
	s.mu.Lock()
	if len(s.fleet) == 0 {
		s.mu.Unlock()
		return "", ErrRefreshNotStarted
	}
	s.mu.Unlock()

	if s.engine.Running() {
		return "", ErrRefreshRunning
	}

	jobID := s.startCycle("forced")
	return jobID, nil
}

// Stop disarms the scheduler. A cycle already in flight finishes and
// is persisted; no further cycles are scheduled until the next
// precheck submission or force.
func (s *RefreshService) Stop() model.RefreshSnapshot {
	s.mu.Lock()
	s.active = false
	s.nextRefreshAt = nil
	s.mu.Unlock()

	logger.Info("auto-refresh scheduler stopped")
	return s.Status()
}

// Status returns the scheduler's current view.
func (s *RefreshService) Status() model.RefreshSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.RefreshSnapshot{
		Active:         s.active,
		ReceiverCount:  len(s.fleet),
		CycleCount:     s.cycleCount,
		CurrentJobID:   s.currentJobID,
		LastCycleAt:    s.lastCycleAt,
		LastCompleteAt: s.lastCompleteAt,
		NextRefreshAt:  s.nextRefreshAt,
		IntervalMs:     s.interval.Milliseconds(),
	}
}

// SetNotifier attaches an external channel for cycle summaries.
func (s *RefreshService) SetNotifier(n cycleNotifier) {
	s.notifier = n
}

// Shutdown terminates the watcher loop.
func (s *RefreshService) Shutdown() {
	close(s.stopCh)
}

func (s *RefreshService) ensureLoop() {
	s.loopOnce.Do(func() {
		go s.loop()
	})
}

func (s *RefreshService) loop() {
	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(context.Background())
		}
	}
}

// tick drives both halves of the state machine: settling a finished
// cycle (persist plus arming the next run) and firing a due refresh.
func (s *RefreshService) tick(ctx context.Context) {
	s.settleCompletedCycle(ctx)

	s.mu.Lock()
	due := s.active && s.nextRefreshAt != nil && !s.now().Before(*s.nextRefreshAt)
	s.mu.Unlock()
	if !due {
		return
	}

	if s.engine.Running() {
		// Skip, never queue. The next slot moves a full interval out.
		next := s.now().Add(s.interval)
		s.mu.Lock()
		s.nextRefreshAt = &next
		s.mu.Unlock()
		logger.Warnf("refresh tick skipped, previous cycle still running; next attempt %s", next.Format(time.RFC3339))
		return
	}

	s.startCycle("scheduled")
}

func (s *RefreshService) settleCompletedCycle(ctx context.Context) {
	s.mu.Lock()
	jobID := s.awaitingJobID
	labels := s.labels
	s.mu.Unlock()
	if jobID == "" {
		return
	}

	snap, ok := s.engine.Status(jobID)
	if !ok {
		// Pruned or superseded before we saw it finish.
		s.mu.Lock()
		if s.awaitingJobID == jobID {
			s.awaitingJobID = ""
		}
		s.mu.Unlock()
		return
	}
	if snap.Running {
		return
	}

	completedAt := s.now()
	if snap.CompletedAt != nil {
		completedAt = *snap.CompletedAt
	}

	if !snap.Cancelled {
		online := 0
		for _, r := range snap.Results {
			if r.Online {
				online++
			}
		}
		meta := model.ScanMeta{
			CycleID:     snap.JobID,
			Total:       snap.Total,
			OnlineCount: online,
			StartedAt:   snap.StartedAt,
			CompletedAt: completedAt,
		}
		if err := s.persist.PersistScan(ctx, meta, snap.Results, labels); err != nil {
			logger.Errorf("scan cycle %s persistence failed: %v", snap.JobID, err)
		}

		if s.notifier != nil {
			summary := model.CycleSummary{
				CycleID:     snap.JobID,
				Total:       snap.Total,
				OnlineCount: online,
				StartedAt:   snap.StartedAt,
				CompletedAt: completedAt,
			}
			if err := s.notifier.NotifyCycleComplete(ctx, summary); err != nil {
				logger.Warnf("cycle %s completion notification failed: %v", snap.JobID, err)
			}
		}
	}

	s.mu.Lock()
	if s.awaitingJobID == jobID {
		s.awaitingJobID = ""
		// A cancelled run settles nothing and arms nothing; the next
		// submission or force starts the clock again.
		if !snap.Cancelled {
			s.lastCompleteAt = &completedAt
			if s.active {
				next := completedAt.Add(s.interval)
				s.nextRefreshAt = &next
			}
		}
	}
	s.mu.Unlock()
}

func (s *RefreshService) startCycle(reason string) string {
	s.mu.Lock()
	fleet := s.fleet
	s.mu.Unlock()
	if len(fleet) == 0 {
		return ""
	}

	s.cache.Clear()
	jobID, total := s.engine.Submit(fleet)
	now := s.now()

	s.mu.Lock()
	s.cycleCount++
	s.currentJobID = jobID
	s.awaitingJobID = jobID
	s.lastCycleAt = &now
	s.nextRefreshAt = nil
	s.mu.Unlock()

	logger.Infof("%s refresh cycle %s started, %d receivers", reason, jobID, total)
	return jobID
}
