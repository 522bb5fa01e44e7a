// Package batch runs full-fleet receiver prechecks in concurrency-
// bounded waves with pacing between waves, tracking incremental
// progress for pollers.
package batch

import (
	"context"
	"sync"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/logger"

	"github.com/google/uuid"
)

// CheckFunc probes one receiver. It never returns an error; a failed
// probe is an offline ReceiverStatus.
type CheckFunc func(ctx context.Context, url string, t model.ReceiverType) model.ReceiverStatus

// Target is one receiver in a precheck submission.
type Target struct {
	URL   string
	Type  model.ReceiverType
	Label string
}

// Options tunes the engine. Zero values take the built-in defaults.
type Options struct {
	WaveSize  int           // probes in flight per wave
	WaveDelay time.Duration // pacing between waves
	JobTTL    time.Duration // unreferenced job expiry
}

func (o *Options) applyDefaults() {
	if o.WaveSize <= 0 {
		o.WaveSize = 15
	}
	if o.WaveDelay <= 0 {
		o.WaveDelay = 500 * time.Millisecond
	}
	if o.JobTTL <= 0 {
		o.JobTTL = 30 * time.Minute
	}
}

// Engine owns the precheck job table. At most one job is live at a
// time: submitting while a job runs cancels the prior job's remaining
// waves. All state is mutex-guarded; probe goroutines only touch a job
// through recordResult.
type Engine struct {
	check CheckFunc
	opts  Options

	mu        sync.Mutex
	jobs      map[string]*job
	currentID string

	now func() time.Time
}

type job struct {
	id        string
	targets   []Target
	total     int
	checked   int
	running   bool
	cancelled bool
	startedAt time.Time
	completed *time.Time
	touchedAt time.Time

	results     map[string]model.ReceiverStatus
	resultTimes map[string]time.Time

	cancel context.CancelFunc
}

// NewEngine creates a batch engine over the given probe function.
func NewEngine(check CheckFunc, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		check: check,
		opts:  opts,
		jobs:  make(map[string]*job),
		now:   time.Now,
	}
}

// Submit deduplicates the target list by normalized URL (first
// occurrence wins), cancels any live job, and starts probing in waves.
// Returns the new job's ID and the deduplicated target count.
func (e *Engine) Submit(targets []Target) (string, int) {
	deduped := dedupe(targets)

	ctx, cancel := context.WithCancel(context.Background())
	now := e.now()
	j := &job{
		id:          uuid.NewString(),
		targets:     deduped,
		total:       len(deduped),
		running:     true,
		startedAt:   now,
		touchedAt:   now,
		results:     make(map[string]model.ReceiverStatus, len(deduped)),
		resultTimes: make(map[string]time.Time, len(deduped)),
		cancel:      cancel,
	}

	e.mu.Lock()
	if prev, ok := e.jobs[e.currentID]; ok && prev.running {
		logger.Warnf("precheck job %s superseded by new submission, cancelling", prev.id)
		prev.cancelled = true
		prev.cancel()
	}
	e.jobs[j.id] = j
	e.currentID = j.id
	e.mu.Unlock()

	logger.Infof("precheck job %s started, %d receivers (%d submitted)", j.id, len(deduped), len(targets))
	go e.run(ctx, j)
	return j.id, len(deduped)
}

func dedupe(targets []Target) []Target {
	seen := make(map[string]bool, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		key := model.NormalizeURL(t.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		t.URL = key
		out = append(out, t)
	}
	return out
}

// run walks the waves. The cancellation signal is checked before each
// wave dispatch; members already in flight finish but a cancelled
// job's bookkeeping discards them.
func (e *Engine) run(ctx context.Context, j *job) {
	for start := 0; start < len(j.targets); start += e.opts.WaveSize {
		if ctx.Err() != nil {
			break
		}

		end := start + e.opts.WaveSize
		if end > len(j.targets) {
			end = len(j.targets)
		}
		wave := j.targets[start:end]

		var wg sync.WaitGroup
		for _, t := range wave {
			wg.Add(1)
			go func(t Target) {
				defer wg.Done()
				status := e.check(ctx, t.URL, t.Type)
				e.recordResult(j, t.URL, status)
			}(t)
		}
		wg.Wait()

		// Pacing between waves, skipped after the final one
		if end < len(j.targets) {
			select {
			case <-ctx.Done():
			case <-time.After(e.opts.WaveDelay):
			}
		}
	}

	e.mu.Lock()
	now := e.now()
	j.running = false
	j.completed = &now
	j.touchedAt = now
	checked, total, cancelled := j.checked, j.total, j.cancelled
	e.mu.Unlock()

	// Release the job context; a settled job holds no resources beyond
	// its result map.
	j.cancel()

	if cancelled {
		logger.Infof("precheck job %s aborted after %d/%d receivers", j.id, checked, total)
	} else {
		logger.Infof("precheck job %s completed, %d/%d receivers", j.id, checked, total)
	}
}

// recordResult books one settled probe. The checked counter moves once
// per member whether the probe succeeded or failed; a cancelled job
// discards late results entirely.
func (e *Engine) recordResult(j *job, url string, status model.ReceiverStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if j.cancelled {
		return
	}
	j.results[url] = status
	j.resultTimes[url] = e.now()
	j.checked++
	j.touchedAt = e.now()
}

// Status returns a snapshot of the given job and prunes expired jobs.
func (e *Engine) Status(jobID string) (model.BatchSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked()

	j, ok := e.jobs[jobID]
	if !ok {
		return model.BatchSnapshot{}, false
	}
	j.touchedAt = e.now()
	return e.snapshotLocked(j, true), true
}

// Current returns a snapshot of the most recently submitted job.
func (e *Engine) Current() (model.BatchSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked()

	j, ok := e.jobs[e.currentID]
	if !ok {
		return model.BatchSnapshot{}, false
	}
	j.touchedAt = e.now()
	return e.snapshotLocked(j, true), true
}

// ResultsSince returns the current job's results recorded strictly
// after the given instant, for cheap repeated polling.
func (e *Engine) ResultsSince(since time.Time) (model.BatchSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.jobs[e.currentID]
	if !ok {
		return model.BatchSnapshot{}, false
	}
	j.touchedAt = e.now()

	snap := e.snapshotLocked(j, false)
	snap.Results = make(map[string]model.ReceiverStatus)
	for url, ts := range j.resultTimes {
		if ts.After(since) {
			snap.Results[url] = j.results[url]
		}
	}
	return snap, true
}

// Cancel aborts the live job, if any. Already-dispatched probes finish
// but are discarded.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.jobs[e.currentID]
	if !ok || !j.running {
		return false
	}
	j.cancelled = true
	j.cancel()
	return true
}

// Running reports whether a job is currently live.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[e.currentID]
	return ok && j.running
}

func (e *Engine) snapshotLocked(j *job, withResults bool) model.BatchSnapshot {
	snap := model.BatchSnapshot{
		JobID:       j.id,
		Total:       j.total,
		Checked:     j.checked,
		Running:     j.running,
		Cancelled:   j.cancelled,
		StartedAt:   j.startedAt,
		CompletedAt: j.completed,
	}
	if withResults {
		snap.Results = make(map[string]model.ReceiverStatus, len(j.results))
		for url, status := range j.results {
			snap.Results[url] = status
		}
	}
	return snap
}

// pruneLocked drops jobs untouched for longer than the TTL. Running
// jobs are never pruned.
func (e *Engine) pruneLocked() {
	cutoff := e.now().Add(-e.opts.JobTTL)
	for id, j := range e.jobs {
		if !j.running && j.touchedAt.Before(cutoff) {
			delete(e.jobs, id)
			if id == e.currentID {
				e.currentID = ""
			}
		}
	}
}
