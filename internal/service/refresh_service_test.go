package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/batch"

	"github.com/stretchr/testify/require"
)

// fakeEngine is a hand-driven batch engine: tests complete jobs
// explicitly instead of waiting on goroutines.
type fakeEngine struct {
	mu      sync.Mutex
	nextID  int
	submits [][]batch.Target
	jobs    map[string]*model.BatchSnapshot
	current string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{jobs: make(map[string]*model.BatchSnapshot)}
}

func (f *fakeEngine) Submit(targets []batch.Target) (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	f.submits = append(f.submits, targets)
	f.jobs[id] = &model.BatchSnapshot{
		JobID:     id,
		Total:     len(targets),
		Running:   true,
		StartedAt: time.Now(),
	}
	f.current = id
	return id, len(targets)
}

func (f *fakeEngine) complete(id string, results map[string]model.ReceiverStatus, cancelled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	now := time.Now()
	j.Running = false
	j.Cancelled = cancelled
	j.CompletedAt = &now
	j.Results = results
	j.Checked = len(results)
}

func (f *fakeEngine) Status(jobID string) (model.BatchSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return model.BatchSnapshot{}, false
	}
	return *j, true
}

func (f *fakeEngine) Current() (model.BatchSnapshot, bool) {
	f.mu.Lock()
	id := f.current
	f.mu.Unlock()
	return f.Status(id)
}

func (f *fakeEngine) ResultsSince(since time.Time) (model.BatchSnapshot, bool) {
	return f.Current()
}

func (f *fakeEngine) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[f.current]
	if !ok || !j.Running {
		return false
	}
	j.Running = false
	j.Cancelled = true
	return true
}

func (f *fakeEngine) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[f.current]
	return ok && j.Running
}

func (f *fakeEngine) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type persistCall struct {
	meta    model.ScanMeta
	results map[string]model.ReceiverStatus
	labels  map[string]string
}

type fakePersister struct {
	mu    sync.Mutex
	calls []persistCall
}

func (f *fakePersister) PersistScan(ctx context.Context, meta model.ScanMeta, results map[string]model.ReceiverStatus, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, persistCall{meta: meta, results: results, labels: labels})
	return nil
}

func (f *fakePersister) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCache struct {
	mu     sync.Mutex
	clears int
}

func (f *fakeCache) Clear() {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
}

func (f *fakeCache) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

func newTestRefresh(t *testing.T) (*RefreshService, *fakeEngine, *fakePersister, *fakeCache) {
	t.Helper()
	eng := newFakeEngine()
	per := &fakePersister{}
	fc := &fakeCache{}
	svc := NewRefreshService(eng, per, fc, 30, 10)
	// Ticks are driven by hand in these tests
	t.Cleanup(svc.Shutdown)
	return svc, eng, per, fc
}

func fleet(n int) []model.PrecheckReceiver {
	out := make([]model.PrecheckReceiver, n)
	for i := range out {
		out[i] = model.PrecheckReceiver{
			URL:   fmt.Sprintf("http://rx%d.example.com/", i),
			Type:  "kiwisdr",
			Label: fmt.Sprintf("RX %d", i),
		}
	}
	return out
}

func TestStartPrecheckRegistersFleetAndSubmitsNormalized(t *testing.T) {
	svc, eng, _, _ := newTestRefresh(t)

	jobID, total, err := svc.StartPrecheck(fleet(3))
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	require.Equal(t, 3, total)

	require.Equal(t, 1, eng.submitCount())
	// Trailing slash is stripped on the way in
	require.Equal(t, "http://rx0.example.com", eng.submits[0][0].URL)

	snap := svc.Status()
	require.True(t, snap.Active)
	require.Equal(t, 3, snap.ReceiverCount)
	require.Equal(t, 1, snap.CycleCount)
	require.Equal(t, jobID, snap.CurrentJobID)
	require.Nil(t, snap.NextRefreshAt, "auto-refresh arms only after the initial cycle completes")
}

func TestStartPrecheckRejectsInvalidEntries(t *testing.T) {
	svc, eng, _, _ := newTestRefresh(t)

	_, _, err := svc.StartPrecheck([]model.PrecheckReceiver{
		{URL: "http://ok.example.com", Type: "kiwisdr"},
		{URL: "gopher://bad.example.com", Type: "kiwisdr"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, 0, eng.submitCount())
}

func TestCompletedCycleIsPersistedAndNextRefreshArmed(t *testing.T) {
	svc, eng, per, _ := newTestRefresh(t)

	jobID, _, err := svc.StartPrecheck(fleet(2))
	require.NoError(t, err)

	results := map[string]model.ReceiverStatus{
		"http://rx0.example.com": {URL: "http://rx0.example.com", Online: true},
		"http://rx1.example.com": {URL: "http://rx1.example.com", Online: false},
	}
	eng.complete(jobID, results, false)
	svc.tick(context.Background())

	require.Equal(t, 1, per.count())
	call := per.calls[0]
	require.Equal(t, jobID, call.meta.CycleID)
	require.Equal(t, 2, call.meta.Total)
	require.Equal(t, 1, call.meta.OnlineCount)
	require.Equal(t, "RX 0", call.labels["http://rx0.example.com"])

	snap := svc.Status()
	require.NotNil(t, snap.LastCompleteAt)
	require.NotNil(t, snap.NextRefreshAt)
	require.Equal(t, snap.LastCompleteAt.Add(30*time.Minute), *snap.NextRefreshAt)

	// Completion settles exactly once
	svc.tick(context.Background())
	require.Equal(t, 1, per.count())
}

func TestDueTickStartsNewCycleAndClearsCache(t *testing.T) {
	svc, eng, _, fc := newTestRefresh(t)

	jobID, _, err := svc.StartPrecheck(fleet(2))
	require.NoError(t, err)
	eng.complete(jobID, nil, false)
	svc.tick(context.Background())

	// Move the clock past the refresh deadline
	svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	svc.tick(context.Background())

	require.Equal(t, 2, eng.submitCount())
	require.Equal(t, 1, fc.clearCount(), "cache is cleared before a cycle, not after")
	require.Equal(t, 2, svc.Status().CycleCount)
}

func TestDueTickSkipsWhileCycleRunning(t *testing.T) {
	svc, eng, _, _ := newTestRefresh(t)

	jobID, _, err := svc.StartPrecheck(fleet(1))
	require.NoError(t, err)
	eng.complete(jobID, nil, false)
	svc.tick(context.Background())

	// A second cycle fires and is still running at the next deadline
	svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	svc.tick(context.Background())
	require.Equal(t, 2, eng.submitCount())

	before := svc.Status()
	svc.now = func() time.Time { return time.Now().Add(62 * time.Minute) }
	// Force the deadline while job-2 is still running
	svc.mu.Lock()
	due := time.Now().Add(61 * time.Minute)
	svc.nextRefreshAt = &due
	svc.mu.Unlock()
	svc.tick(context.Background())

	require.Equal(t, 2, eng.submitCount(), "tick must skip, not queue, while running")
	after := svc.Status()
	require.NotNil(t, after.NextRefreshAt)
	require.True(t, after.NextRefreshAt.After(due), "skipped tick pushes the next slot out")
	require.Equal(t, before.CycleCount, after.CycleCount)
}

func TestForceRefresh(t *testing.T) {
	svc, eng, _, _ := newTestRefresh(t)

	// No fleet yet
	_, err := svc.ForceRefresh()
	require.True(t, errors.Is(err, ErrRefreshNotStarted))

	jobID, _, err2 := svc.StartPrecheck(fleet(1))
	require.NoError(t, err2)

	// Initial cycle still running
	_, err = svc.ForceRefresh()
	require.True(t, errors.Is(err, ErrRefreshRunning))

	eng.complete(jobID, nil, false)
	svc.tick(context.Background())

	forcedID, err := svc.ForceRefresh()
	require.NoError(t, err)
	require.NotEmpty(t, forcedID)
	require.Equal(t, 2, eng.submitCount())
}

func TestStopDisarmsScheduler(t *testing.T) {
	svc, eng, per, _ := newTestRefresh(t)

	jobID, _, err := svc.StartPrecheck(fleet(1))
	require.NoError(t, err)
	eng.complete(jobID, nil, false)
	svc.tick(context.Background())

	snap := svc.Stop()
	require.False(t, snap.Active)
	require.Nil(t, snap.NextRefreshAt)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	svc.tick(context.Background())
	require.Equal(t, 1, eng.submitCount(), "stopped scheduler must not start cycles")

	// The persisted initial cycle stays persisted, nothing new appears
	require.Equal(t, 1, per.count())
}

func TestCancelledCycleIsNotPersisted(t *testing.T) {
	svc, eng, per, _ := newTestRefresh(t)

	jobID, _, err := svc.StartPrecheck(fleet(2))
	require.NoError(t, err)
	eng.complete(jobID, nil, true)
	svc.tick(context.Background())

	require.Equal(t, 0, per.count())
	snap := svc.Status()
	require.Nil(t, snap.NextRefreshAt, "a cancelled run must not arm auto-refresh")
}
