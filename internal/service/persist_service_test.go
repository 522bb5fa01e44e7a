package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/store/mysql"
	storemodel "sdrwatch/pkg/store/mysql/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeReceiverRepo struct {
	mu         sync.Mutex
	nextID     int64
	records    map[string]*storemodel.Receiver
	failURLs   map[string]bool
	recomputes int
}

func newFakeReceiverRepo() *fakeReceiverRepo {
	return &fakeReceiverRepo{
		records:  make(map[string]*storemodel.Receiver),
		failURLs: make(map[string]bool),
	}
}

func (f *fakeReceiverRepo) Upsert(_ context.Context, obs mysql.Observation) (*storemodel.Receiver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failURLs[obs.URL] {
		return nil, errors.New("constraint violation")
	}
	rec, ok := f.records[obs.URL]
	if !ok {
		f.nextID++
		rec = &storemodel.Receiver{ID: f.nextID, URL: obs.URL, Type: obs.Type, Label: obs.Label}
		f.records[obs.URL] = rec
	}
	rec.Online = obs.Online
	rec.LastError = obs.Error
	rec.TotalChecks++
	if obs.Online {
		rec.OnlineChecks++
	}
	return rec, nil
}

func (f *fakeReceiverRepo) GetByURL(_ context.Context, url string) (*storemodel.Receiver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[url]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return rec, nil
}

func (f *fakeReceiverRepo) List(_ context.Context) ([]*storemodel.Receiver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*storemodel.Receiver, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeReceiverRepo) RecomputeUptimeWindows(_ context.Context, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputes++
	return nil
}

type cycleCompletion struct {
	cycleID      string
	onlineCount  int
	offlineCount int
	durationMs   int64
}

type fakeCycleRepo struct {
	created   []*storemodel.ScanCycle
	completed []cycleCompletion
	deletes   int
}

func (f *fakeCycleRepo) Create(_ context.Context, cycle *storemodel.ScanCycle) error {
	f.created = append(f.created, cycle)
	return nil
}

func (f *fakeCycleRepo) Complete(_ context.Context, cycleID string, onlineCount, offlineCount int, _ time.Time, durationMs int64) error {
	f.completed = append(f.completed, cycleCompletion{cycleID, onlineCount, offlineCount, durationMs})
	return nil
}

func (f *fakeCycleRepo) ListRecent(_ context.Context, limit int) ([]*storemodel.ScanCycle, error) {
	if limit > len(f.created) {
		limit = len(f.created)
	}
	return f.created[:limit], nil
}

func (f *fakeCycleRepo) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	f.deletes++
	return 0, nil
}

type fakeHistoryRepo struct {
	rows      []*storemodel.StatusHistory
	deletes   int
	uptimePct float64
	uptimeOK  bool
}

func (f *fakeHistoryRepo) BulkInsert(_ context.Context, rows []*storemodel.StatusHistory) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeHistoryRepo) ListByReceiver(_ context.Context, receiverID int64, _ time.Time, limit int) ([]*storemodel.StatusHistory, error) {
	out := make([]*storemodel.StatusHistory, 0)
	for _, row := range f.rows {
		if row.ReceiverID == receiverID && len(out) < limit {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) WindowUptime(_ context.Context, _ int64, _ time.Time) (float64, bool, error) {
	return f.uptimePct, f.uptimeOK, nil
}

func (f *fakeHistoryRepo) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	f.deletes++
	return 1, nil
}

type fakeTxRunner struct {
	calls int
}

func (f *fakeTxRunner) ExecTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type persistFixture struct {
	svc       *PersistService
	receivers *fakeReceiverRepo
	cycles    *fakeCycleRepo
	history   *fakeHistoryRepo
	tx        *fakeTxRunner
}

func newPersistFixture() *persistFixture {
	f := &persistFixture{
		receivers: newFakeReceiverRepo(),
		cycles:    &fakeCycleRepo{},
		history:   &fakeHistoryRepo{},
		tx:        &fakeTxRunner{},
	}
	f.svc = NewPersistService(nil, nil, 30, 6)
	f.svc.receivers = f.receivers
	f.svc.cycles = f.cycles
	f.svc.history = f.history
	f.svc.tx = f.tx
	return f
}

func scanMeta(cycleID string, total int, started time.Time, dur time.Duration) model.ScanMeta {
	return model.ScanMeta{
		CycleID:     cycleID,
		Total:       total,
		StartedAt:   started,
		CompletedAt: started.Add(dur),
	}
}

func TestPersistScanRecordsCycleTalliesAndHistory(t *testing.T) {
	f := newPersistFixture()
	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	results := map[string]model.ReceiverStatus{
		"http://a.example.com": {URL: "http://a.example.com", Type: model.ReceiverTypeKiwi, Online: true, CheckedAt: started},
		"http://b.example.com": {URL: "http://b.example.com", Type: model.ReceiverTypeOpenWebRX, Online: true, CheckedAt: started},
		"http://c.example.com": {URL: "http://c.example.com", Type: model.ReceiverTypeWebSDR, Online: false, Error: "connection refused", CheckedAt: started},
	}
	err := f.svc.PersistScan(context.Background(), scanMeta("c1", 3, started, 90*time.Second), results, nil)
	require.NoError(t, err)

	require.Len(t, f.cycles.created, 1)
	require.Equal(t, "c1", f.cycles.created[0].CycleID)
	require.Equal(t, 3, f.cycles.created[0].Total)

	require.Len(t, f.cycles.completed, 1)
	done := f.cycles.completed[0]
	require.Equal(t, 2, done.onlineCount)
	require.Equal(t, 1, done.offlineCount)
	require.EqualValues(t, 90_000, done.durationMs)

	// Exactly one history row per result, error carried on the dead one
	require.Len(t, f.history.rows, 3)
	withError := 0
	for _, row := range f.history.rows {
		require.Equal(t, "c1", row.CycleID)
		if row.Error != nil {
			withError++
			require.Equal(t, "connection refused", *row.Error)
		}
	}
	require.Equal(t, 1, withError)

	// Registry and history writes shared one transaction, and the
	// window recompute ran inline (no queue attached)
	require.Equal(t, 1, f.tx.calls)
	require.Equal(t, 1, f.receivers.recomputes)
}

func TestConsecutiveScansAccumulateLifetimeCounters(t *testing.T) {
	f := newPersistFixture()
	started := time.Now()
	url := "http://rx.example.com"

	online := map[string]model.ReceiverStatus{
		url: {URL: url, Type: model.ReceiverTypeKiwi, Online: true, CheckedAt: started},
	}
	offline := map[string]model.ReceiverStatus{
		url: {URL: url, Type: model.ReceiverTypeKiwi, Online: false, Error: "timeout", CheckedAt: started.Add(time.Minute)},
	}

	require.NoError(t, f.svc.PersistScan(context.Background(), scanMeta("c1", 1, started, time.Second), online, nil))
	require.NoError(t, f.svc.PersistScan(context.Background(), scanMeta("c2", 1, started.Add(time.Minute), time.Second), offline, nil))

	rec := f.receivers.records[url]
	require.NotNil(t, rec)
	require.EqualValues(t, 2, rec.TotalChecks)
	require.EqualValues(t, 1, rec.OnlineChecks)
	require.False(t, rec.Online)
}

func TestUpsertFailureDoesNotAbortCycle(t *testing.T) {
	f := newPersistFixture()
	f.receivers.failURLs["http://bad.example.com"] = true
	started := time.Now()

	results := map[string]model.ReceiverStatus{
		"http://good.example.com": {URL: "http://good.example.com", Type: model.ReceiverTypeKiwi, Online: true, CheckedAt: started},
		"http://bad.example.com":  {URL: "http://bad.example.com", Type: model.ReceiverTypeKiwi, Online: true, CheckedAt: started},
	}
	err := f.svc.PersistScan(context.Background(), scanMeta("c1", 2, started, time.Second), results, nil)
	require.NoError(t, err)

	// The failed receiver loses its history row, the sibling keeps its
	// own and the cycle still completes
	require.Len(t, f.history.rows, 1)
	require.Len(t, f.cycles.completed, 1)
}

func TestPersistScanWithoutDatastoreIsNoop(t *testing.T) {
	svc := NewPersistService(nil, nil, 0, 0)
	require.False(t, svc.Enabled())

	err := svc.PersistScan(context.Background(), scanMeta("c1", 2, time.Now(), time.Second),
		map[string]model.ReceiverStatus{"http://rx.example.com": {Online: true}}, nil)
	require.NoError(t, err)

	recs, err := svc.ListReceivers(context.Background())
	require.NoError(t, err)
	require.Nil(t, recs)

	_, err = svc.GetReceiverHistory(context.Background(), "http://rx.example.com", 10)
	require.ErrorIs(t, err, ErrReceiverNotFound)
}

func TestPurgeGateLimitsFrequency(t *testing.T) {
	f := newPersistFixture()
	clock := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return clock }

	scan := func(id string) {
		results := map[string]model.ReceiverStatus{
			"http://rx.example.com": {URL: "http://rx.example.com", Type: model.ReceiverTypeKiwi, Online: true, CheckedAt: clock},
		}
		require.NoError(t, f.svc.PersistScan(context.Background(), scanMeta(id, 1, clock, time.Second), results, nil))
	}

	scan("c1")
	require.Equal(t, 1, f.history.deletes)

	// A second cycle inside the gate must not purge again
	clock = clock.Add(time.Hour)
	scan("c2")
	require.Equal(t, 1, f.history.deletes)

	// Past the gate the purge runs once more
	clock = clock.Add(7 * time.Hour)
	scan("c3")
	require.Equal(t, 2, f.history.deletes)
}

func TestGetReceiverHistoryNormalizesAndReportsWindow(t *testing.T) {
	f := newPersistFixture()
	f.history.uptimePct = 66.67
	f.history.uptimeOK = true
	started := time.Now()

	url := "http://rx.example.com"
	results := map[string]model.ReceiverStatus{
		url: {URL: url, Type: model.ReceiverTypeKiwi, Online: true, CheckedAt: started},
	}
	require.NoError(t, f.svc.PersistScan(context.Background(), scanMeta("c1", 1, started, time.Second), results, nil))

	// Lookup with a raw spelling of the same receiver
	out, err := f.svc.GetReceiverHistory(context.Background(), "HTTP://rx.example.com/", 10)
	require.NoError(t, err)
	require.Equal(t, url, out.Receiver.URL)
	require.Len(t, out.History, 1)
	require.NotNil(t, out.Uptime24h)
	require.InDelta(t, 66.67, *out.Uptime24h, 0.001)

	_, err = f.svc.GetReceiverHistory(context.Background(), "http://unknown.example.com", 10)
	require.ErrorIs(t, err, ErrReceiverNotFound)
}
