package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/cache"

	"github.com/stretchr/testify/require"
)

// fakeChecker returns canned results and can block to hold slots open.
type fakeChecker struct {
	calls   int32
	block   chan struct{}
	offline bool
}

func (f *fakeChecker) Check(ctx context.Context, rawURL string, t model.ReceiverType) model.ReceiverStatus {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	return model.ReceiverStatus{
		URL:       model.NormalizeURL(rawURL),
		Type:      t,
		Online:    !f.offline,
		CheckedAt: time.Now(),
	}
}

func TestCheckStatusRejectsInvalidTypeBeforeProbing(t *testing.T) {
	fc := &fakeChecker{}
	svc := NewStatusService(fc, cache.New(time.Minute), 10, 10)

	_, err := svc.CheckStatus(context.Background(), model.CheckRequest{
		URL: "http://rx.example.com", Type: "rtlsdr",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "type", verr.Field)
	require.EqualValues(t, 0, atomic.LoadInt32(&fc.calls), "validation must reject before any network traffic")
}

func TestCheckStatusRejectsBadURLBeforeProbing(t *testing.T) {
	fc := &fakeChecker{}
	svc := NewStatusService(fc, cache.New(time.Minute), 10, 10)

	for _, bad := range []string{"", "ftp://rx.example.com", "not a url at all ://"} {
		_, err := svc.CheckStatus(context.Background(), model.CheckRequest{URL: bad, Type: "kiwisdr"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "url %q", bad)
	}
	require.EqualValues(t, 0, atomic.LoadInt32(&fc.calls))
}

func TestCheckStatusRejectsImmediatelyWhenBudgetExhausted(t *testing.T) {
	fc := &fakeChecker{block: make(chan struct{})}
	svc := NewStatusService(fc, cache.New(time.Minute), 2, 10)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.CheckStatus(context.Background(), model.CheckRequest{
				URL: "http://rx.example.com", Type: "kiwisdr",
			})
		}()
	}

	// Wait until both probes hold their slots
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fc.calls) == 2
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	_, err := svc.CheckStatus(context.Background(), model.CheckRequest{
		URL: "http://rx3.example.com", Type: "kiwisdr",
	})
	require.True(t, errors.Is(err, ErrRateLimited))
	require.Less(t, time.Since(start), 100*time.Millisecond, "rejection must be immediate, not queued")

	close(fc.block)
	wg.Wait()

	// Budget frees up once the in-flight probes settle
	_, err = svc.CheckStatus(context.Background(), model.CheckRequest{
		URL: "http://rx4.example.com", Type: "kiwisdr",
	})
	require.NoError(t, err)
}

func TestCheckBatchEnforcesSizeCap(t *testing.T) {
	fc := &fakeChecker{}
	svc := NewStatusService(fc, cache.New(time.Minute), 10, 3)

	req := model.CheckBatchRequest{}
	for i := 0; i < 4; i++ {
		req.Receivers = append(req.Receivers, model.CheckRequest{
			URL: "http://rx.example.com", Type: "kiwisdr",
		})
	}

	_, err := svc.CheckBatch(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.EqualValues(t, 0, atomic.LoadInt32(&fc.calls))
}

func TestCheckBatchRejectsWholeBatchOnAnyInvalidEntry(t *testing.T) {
	fc := &fakeChecker{}
	svc := NewStatusService(fc, cache.New(time.Minute), 10, 10)

	_, err := svc.CheckBatch(context.Background(), model.CheckBatchRequest{
		Receivers: []model.CheckRequest{
			{URL: "http://rx1.example.com", Type: "kiwisdr"},
			{URL: "http://rx2.example.com", Type: "nonsense"},
		},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Field, "receivers[1]")
	require.EqualValues(t, 0, atomic.LoadInt32(&fc.calls), "no member may be probed when any entry is invalid")
}

func TestCheckBatchPreservesRequestOrder(t *testing.T) {
	fc := &fakeChecker{}
	svc := NewStatusService(fc, cache.New(time.Minute), 10, 10)

	results, err := svc.CheckBatch(context.Background(), model.CheckBatchRequest{
		Receivers: []model.CheckRequest{
			{URL: "http://alpha.example.com", Type: "kiwisdr"},
			{URL: "http://beta.example.com", Type: "websdr"},
			{URL: "http://gamma.example.com", Type: "openwebrx"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "http://alpha.example.com", results[0].URL)
	require.Equal(t, "http://beta.example.com", results[1].URL)
	require.Equal(t, "http://gamma.example.com", results[2].URL)
	require.Equal(t, model.ReceiverTypeWebSDR, results[1].Type)
}

func TestCheckBatchRejectsWhenBudgetCannotCoverIt(t *testing.T) {
	fc := &fakeChecker{}
	svc := NewStatusService(fc, cache.New(time.Minute), 2, 10)

	_, err := svc.CheckBatch(context.Background(), model.CheckBatchRequest{
		Receivers: []model.CheckRequest{
			{URL: "http://rx1.example.com", Type: "kiwisdr"},
			{URL: "http://rx2.example.com", Type: "kiwisdr"},
			{URL: "http://rx3.example.com", Type: "kiwisdr"},
		},
	})
	require.True(t, errors.Is(err, ErrRateLimited))
	require.EqualValues(t, 0, atomic.LoadInt32(&fc.calls))

	// The failed attempt must not leak slots
	results, err := svc.CheckBatch(context.Background(), model.CheckBatchRequest{
		Receivers: []model.CheckRequest{
			{URL: "http://rx1.example.com", Type: "kiwisdr"},
			{URL: "http://rx2.example.com", Type: "kiwisdr"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
}
