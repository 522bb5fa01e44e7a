package service

import (
	"context"
	"fmt"
	"sync"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/cache"
)

// checkRunner is the probe entry point the service drives. Satisfied
// by probe.Checker; swapped for a fake in tests.
type checkRunner interface {
	Check(ctx context.Context, rawURL string, t model.ReceiverType) model.ReceiverStatus
}

// StatusService serves on-demand receiver checks. A process-wide slot
// budget bounds concurrent ad-hoc probes; callers over the budget are
// rejected immediately instead of queued, so an interactive client
// never waits behind someone else's burst.
type StatusService struct {
	checker  checkRunner
	cache    *cache.ResultCache
	slots    chan struct{}
	batchMax int
}

// NewStatusService creates a status service with the given in-flight
// budget and per-request batch cap.
func NewStatusService(checker checkRunner, resultCache *cache.ResultCache, adhocLimit, batchMax int) *StatusService {
	if adhocLimit <= 0 {
		adhocLimit = 10
	}
	if batchMax <= 0 {
		batchMax = 10
	}
	return &StatusService{
		checker:  checker,
		cache:    resultCache,
		slots:    make(chan struct{}, adhocLimit),
		batchMax: batchMax,
	}
}

// CheckStatus probes a single receiver, serving from cache when fresh.
func (s *StatusService) CheckStatus(ctx context.Context, req model.CheckRequest) (model.ReceiverStatus, error) {
	if err := validateCheck(req.URL, req.Type); err != nil {
		return model.ReceiverStatus{}, err
	}

	if !s.acquire() {
		return model.ReceiverStatus{}, ErrRateLimited
	}
	defer s.release()

	return s.checker.Check(ctx, req.URL, model.ReceiverType(req.Type)), nil
}

// CheckBatch probes a small ad-hoc batch concurrently. All entries are
// validated before any network traffic, and the whole batch is rejected
// when the slot budget cannot cover it. Results come back in request
// order.
func (s *StatusService) CheckBatch(ctx context.Context, req model.CheckBatchRequest) ([]model.ReceiverStatus, error) {
	if len(req.Receivers) == 0 {
		return nil, NewValidationError("receivers", "at least one receiver is required")
	}
	if len(req.Receivers) > s.batchMax {
		return nil, NewValidationError("receivers",
			fmt.Sprintf("at most %d receivers per batch, got %d", s.batchMax, len(req.Receivers)))
	}
	for i, r := range req.Receivers {
		if err := validateCheck(r.URL, r.Type); err != nil {
			return nil, NewValidationError(fmt.Sprintf("receivers[%d]", i), err.Error())
		}
	}

	acquired := 0
	for range req.Receivers {
		if !s.acquire() {
			for ; acquired > 0; acquired-- {
				s.release()
			}
			return nil, ErrRateLimited
		}
		acquired++
	}

	results := make([]model.ReceiverStatus, len(req.Receivers))
	var wg sync.WaitGroup
	for i, r := range req.Receivers {
		wg.Add(1)
		go func(i int, r model.CheckRequest) {
			defer wg.Done()
			defer s.release()
			results[i] = s.checker.Check(ctx, r.URL, model.ReceiverType(r.Type))
		}(i, r)
	}
	wg.Wait()

	return results, nil
}

// CacheStats reports result cache effectiveness.
func (s *StatusService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache drops all cached results.
func (s *StatusService) ClearCache() {
	s.cache.Clear()
}

func (s *StatusService) acquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *StatusService) release() {
	<-s.slots
}

func validateCheck(rawURL, receiverType string) error {
	if !model.ReceiverType(receiverType).Valid() {
		return NewValidationError("type", fmt.Sprintf("unsupported receiver type %q", receiverType))
	}
	if err := model.ValidateReceiverURL(rawURL); err != nil {
		return NewValidationError("url", err.Error())
	}
	return nil
}
