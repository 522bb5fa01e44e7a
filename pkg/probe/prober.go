// Package probe implements the status probers for the three supported
// receiver dialects and the cache-aware checker built on top of them.
package probe

import (
	"context"
	"fmt"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/cache"
	"sdrwatch/pkg/config"
	"sdrwatch/pkg/redact"
)

// Prober knows how to fetch and parse the status representation of one
// receiver dialect. Implementations never return an error: a failed
// probe is a ReceiverStatus with online=false and an error string, so
// one broken receiver can never abort a sibling check.
type Prober interface {
	Probe(ctx context.Context, normalizedURL string) model.ReceiverStatus
}

// New returns the prober for the given dialect.
func New(t model.ReceiverType, fetcher *Fetcher, cfg *config.ProbeConfig) (Prober, error) {
	timeout := cfg.Timeout(string(t))
	switch t {
	case model.ReceiverTypeKiwi:
		return &kiwiProber{fetcher: fetcher, timeout: timeout}, nil
	case model.ReceiverTypeOpenWebRX:
		return &openWebRXProber{fetcher: fetcher, timeout: timeout}, nil
	case model.ReceiverTypeWebSDR:
		return &webSDRProber{fetcher: fetcher, timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown receiver type %q", t)
	}
}

// Checker is the cache-aware probe entry point shared by the ad-hoc
// check path and the batch engine.
type Checker struct {
	fetcher *Fetcher
	cache   *cache.ResultCache
	cfg     *config.ProbeConfig
}

// NewChecker creates a Checker over the given fetcher and result cache.
func NewChecker(fetcher *Fetcher, resultCache *cache.ResultCache, cfg *config.ProbeConfig) *Checker {
	return &Checker{fetcher: fetcher, cache: resultCache, cfg: cfg}
}

// Check probes one receiver, serving from cache when a fresh entry
// exists. Live results are written back into the cache.
func (c *Checker) Check(ctx context.Context, rawURL string, t model.ReceiverType) model.ReceiverStatus {
	normalized := model.NormalizeURL(rawURL)

	if cached, ok := c.cache.Get(normalized); ok {
		return cached
	}

	prober, err := New(t, c.fetcher, c.cfg)
	if err != nil {
		return model.ReceiverStatus{
			URL:       normalized,
			Type:      t,
			Online:    false,
			CheckedAt: time.Now(),
			Error:     err.Error(),
		}
	}

	status := prober.Probe(ctx, normalized)
	c.cache.Put(normalized, status)
	return status
}

// offlineStatus builds the uniform failure result for a dead probe.
// The error string is redacted at the source so no caller can leak
// egress details downstream.
func offlineStatus(normalizedURL string, t model.ReceiverType, viaProxy bool, err error) model.ReceiverStatus {
	return model.ReceiverStatus{
		URL:       normalizedURL,
		Type:      t,
		Online:    false,
		CheckedAt: time.Now(),
		ViaProxy:  viaProxy,
		Error:     redact.Message(err.Error()),
	}
}
