// Package proxypool maintains a rotating set of outbound HTTP proxies
// sourced from a public proxy-list feed. Probes route through a random
// pool member and fall back to a direct connection when the pool is
// empty or a proxy misbehaves.
package proxypool

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sdrwatch/pkg/logger"
)

// DefaultRefreshInterval is how long a fetched list stays fresh.
const DefaultRefreshInterval = 5 * time.Minute

// Pool holds candidate outbound proxies and refreshes them from the
// feed when stale. A failed refresh keeps serving the stale list.
type Pool struct {
	feedURL  string
	interval time.Duration
	client   *http.Client

	mu          sync.Mutex
	proxies     []*url.URL
	refreshedAt time.Time

	now func() time.Time
}

// New creates a pool backed by the given feed URL. An empty feed URL
// yields a permanently empty pool, which callers treat as "direct only".
func New(feedURL string, refreshInterval, feedTimeout time.Duration) *Pool {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	if feedTimeout <= 0 {
		feedTimeout = 20 * time.Second
	}
	return &Pool{
		feedURL:  feedURL,
		interval: refreshInterval,
		client:   &http.Client{Timeout: feedTimeout},
		now:      time.Now,
	}
}

// Acquire returns a random proxy URL, refreshing the list first if it
// is stale. Returns nil when no proxy is available; callers then
// connect directly.
func (p *Pool) Acquire(ctx context.Context) *url.URL {
	if p.feedURL == "" {
		return nil
	}

	p.mu.Lock()
	stale := p.now().Sub(p.refreshedAt) > p.interval
	p.mu.Unlock()

	if stale {
		if err := p.Refresh(ctx); err != nil {
			logger.Warnf("proxy feed refresh failed, keeping stale list: %v", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return nil
	}
	return p.proxies[rand.Intn(len(p.proxies))]
}

// Refresh fetches the feed and replaces the candidate list. The old
// list is kept on any failure.
func (p *Pool) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch proxy feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy feed returned HTTP %d", resp.StatusCode)
	}

	var parsed []*url.URL
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := parseProxyLine(line)
		if err != nil {
			continue
		}
		parsed = append(parsed, u)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read proxy feed: %w", err)
	}
	if len(parsed) == 0 {
		return fmt.Errorf("proxy feed yielded no usable entries")
	}

	p.mu.Lock()
	p.proxies = parsed
	p.refreshedAt = p.now()
	p.mu.Unlock()

	logger.Infof("proxy pool refreshed, %d candidates", len(parsed))
	return nil
}

// Size returns the current candidate count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// parseProxyLine accepts "host:port" or a full "scheme://host:port".
func parseProxyLine(line string) (*url.URL, error) {
	if strings.Contains(line, "://") {
		u, err := url.Parse(line)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("bad proxy url %q", line)
		}
		return u, nil
	}
	host, port, err := net.SplitHostPort(line)
	if err != nil {
		return nil, fmt.Errorf("bad proxy address %q", line)
	}
	return url.Parse(fmt.Sprintf("http://%s:%s", host, port))
}

// IsProxyError reports whether an outbound failure is attributable to
// the proxy itself rather than the target host, meaning a direct retry
// is worthwhile.
func IsProxyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "proxyconnect") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "tls handshake") ||
		strings.Contains(msg, "malformed HTTP response")
}
