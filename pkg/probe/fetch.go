package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"sdrwatch/pkg/logger"
	"sdrwatch/pkg/proxypool"
)

// maxBodyBytes caps how much of an upstream response we read. Status
// documents are small; anything bigger is garbage.
const maxBodyBytes = 1 << 20

// Fetcher performs the HTTP round trips for receiver probes. Requests
// optionally route through the proxy pool; a failure attributable to
// the proxy triggers exactly one silent direct retry, so proxy trouble
// never surfaces as a receiver failure.
type Fetcher struct {
	pool      *proxypool.Pool
	userAgent string
}

// NewFetcher creates a Fetcher. pool may be nil for direct-only probing.
func NewFetcher(pool *proxypool.Pool, userAgent string) *Fetcher {
	if userAgent == "" {
		userAgent = "sdrwatch/1.0"
	}
	return &Fetcher{pool: pool, userAgent: userAgent}
}

// Get fetches the resource with its own timeout, shorter than any
// caller budget. Any HTTP status below 500 counts as reachable; the
// body is returned for parsing. The bool reports whether a proxy
// carried the successful request.
func (f *Fetcher) Get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, bool, error) {
	var proxyURL *url.URL
	if f.pool != nil {
		proxyURL = f.pool.Acquire(ctx)
	}

	body, err := f.doGet(ctx, rawURL, timeout, proxyURL)
	if err != nil && proxyURL != nil && proxypool.IsProxyError(err) {
		logger.Debugf("proxy %s failed for %s, retrying direct: %v", proxyURL.Host, rawURL, err)
		body, err = f.doGet(ctx, rawURL, timeout, nil)
		return body, false, err
	}
	return body, err == nil && proxyURL != nil, err
}

func (f *Fetcher) doGet(ctx context.Context, rawURL string, timeout time.Duration, proxyURL *url.URL) ([]byte, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 0,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, // hobbyist receivers run self-signed certs
		},
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Connection", "close")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Sub-500 statuses are "reachable enough to parse": many receivers
	// answer status paths with 404 or auth redirects while still alive.
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
