package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ReceiverType identifies the status dialect a receiver speaks
type ReceiverType string

const (
	ReceiverTypeKiwi      ReceiverType = "kiwisdr"   // key=value /status plus /snr band quality
	ReceiverTypeOpenWebRX ReceiverType = "openwebrx" // /status.json plus /metrics.json
	ReceiverTypeWebSDR    ReceiverType = "websdr"    // liveness via generated websdr.js
)

// Valid reports whether t is one of the supported dialects.
func (t ReceiverType) Valid() bool {
	switch t {
	case ReceiverTypeKiwi, ReceiverTypeOpenWebRX, ReceiverTypeWebSDR:
		return true
	}
	return false
}

// NormalizeURL produces the canonical identity for a receiver URL:
// trailing slashes stripped, scheme and host lowercased. Path case and
// explicit default ports are deliberately left distinct.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "/")
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// ValidateReceiverURL rejects input that cannot address a receiver.
func ValidateReceiverURL(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

// BandQuality is one signal-quality band from a receiver's SNR snapshot.
type BandQuality struct {
	LowHz  int64   `json:"lo_hz"`
	HighHz int64   `json:"hi_hz"`
	SNRdB  float64 `json:"snr_db"`
}

// ReceiverStatus is the normalized probe result for one receiver.
// Optional fields stay nil when the dialect does not provide them or
// the upstream payload omitted them.
type ReceiverStatus struct {
	URL  string       `json:"url"` // normalized
	Type ReceiverType `json:"type"`

	Online bool `json:"online"`

	Users         *int     `json:"users,omitempty"`
	UsersMax      *int     `json:"users_max,omitempty"`
	SNR           *float64 `json:"snr,omitempty"`
	UptimeSeconds *int64   `json:"uptime_seconds,omitempty"`
	Hardware      *string  `json:"hardware,omitempty"`
	Version       *string  `json:"version,omitempty"`
	Antenna       *string  `json:"antenna,omitempty"`
	Location      *string  `json:"location,omitempty"`
	QueueDepth    *int     `json:"queue_depth,omitempty"`

	Bands []BandQuality `json:"bands,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
	FromCache bool      `json:"from_cache"`
	ViaProxy  bool      `json:"via_proxy"`
	Error     string    `json:"error,omitempty"`
}

// CheckRequest is a single on-demand probe request
type CheckRequest struct {
	URL  string `json:"url" binding:"required"`
	Type string `json:"type" binding:"required"`
}

// CheckBatchRequest is a small ad-hoc batch, independent of the
// full-fleet precheck path
type CheckBatchRequest struct {
	Receivers []CheckRequest `json:"receivers" binding:"required"`
}

// PrecheckReceiver is one entry of a full-fleet precheck submission
type PrecheckReceiver struct {
	URL   string `json:"url" binding:"required"`
	Type  string `json:"type" binding:"required"`
	Label string `json:"label"`
}

// PrecheckRequest submits the full fleet for a batch precheck
type PrecheckRequest struct {
	Receivers []PrecheckReceiver `json:"receivers" binding:"required"`
}
