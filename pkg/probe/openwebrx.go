package probe

import (
	"context"
	"encoding/json"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/logger"
)

// openWebRXProber speaks the OpenWebRX dialect: a JSON /status.json
// document (hardware, version, location) and a best-effort
// /metrics.json document (client count, decoding queue depth).
type openWebRXProber struct {
	fetcher *Fetcher
	timeout time.Duration
}

// owrxStatusDoc mirrors the fields of /status.json we care about.
// Everything is optional; defensive parsing leaves absent fields nil.
type owrxStatusDoc struct {
	Receiver struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	} `json:"receiver"`
	SDRHardware string `json:"sdr_hw"`
	Version     string `json:"version"`
	MaxClients  *int   `json:"max_clients"`
}

// owrxMetricsDoc mirrors /metrics.json.
type owrxMetricsDoc struct {
	Clients struct {
		Count *int `json:"count"`
	} `json:"clients"`
	DecodingQueue struct {
		Length *int `json:"length"`
	} `json:"decoding_queue"`
}

func (p *openWebRXProber) Probe(ctx context.Context, normalizedURL string) model.ReceiverStatus {
	body, viaProxy, err := p.fetcher.Get(ctx, normalizedURL+"/status.json", p.timeout)
	if err != nil {
		return offlineStatus(normalizedURL, model.ReceiverTypeOpenWebRX, viaProxy, err)
	}

	status := model.ReceiverStatus{
		URL:       normalizedURL,
		Type:      model.ReceiverTypeOpenWebRX,
		Online:    true,
		CheckedAt: time.Now(),
		ViaProxy:  viaProxy,
	}

	var doc owrxStatusDoc
	if err := json.Unmarshal(body, &doc); err == nil {
		if doc.SDRHardware != "" {
			status.Hardware = &doc.SDRHardware
		}
		if doc.Version != "" {
			status.Version = &doc.Version
		}
		if doc.Receiver.Location != "" {
			status.Location = &doc.Receiver.Location
		}
		status.UsersMax = doc.MaxClients
	}

	// Metrics are best-effort, failure only omits the fields.
	if metricsBody, _, err := p.fetcher.Get(ctx, normalizedURL+"/metrics.json", p.timeout); err == nil {
		var metrics owrxMetricsDoc
		if err := json.Unmarshal(metricsBody, &metrics); err == nil {
			status.Users = metrics.Clients.Count
			status.QueueDepth = metrics.DecodingQueue.Length
		}
	} else {
		logger.Debugf("metrics fetch failed for %s: %v", normalizedURL, err)
	}

	return status
}
