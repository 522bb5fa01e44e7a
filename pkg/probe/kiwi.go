package probe

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/logger"
)

// kiwiProber speaks the KiwiSDR dialect: a plain key=value /status
// document for liveness and metadata, and a best-effort /snr JSON
// document with time-bucketed band quality snapshots.
type kiwiProber struct {
	fetcher *Fetcher
	timeout time.Duration
}

func (p *kiwiProber) Probe(ctx context.Context, normalizedURL string) model.ReceiverStatus {
	body, viaProxy, err := p.fetcher.Get(ctx, normalizedURL+"/status", p.timeout)
	if err != nil {
		return offlineStatus(normalizedURL, model.ReceiverTypeKiwi, viaProxy, err)
	}

	status := model.ReceiverStatus{
		URL:       normalizedURL,
		Type:      model.ReceiverTypeKiwi,
		Online:    true,
		CheckedAt: time.Now(),
		ViaProxy:  viaProxy,
	}
	parseKiwiStatus(string(body), &status)

	// Band quality is best-effort: a dead /snr endpoint only omits the
	// bands, it never fails the probe.
	if snrBody, _, err := p.fetcher.Get(ctx, normalizedURL+"/snr", p.timeout); err == nil {
		status.Bands = parseKiwiSNR(snrBody)
	} else {
		logger.Debugf("snr fetch failed for %s: %v", normalizedURL, err)
	}

	return status
}

// parseKiwiStatus fills status from the key=value document. Missing or
// malformed fields stay absent.
func parseKiwiStatus(body string, status *model.ReceiverStatus) {
	for _, line := range strings.Split(body, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "status":
			if strings.EqualFold(value, "offline") {
				status.Online = false
			}
		case "users":
			if n, err := strconv.Atoi(value); err == nil {
				status.Users = &n
			}
		case "users_max":
			if n, err := strconv.Atoi(value); err == nil {
				status.UsersMax = &n
			}
		case "snr":
			// "25,14" is all-bands,HF-only; the first number is the headline value
			first, _, _ := strings.Cut(value, ",")
			if f, err := strconv.ParseFloat(first, 64); err == nil {
				status.SNR = &f
			}
		case "uptime":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				status.UptimeSeconds = &n
			}
		case "sw_version":
			v := value
			status.Version = &v
		case "antenna":
			v := value
			status.Antenna = &v
		case "loc":
			v := value
			status.Location = &v
		}
	}
}

// kiwiSNRSnapshot mirrors one element of the /snr JSON array.
type kiwiSNRSnapshot struct {
	Timestamp string `json:"ts"`
	Bands     []struct {
		Lo  int64   `json:"lo"`
		Hi  int64   `json:"hi"`
		SNR float64 `json:"snr"`
	} `json:"snr"`
}

// parseKiwiSNR extracts the band breakdown from the most recent
// snapshot. Any malformed payload yields no bands, never an error.
func parseKiwiSNR(body []byte) []model.BandQuality {
	var snapshots []kiwiSNRSnapshot
	if err := json.Unmarshal(body, &snapshots); err != nil || len(snapshots) == 0 {
		return nil
	}

	latest := snapshots[len(snapshots)-1]
	bands := make([]model.BandQuality, 0, len(latest.Bands))
	for _, b := range latest.Bands {
		bands = append(bands, model.BandQuality{
			LowHz:  b.Lo,
			HighHz: b.Hi,
			SNRdB:  b.SNR,
		})
	}
	return bands
}
