package probe

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sdrwatch/internal/model"
)

// webSDRProber speaks the WebSDR dialect. These receivers expose no
// structured status endpoint at all; the generated websdr.js resource
// existing and carrying the expected marker is the liveness signal.
// Frequency band ranges embedded in the script are parsed
// opportunistically when present.
type webSDRProber struct {
	fetcher *Fetcher
	timeout time.Duration
}

// websdrMarker must appear in the script body for the receiver to
// count as alive; a captive portal or parked domain answering 200
// would otherwise look online.
const websdrMarker = "websdr"

// bandCallPattern matches generated band setup calls such as
// "setband(3573000, 3800000, ...)" or "addband(0,29160000)".
var bandCallPattern = regexp.MustCompile(`(?i)band[a-z]*\s*\(\s*(\d{4,10})\s*,\s*(\d{4,10})`)

// bareFrequencyPattern is the fallback: any plausible Hz value.
var bareFrequencyPattern = regexp.MustCompile(`\b(\d{5,10})\b`)

func (p *webSDRProber) Probe(ctx context.Context, normalizedURL string) model.ReceiverStatus {
	body, viaProxy, err := p.fetcher.Get(ctx, normalizedURL+"/websdr.js", p.timeout)
	if err != nil {
		return offlineStatus(normalizedURL, model.ReceiverTypeWebSDR, viaProxy, err)
	}

	status := model.ReceiverStatus{
		URL:       normalizedURL,
		Type:      model.ReceiverTypeWebSDR,
		CheckedAt: time.Now(),
		ViaProxy:  viaProxy,
	}

	text := string(body)
	if !strings.Contains(strings.ToLower(text), websdrMarker) {
		status.Online = false
		status.Error = "response missing websdr marker"
		return status
	}

	status.Online = true
	status.Bands = parseWebSDRBands(text)
	return status
}

// parseWebSDRBands extracts frequency ranges from the script. Explicit
// band calls win; otherwise the spread of bare frequency literals is
// reported as a single covering range. No quality figure exists in
// this dialect, so SNR stays zero.
func parseWebSDRBands(script string) []model.BandQuality {
	var bands []model.BandQuality
	for _, match := range bandCallPattern.FindAllStringSubmatch(script, -1) {
		lo, err1 := strconv.ParseInt(match[1], 10, 64)
		hi, err2 := strconv.ParseInt(match[2], 10, 64)
		if err1 != nil || err2 != nil || hi <= lo {
			continue
		}
		bands = append(bands, model.BandQuality{LowHz: lo, HighHz: hi})
	}
	if len(bands) > 0 {
		return bands
	}

	var min, max int64
	for _, match := range bareFrequencyPattern.FindAllStringSubmatch(script, -1) {
		f, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		if min == 0 || f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	if min > 0 && max > min {
		return []model.BandQuality{{LowHz: min, HighHz: max}}
	}
	return nil
}
