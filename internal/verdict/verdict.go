// Package verdict turns scored findings into per-zone and tray-level
// statuses. Mapping is a pure function of findings and profile:
// recomputed on every scan, never incrementally patched.
package verdict

import (
	"fmt"

	"github.com/example/tray-verify/internal/detector"
	"github.com/example/tray-verify/internal/profile"
)

// Status is a zone or tray verdict state.
type Status string

const (
	StatusConfirmed  Status = "CONFIRMED"
	StatusBorderline Status = "BORDERLINE"
	StatusFlagged    Status = "FLAGGED"
	StatusMissing    Status = "MISSING"
)

// Config holds the verdict thresholds. Defaults are illustrative
// pending real calibration data.
type Config struct {
	// ConfirmThreshold is the minimum confidence for a finding to count
	// toward the expected total.
	ConfirmThreshold float64
	// BorderlineThreshold is the lower bound of the borderline band
	// [BorderlineThreshold, ConfirmThreshold).
	BorderlineThreshold float64
	// BorderlineMargin is the maximum count difference that can still
	// be reported as BORDERLINE.
	BorderlineMargin int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ConfirmThreshold:    0.8,
		BorderlineThreshold: 0.5,
		BorderlineMargin:    1,
	}
}

// ZoneVerdict is the status of one zone. Findings are references into
// the scan's finding slice; the mapper does not own them.
type ZoneVerdict struct {
	Zone     string              `json:"zone"`
	Status   Status              `json:"status"`
	Expected int                 `json:"expected"`
	Counted  int                 `json:"counted"`
	Findings []*detector.Finding `json:"findings"`
}

// TrayVerdict aggregates all zone verdicts for one scan attempt.
type TrayVerdict struct {
	TrayID  string        `json:"tray_id"`
	ScanID  string        `json:"scan_id"`
	Zones   []ZoneVerdict `json:"zones"`
	Overall Status        `json:"overall"`
	Summary string        `json:"summary"`
}

// Map computes the tray verdict. Findings are partitioned into zones by
// position; every call with identical inputs yields an identical result.
func Map(findings []detector.Finding, prof *profile.TrayProfile, cfg Config) TrayVerdict {
	tv := TrayVerdict{
		TrayID:  prof.TrayID,
		Zones:   make([]ZoneVerdict, 0, len(prof.Zones)),
		Overall: StatusConfirmed,
	}

	totalCounted := 0
	totalExpected := 0
	for i := range prof.Zones {
		zone := &prof.Zones[i]
		zv := mapZone(findings, zone, cfg)
		tv.Zones = append(tv.Zones, zv)
		totalCounted += zv.Counted
		totalExpected += zone.Expected
		if severity(zv.Status) > severity(tv.Overall) {
			tv.Overall = zv.Status
		}
	}
	tv.Summary = fmt.Sprintf("found %d of %d expected items", totalCounted, totalExpected)
	return tv
}

func mapZone(findings []detector.Finding, zone *profile.ExpectedZone, cfg Config) ZoneVerdict {
	zv := ZoneVerdict{Zone: zone.ID, Expected: zone.Expected}

	oversized := false
	qualifying := 0
	borderlineBand := false
	for i := range findings {
		f := &findings[i]
		if !zone.Region.Contains(f.X, f.Y) {
			continue
		}
		zv.Findings = append(zv.Findings, f)
		if f.Oversized {
			oversized = true
		}
		if f.Confidence >= cfg.ConfirmThreshold {
			qualifying++
		} else if f.Confidence >= cfg.BorderlineThreshold {
			borderlineBand = true
		}
	}
	zv.Counted = qualifying

	switch {
	case oversized:
		// An oversized blob must never be mistaken for multiple correct
		// items, whatever the count says.
		zv.Status = StatusFlagged
	case qualifying == zone.Expected:
		zv.Status = StatusConfirmed
	case qualifying == 0 && zone.Expected > 0:
		// Absence is reported, never inferred as borderline presence.
		zv.Status = StatusMissing
	case diff(qualifying, zone.Expected) <= cfg.BorderlineMargin && borderlineBand:
		zv.Status = StatusBorderline
	default:
		zv.Status = StatusFlagged
	}
	return zv
}

// severity orders statuses FLAGGED > MISSING > BORDERLINE > CONFIRMED.
func severity(s Status) int {
	switch s {
	case StatusFlagged:
		return 3
	case StatusMissing:
		return 2
	case StatusBorderline:
		return 1
	default:
		return 0
	}
}

// Color maps a status to the operator-visible overlay color.
func Color(s Status) string {
	switch s {
	case StatusConfirmed:
		return "green"
	case StatusBorderline:
		return "yellow"
	default:
		return "red"
	}
}

// AverageConfidence is the mean confidence over all findings in the
// verdict, used for session metrics.
func (tv *TrayVerdict) AverageConfidence() float64 {
	sum := 0.0
	n := 0
	for _, zv := range tv.Zones {
		for _, f := range zv.Findings {
			sum += f.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func diff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
