package detector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/tray-verify/internal/profile"
	"github.com/example/tray-verify/internal/vision"
)

// Config holds the scoring parameters. All of them are calibration
// knobs, not contracts.
type Config struct {
	// Weights for the confidence blend. When a zone has no logo ref the
	// logo weight is redistributed over area and shape.
	AreaWeight  float64
	ShapeWeight float64
	LogoWeight  float64

	// OversizedRatio flags candidates whose area exceeds this multiple
	// of the zone's expected blob area. Flagged candidates keep their
	// position but are capped below the borderline band so they can
	// never pass as multiple correct items.
	OversizedRatio       float64
	AnomalyConfidenceCap float64

	// EdgeMargin excludes candidates whose circle crosses the frame
	// border, in pixels.
	EdgeMargin float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		AreaWeight:           0.4,
		ShapeWeight:          0.3,
		LogoWeight:           0.3,
		OversizedRatio:       1.5,
		AnomalyConfidenceCap: 0.4,
		EdgeMargin:           10,
	}
}

// Finding is one scored blob. Findings are ephemeral: produced fresh
// per scan and discarded once a verdict is computed.
type Finding struct {
	Zone        string  `json:"zone"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Area        float64 `json:"area"`
	Confidence  float64 `json:"confidence"`
	LogoScore   float64 `json:"logo_score,omitempty"`
	LogoChecked bool    `json:"logo_checked,omitempty"`
	Oversized   bool    `json:"oversized,omitempty"`
}

// Detector scores raw vision-rig candidates against a tray profile.
type Detector struct {
	cfg    Config
	client vision.Client
	logger *zap.Logger
}

// New creates a detector over the given vision client.
func New(client vision.Client, cfg Config, logger *zap.Logger) *Detector {
	return &Detector{cfg: cfg, client: client, logger: logger.Named("detector")}
}

// Detect extracts candidates for every zone of the profile and scores
// them. Given the same frame and profile the result is identical on
// every call; there is no hidden randomness. A vision-rig failure is
// propagated as vision.ErrAcquisition — zero findings are never
// fabricated for a frame that could not be processed.
func (d *Detector) Detect(ctx context.Context, frame *vision.Frame, prof *profile.TrayProfile) ([]Finding, error) {
	findings := make([]Finding, 0, len(prof.Zones))
	for i := range prof.Zones {
		zone := &prof.Zones[i]
		candidates, err := d.client.ExtractCandidates(ctx, frame.ID, toVisionRegion(zone.Region))
		if err != nil {
			return nil, fmt.Errorf("extract candidates for zone %s: %w", zone.ID, err)
		}
		for _, c := range candidates {
			if d.edgeExcluded(c, frame) {
				d.logger.Debug("candidate excluded by edge filter",
					zap.String("zone", zone.ID), zap.Float64("x", c.X), zap.Float64("y", c.Y))
				continue
			}
			f, err := d.score(ctx, frame, zone, c)
			if err != nil {
				return nil, err
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func (d *Detector) score(ctx context.Context, frame *vision.Frame, zone *profile.ExpectedZone, c vision.Candidate) (Finding, error) {
	areaScore := scoreArea(c.Area, zone.BlobArea)
	shapeScore := clamp01(c.Circularity)

	f := Finding{
		Zone: zone.ID,
		X:    c.X,
		Y:    c.Y,
		Area: c.Area,
	}

	if zone.LogoRef != "" {
		logoScore, err := d.client.MatchTemplate(ctx, frame.ID, candidateRegion(c), zone.LogoRef)
		if err != nil {
			return Finding{}, fmt.Errorf("match template %s in zone %s: %w", zone.LogoRef, zone.ID, err)
		}
		f.LogoScore = clamp01(logoScore)
		f.LogoChecked = true
		f.Confidence = d.cfg.AreaWeight*areaScore + d.cfg.ShapeWeight*shapeScore + d.cfg.LogoWeight*f.LogoScore
	} else {
		total := d.cfg.AreaWeight + d.cfg.ShapeWeight
		f.Confidence = (d.cfg.AreaWeight*areaScore + d.cfg.ShapeWeight*shapeScore) / total
	}

	if zone.BlobArea > 0 && c.Area > d.cfg.OversizedRatio*zone.BlobArea {
		// Likely touching or overlapping parts. Score it, but keep it
		// out of the confirmable band.
		f.Oversized = true
		if f.Confidence > d.cfg.AnomalyConfidenceCap {
			f.Confidence = d.cfg.AnomalyConfidenceCap
		}
		d.logger.Debug("oversized candidate",
			zap.String("zone", zone.ID), zap.Float64("area", c.Area), zap.Float64("expected_area", zone.BlobArea))
	}
	return f, nil
}

func (d *Detector) edgeExcluded(c vision.Candidate, frame *vision.Frame) bool {
	m := d.cfg.EdgeMargin
	w := float64(frame.Width)
	h := float64(frame.Height)
	return c.X-c.Radius <= m || c.X+c.Radius >= w-m ||
		c.Y-c.Radius <= m || c.Y+c.Radius >= h-m
}

// scoreArea rates how close the candidate area is to the expected blob
// area: 1.0 at an exact match, falling off linearly.
func scoreArea(area, expected float64) float64 {
	if expected <= 0 {
		return 1
	}
	return clamp01(1 - abs(1-area/expected))
}

func candidateRegion(c vision.Candidate) vision.Region {
	return vision.Region{
		X:      c.X - c.Radius,
		Y:      c.Y - c.Radius,
		Width:  2 * c.Radius,
		Height: 2 * c.Radius,
	}
}

func toVisionRegion(r profile.Region) vision.Region {
	return vision.Region{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
