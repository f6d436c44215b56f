package detector

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/example/tray-verify/internal/profile"
	"github.com/example/tray-verify/internal/vision"
)

type stubVision struct {
	candidates map[string][]vision.Candidate // keyed by region X to tell zones apart
	extractErr error
	logoScores map[string]float64
	matchErr   error
	matchCalls int
}

func (s *stubVision) CaptureFrame(ctx context.Context) (*vision.Frame, error) {
	return &vision.Frame{ID: "frame-1", Width: 640, Height: 480, FocusScore: 20}, nil
}

func (s *stubVision) ExtractCandidates(ctx context.Context, frameID string, region vision.Region) ([]vision.Candidate, error) {
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	key := regionKey(region)
	return s.candidates[key], nil
}

func (s *stubVision) MatchTemplate(ctx context.Context, frameID string, region vision.Region, logoRef string) (float64, error) {
	s.matchCalls++
	if s.matchErr != nil {
		return 0, s.matchErr
	}
	return s.logoScores[logoRef], nil
}

func regionKey(r vision.Region) string {
	if r.X >= 300 {
		return "right"
	}
	return "left"
}

func testFrame() *vision.Frame {
	return &vision.Frame{ID: "frame-1", Width: 640, Height: 480, FocusScore: 20}
}

func testProfile() *profile.TrayProfile {
	return &profile.TrayProfile{
		TrayID: "tray-a",
		Zones: []profile.ExpectedZone{
			{ID: "zoneA", Expected: 2, Region: profile.Region{X: 0, Y: 0, Width: 300, Height: 480}, BlobArea: 100},
		},
	}
}

func TestDetectScoresWellFormedCandidate(t *testing.T) {
	client := &stubVision{candidates: map[string][]vision.Candidate{
		"left": {{X: 100, Y: 100, Radius: 6, Area: 100, Circularity: 1.0}},
	}}
	d := New(client, DefaultConfig(), zap.NewNop())

	findings, err := d.Detect(context.Background(), testFrame(), testProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	// Exact area match and perfect circularity, no logo: confidence 1.0.
	if f.Confidence < 0.999 || f.Confidence > 1.0 {
		t.Fatalf("unexpected confidence: %f", f.Confidence)
	}
	if f.Oversized {
		t.Fatal("did not expect oversized flag")
	}
	if f.Zone != "zoneA" {
		t.Fatalf("unexpected zone: %s", f.Zone)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	client := &stubVision{candidates: map[string][]vision.Candidate{
		"left": {
			{X: 100, Y: 100, Radius: 6, Area: 95, Circularity: 0.9},
			{X: 150, Y: 200, Radius: 5, Area: 110, Circularity: 0.8},
		},
	}}
	d := New(client, DefaultConfig(), zap.NewNop())

	first, err := d.Detect(context.Background(), testFrame(), testProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := d.Detect(context.Background(), testFrame(), testProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical findings, got %+v and %+v", first, second)
	}
}

func TestDetectCapsOversizedCandidate(t *testing.T) {
	// Area 200 is 2x the expected 100, over the 1.5x cutoff.
	client := &stubVision{candidates: map[string][]vision.Candidate{
		"left": {{X: 100, Y: 100, Radius: 8, Area: 200, Circularity: 1.0}},
	}}
	cfg := DefaultConfig()
	d := New(client, cfg, zap.NewNop())

	findings, err := d.Detect(context.Background(), testFrame(), testProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if !f.Oversized {
		t.Fatal("expected oversized flag")
	}
	if f.Confidence > cfg.AnomalyConfidenceCap {
		t.Fatalf("expected confidence capped at %f, got %f", cfg.AnomalyConfidenceCap, f.Confidence)
	}
}

func TestDetectExcludesEdgeCandidates(t *testing.T) {
	client := &stubVision{candidates: map[string][]vision.Candidate{
		"left": {
			{X: 8, Y: 100, Radius: 6, Area: 100, Circularity: 1.0},   // crosses left margin
			{X: 100, Y: 477, Radius: 6, Area: 100, Circularity: 1.0}, // crosses bottom margin
			{X: 100, Y: 100, Radius: 6, Area: 100, Circularity: 1.0},
		},
	}}
	d := New(client, DefaultConfig(), zap.NewNop())

	findings, err := d.Detect(context.Background(), testFrame(), testProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected only the interior candidate, got %d findings", len(findings))
	}
}

func TestDetectBlendsLogoScore(t *testing.T) {
	prof := &profile.TrayProfile{
		TrayID: "tray-b",
		Zones: []profile.ExpectedZone{
			{ID: "logoZone", Expected: 1, Region: profile.Region{X: 300, Y: 0, Width: 340, Height: 480}, BlobArea: 100, LogoRef: "acme"},
		},
	}
	client := &stubVision{
		candidates: map[string][]vision.Candidate{
			"right": {{X: 400, Y: 100, Radius: 6, Area: 100, Circularity: 1.0}},
		},
		logoScores: map[string]float64{"acme": 0.5},
	}
	d := New(client, DefaultConfig(), zap.NewNop())

	findings, err := d.Detect(context.Background(), testFrame(), prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if !f.LogoChecked {
		t.Fatal("expected logo check to run")
	}
	if client.matchCalls != 1 {
		t.Fatalf("expected 1 match call, got %d", client.matchCalls)
	}
	// 0.4*1 + 0.3*1 + 0.3*0.5 = 0.85
	if f.Confidence < 0.849 || f.Confidence > 0.851 {
		t.Fatalf("unexpected blended confidence: %f", f.Confidence)
	}
}

func TestDetectPropagatesAcquisitionError(t *testing.T) {
	client := &stubVision{extractErr: vision.ErrAcquisition}
	d := New(client, DefaultConfig(), zap.NewNop())

	findings, err := d.Detect(context.Background(), testFrame(), testProfile())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, vision.ErrAcquisition) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	if findings != nil {
		t.Fatalf("expected no findings on failure, got %d", len(findings))
	}
}
