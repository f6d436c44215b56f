package vision

import (
	"context"
	"errors"
)

// ErrAcquisition marks transient frame/vision failures. The session
// retries these up to its limit before escalating.
var ErrAcquisition = errors.New("frame acquisition failed")

// Frame references a captured image held by the vision rig.
type Frame struct {
	ID         string
	Width      int
	Height     int
	FocusScore float64
}

// Region is an axis-aligned rectangle in frame coordinates.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Candidate is a raw blob reported by the vision rig, before scoring.
type Candidate struct {
	X           float64
	Y           float64
	Radius      float64
	Area        float64
	Circularity float64
}

// Client exposes the vision rig primitives used by the scan flow.
type Client interface {
	CaptureFrame(ctx context.Context) (*Frame, error)
	ExtractCandidates(ctx context.Context, frameID string, region Region) ([]Candidate, error)
	MatchTemplate(ctx context.Context, frameID string, region Region, logoRef string) (float64, error)
}
