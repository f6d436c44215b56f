package profile

import "errors"

// ErrNotFound is returned when no profile matches the requested tray id.
var ErrNotFound = errors.New("tray profile not found")

// Region is an axis-aligned rectangle in frame coordinates.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether the point falls inside the region.
func (r Region) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// ExpectedZone describes one sub-region of a tray and what should sit in it.
type ExpectedZone struct {
	ID       string  `json:"id"`
	Expected int     `json:"expected"`
	Region   Region  `json:"region"`
	BlobArea float64 `json:"blob_area"`
	// LogoRef names the reference template held by the vision rig.
	// Empty means no logo check for this zone.
	LogoRef string `json:"logo_ref,omitempty"`
}

// TrayProfile is the expected layout for one tray type. Immutable after load.
type TrayProfile struct {
	TrayID  string         `json:"tray_id"`
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Zones   []ExpectedZone `json:"zones"`
}

// Zone returns the zone with the given id, or nil.
func (p *TrayProfile) Zone(id string) *ExpectedZone {
	for i := range p.Zones {
		if p.Zones[i].ID == id {
			return &p.Zones[i]
		}
	}
	return nil
}
