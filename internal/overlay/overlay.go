// Package overlay sends render commands to the projector daemon. The
// daemon owns pixels and fade timing; this side only says which zone
// gets which color.
package overlay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/tray-verify/internal/logging"
	"github.com/example/tray-verify/internal/verdict"
)

// Renderer receives a render command per verdict.
type Renderer interface {
	Render(ctx context.Context, tv *verdict.TrayVerdict) error
}

// ZonePayload is the per-zone portion of a render command.
type ZonePayload struct {
	Zone   string `json:"zone"`
	Status string `json:"status"`
	Color  string `json:"color"`
}

// RenderPayload is the wire form posted to the projector daemon.
type RenderPayload struct {
	TrayID  string        `json:"tray_id"`
	ScanID  string        `json:"scan_id"`
	Overall string        `json:"overall"`
	Zones   []ZonePayload `json:"zones"`
	// FullWash requests the tray-wide green wash on overall CONFIRMED.
	FullWash bool `json:"full_wash"`
	// Chime requests the audible cue, only on overall CONFIRMED.
	Chime bool `json:"chime"`
}

// BuildPayload maps a verdict to its render command.
func BuildPayload(tv *verdict.TrayVerdict) RenderPayload {
	payload := RenderPayload{
		TrayID:   tv.TrayID,
		ScanID:   tv.ScanID,
		Overall:  string(tv.Overall),
		Zones:    make([]ZonePayload, 0, len(tv.Zones)),
		FullWash: tv.Overall == verdict.StatusConfirmed,
		Chime:    tv.Overall == verdict.StatusConfirmed,
	}
	for _, zv := range tv.Zones {
		payload.Zones = append(payload.Zones, ZonePayload{
			Zone:   zv.Zone,
			Status: string(zv.Status),
			Color:  verdict.Color(zv.Status),
		})
	}
	return payload
}

// HTTPRenderer posts render commands to the projector daemon.
type HTTPRenderer struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPRenderer creates a renderer for the daemon at the given URL.
func NewHTTPRenderer(url string, logger *zap.Logger) *HTTPRenderer {
	return &HTTPRenderer{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger.Named("overlay"),
	}
}

// Render posts the render command. Callers treat it as fire-and-forget;
// a failed render is logged, not fatal to the scan.
func (r *HTTPRenderer) Render(ctx context.Context, tv *verdict.TrayVerdict) error {
	payload := BuildPayload(tv)
	body, err := json.Marshal(payload)
	if err != nil {
		return logging.NewOperationError("overlay.render", tv.ScanID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return logging.NewOperationError("overlay.render", tv.ScanID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("render request failed", zap.Error(err), zap.String("scan_id", tv.ScanID))
		return logging.NewOperationError("overlay.render", tv.ScanID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("projector daemon returned status %d", resp.StatusCode)
		r.logger.Error("render rejected", zap.Error(err), zap.String("scan_id", tv.ScanID))
		return logging.NewOperationError("overlay.render", tv.ScanID, err)
	}
	return nil
}

var _ Renderer = (*HTTPRenderer)(nil)
