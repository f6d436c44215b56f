// Package session drives one tray through the scan/verify cycle. A
// single Manager owns the session state; only its transition logic
// mutates it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tray-verify/internal/detector"
	"github.com/example/tray-verify/internal/logging"
	"github.com/example/tray-verify/internal/overlay"
	"github.com/example/tray-verify/internal/profile"
	"github.com/example/tray-verify/internal/repository"
	"github.com/example/tray-verify/internal/verdict"
	"github.com/example/tray-verify/internal/vision"
)

// State names one position in the session cycle.
type State string

const (
	StateIdle                 State = "IDLE"
	StateScanning             State = "SCANNING"
	StateEvaluating           State = "EVALUATING"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateConfirmedDone        State = "CONFIRMED_DONE"
	StateRetry                State = "RETRY"
	StateFlaggedEscalation    State = "FLAGGED_ESCALATION"
	// StateError is terminal until an operator reset.
	StateError State = "ERROR"
)

// Action is an operator input event.
type Action string

const (
	ActionNext  Action = "next"
	ActionRetry Action = "retry"
	ActionFlag  Action = "flag"
	// ActionAck acknowledges a flagged escalation and loops back to a scan.
	ActionAck Action = "ack"
)

// ParseAction validates an operator input string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionNext, ActionRetry, ActionFlag, ActionAck:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
}

// ErrInvalidInput marks an operator input that the current state does
// not accept. Logged, never fatal.
var ErrInvalidInput = errors.New("operator input not valid in current state")

// ErrClearanceRequired blocks the advance to CONFIRMED_DONE until arm
// clearance has been confirmed.
var ErrClearanceRequired = errors.New("arm clearance not confirmed")

// LogSink receives append-only audit tuples; writes are fire-and-forget
// from the session's perspective.
type LogSink interface {
	Append(ctx context.Context, log *repository.SessionLog) error
	FindByScanID(ctx context.Context, scanID string) (*repository.SessionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Config holds the session tunables.
type Config struct {
	// AcquisitionRetryLimit bounds consecutive failed scan attempts
	// before the session lands in ERROR.
	AcquisitionRetryLimit int
	// MinFocusScore gates blurry frames; a frame below it counts as a
	// failed acquisition and is re-captured.
	MinFocusScore float64
	Verdict       verdict.Config
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		AcquisitionRetryLimit: 3,
		MinFocusScore:         9.0,
		Verdict:               verdict.DefaultConfig(),
	}
}

// Snapshot is a read-only view of the session for the operator interface.
type Snapshot struct {
	State       State                `json:"state"`
	TrayID      string               `json:"tray_id,omitempty"`
	ScanID      string               `json:"scan_id,omitempty"`
	Verdict     *verdict.TrayVerdict `json:"verdict,omitempty"`
	ZoneRetries map[string]int       `json:"zone_retries,omitempty"`
	ArmCleared  bool                 `json:"arm_cleared"`
	LastError   string               `json:"last_error,omitempty"`
}

// Manager is the session state machine. One instance drives one
// physical station; only one tray session is active at a time.
type Manager struct {
	cfg      Config
	profiles profile.Store
	rig      vision.Client
	det      *detector.Detector
	renderer overlay.Renderer
	sink     LogSink
	logger   *zap.Logger

	mu      sync.Mutex
	renders sync.WaitGroup

	state       State
	trayID      string
	prof        *profile.TrayProfile
	scanID      string
	current     *verdict.TrayVerdict
	history     []verdict.TrayVerdict
	zoneRetries map[string]int
	armCleared  bool
	lastError   string
}

// NewManager wires the session over its collaborators.
func NewManager(cfg Config, profiles profile.Store, rig vision.Client, det *detector.Detector, renderer overlay.Renderer, sink LogSink, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		profiles: profiles,
		rig:      rig,
		det:      det,
		renderer: renderer,
		sink:     sink,
		logger:   logger.Named("session"),
		state:    StateIdle,
	}
}

// Start begins a session for the tray: IDLE -> SCANNING. A missing
// profile surfaces the error and leaves the session in IDLE.
func (m *Manager) Start(ctx context.Context, trayID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return m.snapshotLocked(), logging.NewOperationError("session.start", "",
			fmt.Errorf("%w: start while %s", ErrInvalidInput, m.state))
	}

	prof, err := m.profiles.Load(ctx, trayID)
	if err != nil {
		m.logger.Error("profile load failed", zap.Error(err), zap.String("tray_id", trayID))
		return m.snapshotLocked(), logging.NewOperationError("session.start", "", err)
	}

	m.trayID = trayID
	m.prof = prof
	m.history = nil
	m.zoneRetries = make(map[string]int, len(prof.Zones))
	for _, z := range prof.Zones {
		m.zoneRetries[z.ID] = 0
	}
	return m.scanLocked(ctx)
}

// OperatorInput applies one operator event. Inputs the current state
// does not accept are rejected without a transition and re-signaled to
// the operator as an error.
func (m *Manager) OperatorInput(ctx context.Context, action Action) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch action {
	case ActionNext:
		return m.confirmNextLocked(ctx)
	case ActionRetry:
		if m.state != StateAwaitingConfirmation {
			return m.rejectLocked(action)
		}
		for _, zv := range m.current.Zones {
			if zv.Status != verdict.StatusConfirmed {
				m.zoneRetries[zv.Zone]++
			}
		}
		m.appendLogLocked(ctx, string(ActionRetry))
		m.state = StateRetry
		return m.scanLocked(ctx)
	case ActionFlag:
		if m.state != StateAwaitingConfirmation {
			return m.rejectLocked(action)
		}
		// Record the verdict for audit before escalating.
		m.appendLogLocked(ctx, string(ActionFlag))
		m.state = StateFlaggedEscalation
		m.logger.Info("tray flagged for escalation",
			zap.String("tray_id", m.trayID), zap.String("scan_id", m.scanID))
		return m.snapshotLocked(), nil
	case ActionAck:
		if m.state != StateFlaggedEscalation {
			return m.rejectLocked(action)
		}
		return m.scanLocked(ctx)
	}
	return m.rejectLocked(action)
}

func (m *Manager) confirmNextLocked(ctx context.Context) (*Snapshot, error) {
	if m.state != StateAwaitingConfirmation {
		return m.rejectLocked(ActionNext)
	}
	if m.current == nil || m.current.Overall != verdict.StatusConfirmed {
		m.logger.Warn("next rejected: tray not confirmed",
			zap.String("tray_id", m.trayID), zap.String("scan_id", m.scanID))
		return m.snapshotLocked(), logging.NewOperationError("session.input", m.scanID,
			fmt.Errorf("%w: tray verdict is %s", ErrInvalidInput, m.overallLocked()))
	}
	if !m.armCleared {
		// Clearance-before-advance: block until the clearance signal
		// arrives, regardless of input order.
		m.logger.Warn("next rejected: arm clearance pending",
			zap.String("tray_id", m.trayID), zap.String("scan_id", m.scanID))
		return m.snapshotLocked(), logging.NewOperationError("session.input", m.scanID, ErrClearanceRequired)
	}

	m.state = StateConfirmedDone
	m.appendLogLocked(ctx, string(ActionNext))
	m.logger.Info("tray confirmed",
		zap.String("tray_id", m.trayID), zap.String("scan_id", m.scanID))
	snap := m.snapshotLocked()
	// CONFIRMED_DONE immediately hands the station back for the next tray.
	m.resetLocked()
	return snap, nil
}

// ConfirmArmClearance records the safety gate signal from the interface.
func (m *Manager) ConfirmArmClearance() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAwaitingConfirmation {
		m.logger.Warn("clearance signal ignored", zap.String("state", string(m.state)))
		return m.snapshotLocked(), logging.NewOperationError("session.clearance", m.scanID,
			fmt.Errorf("%w: clearance while %s", ErrInvalidInput, m.state))
	}
	m.armCleared = true
	return m.snapshotLocked(), nil
}

// Reset recovers a session stuck in the terminal ERROR state.
func (m *Manager) Reset() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateError {
		return m.snapshotLocked(), logging.NewOperationError("session.reset", "",
			fmt.Errorf("%w: reset while %s", ErrInvalidInput, m.state))
	}
	m.resetLocked()
	return m.snapshotLocked(), nil
}

// Status returns the current session snapshot.
func (m *Manager) Status() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// VerdictLog retrieves the audit row for a past scan.
func (m *Manager) VerdictLog(ctx context.Context, scanID string) (*repository.SessionLog, error) {
	return m.sink.FindByScanID(ctx, scanID)
}

// ListProfiles returns the tray ids known to the profile store.
func (m *Manager) ListProfiles(ctx context.Context) ([]string, error) {
	return m.profiles.List(ctx)
}

// scanLocked runs one SCANNING -> EVALUATING -> AWAITING_CONFIRMATION
// pass. Verdict computation is all-or-nothing: a failed attempt leaves
// no partial verdict, render, or log entry behind.
func (m *Manager) scanLocked(ctx context.Context) (*Snapshot, error) {
	// A new scan must not start while a render for the previous verdict
	// is still in flight.
	m.renders.Wait()

	m.state = StateScanning
	m.armCleared = false
	m.current = nil
	m.scanID = uuid.NewString()
	opLogger := logging.WithOperation(m.logger, "session.scan", m.scanID)

	var findings []detector.Finding
	attempts := 0
	for {
		frame, err := m.rig.CaptureFrame(ctx)
		if err == nil && frame.FocusScore < m.cfg.MinFocusScore {
			err = fmt.Errorf("%w: focus score %.2f below minimum %.2f",
				vision.ErrAcquisition, frame.FocusScore, m.cfg.MinFocusScore)
		}
		if err == nil {
			findings, err = m.det.Detect(ctx, frame, m.prof)
		}
		if err == nil {
			break
		}

		attempts++
		opLogger.Warn("scan attempt failed", zap.Error(err), zap.Int("attempt", attempts))
		if attempts >= m.cfg.AcquisitionRetryLimit {
			m.state = StateError
			m.lastError = err.Error()
			opLogger.Error("acquisition retry limit reached; operator reset required",
				zap.Int("limit", m.cfg.AcquisitionRetryLimit))
			return m.snapshotLocked(), logging.NewOperationError("session.scan", m.scanID, err)
		}
		// Re-enter SCANNING for the next attempt.
	}

	m.state = StateEvaluating
	tv := verdict.Map(findings, m.prof, m.cfg.Verdict)
	tv.TrayID = m.trayID
	tv.ScanID = m.scanID
	m.current = &tv
	m.history = append(m.history, tv)

	m.appendLogLocked(ctx, "scan")
	m.renderLocked(&tv)
	m.state = StateAwaitingConfirmation
	opLogger.Info("verdict computed",
		zap.String("overall", string(tv.Overall)), zap.String("summary", tv.Summary))
	return m.snapshotLocked(), nil
}

// renderLocked emits the render command without awaiting acknowledgment.
func (m *Manager) renderLocked(tv *verdict.TrayVerdict) {
	m.renders.Add(1)
	go func() {
		defer m.renders.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.renderer.Render(ctx, tv); err != nil {
			m.logger.Warn("overlay render failed", zap.Error(err), zap.String("scan_id", tv.ScanID))
		}
	}()
}

// appendLogLocked writes an audit row; failures are logged, not fatal.
func (m *Manager) appendLogLocked(ctx context.Context, action string) {
	if m.current == nil {
		return
	}
	serialized, err := json.Marshal(m.current)
	if err != nil {
		m.logger.Warn("failed to serialize verdict for audit", zap.Error(err))
		return
	}
	entry := &repository.SessionLog{
		ScanID:         m.scanID,
		TrayID:         m.trayID,
		Overall:        string(m.current.Overall),
		AvgConfidence:  m.current.AverageConfidence(),
		Verdict:        string(serialized),
		OperatorAction: action,
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.sink.Append(ctx, entry); err != nil {
		m.logger.Warn("session log append failed", zap.Error(err), zap.String("scan_id", m.scanID))
	}
}

func (m *Manager) rejectLocked(action Action) (*Snapshot, error) {
	m.logger.Warn("operator input rejected",
		zap.String("action", string(action)), zap.String("state", string(m.state)))
	return m.snapshotLocked(), logging.NewOperationError("session.input", m.scanID,
		fmt.Errorf("%w: %s while %s", ErrInvalidInput, action, m.state))
}

func (m *Manager) resetLocked() {
	m.state = StateIdle
	m.trayID = ""
	m.prof = nil
	m.scanID = ""
	m.current = nil
	m.history = nil
	m.zoneRetries = nil
	m.armCleared = false
	m.lastError = ""
}

func (m *Manager) overallLocked() verdict.Status {
	if m.current == nil {
		return ""
	}
	return m.current.Overall
}

func (m *Manager) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		State:      m.state,
		TrayID:     m.trayID,
		ScanID:     m.scanID,
		Verdict:    m.current,
		ArmCleared: m.armCleared,
		LastError:  m.lastError,
	}
	if len(m.zoneRetries) > 0 {
		snap.ZoneRetries = make(map[string]int, len(m.zoneRetries))
		for k, v := range m.zoneRetries {
			snap.ZoneRetries[k] = v
		}
	}
	return snap
}
