package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/tray-verify/internal/detector"
	"github.com/example/tray-verify/internal/profile"
	"github.com/example/tray-verify/internal/repository"
	"github.com/example/tray-verify/internal/verdict"
	"github.com/example/tray-verify/internal/vision"
)

type stubStore struct {
	profiles map[string]*profile.TrayProfile
}

func (s *stubStore) Load(ctx context.Context, trayID string) (*profile.TrayProfile, error) {
	if p, ok := s.profiles[trayID]; ok {
		return p, nil
	}
	return nil, profile.ErrNotFound
}

func (s *stubStore) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	return ids, nil
}

type stubRig struct {
	captureErrs []error
	focusScores []float64
	candidates  []vision.Candidate
	captures    int
}

func (s *stubRig) CaptureFrame(ctx context.Context) (*vision.Frame, error) {
	s.captures++
	if len(s.captureErrs) > 0 {
		err := s.captureErrs[0]
		s.captureErrs = s.captureErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	focus := 20.0
	if len(s.focusScores) > 0 {
		focus = s.focusScores[0]
		s.focusScores = s.focusScores[1:]
	}
	return &vision.Frame{ID: "frame-1", Width: 640, Height: 480, FocusScore: focus}, nil
}

func (s *stubRig) ExtractCandidates(ctx context.Context, frameID string, region vision.Region) ([]vision.Candidate, error) {
	return s.candidates, nil
}

func (s *stubRig) MatchTemplate(ctx context.Context, frameID string, region vision.Region, logoRef string) (float64, error) {
	return 1.0, nil
}

type stubRenderer struct {
	rendered chan *verdict.TrayVerdict
}

func newStubRenderer() *stubRenderer {
	return &stubRenderer{rendered: make(chan *verdict.TrayVerdict, 16)}
}

func (s *stubRenderer) Render(ctx context.Context, tv *verdict.TrayVerdict) error {
	s.rendered <- tv
	return nil
}

func (s *stubRenderer) waitForRender(t *testing.T) *verdict.TrayVerdict {
	t.Helper()
	select {
	case tv := <-s.rendered:
		return tv
	case <-time.After(2 * time.Second):
		t.Fatal("expected a render command")
		return nil
	}
}

type stubSink struct {
	entries     []*repository.SessionLog
	aggregation *repository.MetricsAggregation
}

func (s *stubSink) Append(ctx context.Context, log *repository.SessionLog) error {
	s.entries = append(s.entries, log)
	return nil
}

func (s *stubSink) FindByScanID(ctx context.Context, scanID string) (*repository.SessionLog, error) {
	for _, e := range s.entries {
		if e.ScanID == scanID {
			return e, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *stubSink) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	if s.aggregation == nil {
		return &repository.MetricsAggregation{}, nil
	}
	return s.aggregation, nil
}

type fixture struct {
	mgr      *Manager
	rig      *stubRig
	renderer *stubRenderer
	sink     *stubSink
}

// goodCandidate sits inside zoneA with an exact area match and perfect
// circularity: confidence 1.0 after scoring.
func goodCandidate() vision.Candidate {
	return vision.Candidate{X: 100, Y: 100, Radius: 6, Area: 100, Circularity: 1.0}
}

func newFixture(candidates []vision.Candidate) *fixture {
	store := &stubStore{profiles: map[string]*profile.TrayProfile{
		"tray-a": {
			TrayID: "tray-a",
			Zones: []profile.ExpectedZone{
				{ID: "zoneA", Expected: 1, Region: profile.Region{X: 0, Y: 0, Width: 640, Height: 480}, BlobArea: 100},
			},
		},
	}}
	rig := &stubRig{candidates: candidates}
	renderer := newStubRenderer()
	sink := &stubSink{}
	det := detector.New(rig, detector.DefaultConfig(), zap.NewNop())
	mgr := NewManager(DefaultConfig(), store, rig, det, renderer, sink, zap.NewNop())
	return &fixture{mgr: mgr, rig: rig, renderer: renderer, sink: sink}
}

func TestStartRunsScanToAwaitingConfirmation(t *testing.T) {
	f := newFixture([]vision.Candidate{goodCandidate()})

	snap, err := f.mgr.Start(context.Background(), "tray-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != StateAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", snap.State)
	}
	if snap.Verdict == nil || snap.Verdict.Overall != verdict.StatusConfirmed {
		t.Fatalf("expected CONFIRMED verdict, got %+v", snap.Verdict)
	}

	tv := f.renderer.waitForRender(t)
	if tv.ScanID != snap.ScanID {
		t.Fatalf("render carries wrong scan id: %s vs %s", tv.ScanID, snap.ScanID)
	}

	if len(f.sink.entries) != 1 || f.sink.entries[0].OperatorAction != "scan" {
		t.Fatalf("expected one scan log entry, got %+v", f.sink.entries)
	}
}

func TestStartUnknownTrayStaysIdle(t *testing.T) {
	f := newFixture(nil)

	snap, err := f.mgr.Start(context.Background(), "no-such-tray")
	if err == nil {
		t.Fatal("expected error for unknown tray")
	}
	if !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if snap.State != StateIdle {
		t.Fatalf("expected session to stay IDLE, got %s", snap.State)
	}
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	f := newFixture([]vision.Candidate{goodCandidate()})

	if _, err := f.mgr.Start(context.Background(), "tray-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.mgr.Start(context.Background(), "tray-a"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConfirmedDoneUnreachableWithoutClearance(t *testing.T) {
	f := newFixture([]vision.Candidate{goodCandidate()})
	ctx := context.Background()

	if _, err := f.mgr.Start(ctx, "tray-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "next" before clearance: rejected, no transition.
	snap, err := f.mgr.OperatorInput(ctx, ActionNext)
	if !errors.Is(err, ErrClearanceRequired) {
		t.Fatalf("expected ErrClearanceRequired, got %v", err)
	}
	if snap.State != StateAwaitingConfirmation {
		t.Fatalf("expected no transition, got %s", snap.State)
	}

	// Repeated "next" without clearance keeps failing.
	if _, err := f.mgr.OperatorInput(ctx, ActionNext); !errors.Is(err, ErrClearanceRequired) {
		t.Fatalf("expected ErrClearanceRequired again, got %v", err)
	}

	if _, err := f.mgr.ConfirmArmClearance(); err != nil {
		t.Fatalf("unexpected clearance error: %v", err)
	}

	snap, err = f.mgr.OperatorInput(ctx, ActionNext)
	if err != nil {
		t.Fatalf("unexpected error after clearance: %v", err)
	}
	if snap.State != StateConfirmedDone {
		t.Fatalf("expected CONFIRMED_DONE, got %s", snap.State)
	}
	if f.mgr.Status().State != StateIdle {
		t.Fatalf("expected session back in IDLE, got %s", f.mgr.Status().State)
	}
}

func TestNextRejectedWhenTrayNotConfirmed(t *testing.T) {
	// No candidates: zoneA is MISSING.
	f := newFixture(nil)
	ctx := context.Background()

	snap, err := f.mgr.Start(ctx, "tray-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Verdict.Overall != verdict.StatusMissing {
		t.Fatalf("expected MISSING verdict, got %s", snap.Verdict.Overall)
	}

	if _, err := f.mgr.ConfirmArmClearance(); err != nil {
		t.Fatalf("unexpected clearance error: %v", err)
	}
	snap, err = f.mgr.OperatorInput(ctx, ActionNext)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if snap.State != StateAwaitingConfirmation {
		t.Fatalf("expected no transition, got %s", snap.State)
	}
}

func TestRetryIncrementsZoneCountersAndRescans(t *testing.T) {
	f := newFixture(nil) // MISSING verdict
	ctx := context.Background()

	if _, err := f.mgr.Start(ctx, "tray-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.renderer.waitForRender(t)

	snap, err := f.mgr.OperatorInput(ctx, ActionRetry)
	if err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}
	if snap.State != StateAwaitingConfirmation {
		t.Fatalf("expected rescan to land in AWAITING_CONFIRMATION, got %s", snap.State)
	}
	if snap.ZoneRetries["zoneA"] != 1 {
		t.Fatalf("expected retry counter 1, got %d", snap.ZoneRetries["zoneA"])
	}
	if f.rig.captures != 2 {
		t.Fatalf("expected 2 captures, got %d", f.rig.captures)
	}

	// No upper bound on operator retries.
	snap, err = f.mgr.OperatorInput(ctx, ActionRetry)
	if err != nil {
		t.Fatalf("unexpected second retry error: %v", err)
	}
	if snap.ZoneRetries["zoneA"] != 2 {
		t.Fatalf("expected retry counter 2, got %d", snap.ZoneRetries["zoneA"])
	}
}

func TestRetryClearsStaleArmClearance(t *testing.T) {
	f := newFixture([]vision.Candidate{goodCandidate()})
	ctx := context.Background()

	if _, err := f.mgr.Start(ctx, "tray-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.mgr.ConfirmArmClearance(); err != nil {
		t.Fatalf("unexpected clearance error: %v", err)
	}

	snap, err := f.mgr.OperatorInput(ctx, ActionRetry)
	if err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}
	if snap.ArmCleared {
		t.Fatal("expected clearance to reset on rescan")
	}
	if _, err := f.mgr.OperatorInput(ctx, ActionNext); !errors.Is(err, ErrClearanceRequired) {
		t.Fatalf("expected clearance to be required again, got %v", err)
	}
}

func TestFlagEscalatesThenAckLoopsToScan(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.mgr.Start(ctx, "tray-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := f.mgr.OperatorInput(ctx, ActionFlag)
	if err != nil {
		t.Fatalf("unexpected flag error: %v", err)
	}
	if snap.State != StateFlaggedEscalation {
		t.Fatalf("expected FLAGGED_ESCALATION, got %s", snap.State)
	}

	// The flagged verdict is recorded for audit.
	found := false
	for _, e := range f.sink.entries {
		if e.OperatorAction == "flag" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a flag audit entry, got %+v", f.sink.entries)
	}

	// Other inputs are rejected until acknowledgment.
	if _, err := f.mgr.OperatorInput(ctx, ActionNext); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	snap, err = f.mgr.OperatorInput(ctx, ActionAck)
	if err != nil {
		t.Fatalf("unexpected ack error: %v", err)
	}
	if snap.State != StateAwaitingConfirmation {
		t.Fatalf("expected rescan after ack, got %s", snap.State)
	}
}

func TestAcquisitionFailuresEscalateToError(t *testing.T) {
	f := newFixture([]vision.Candidate{goodCandidate()})
	f.rig.captureErrs = []error{vision.ErrAcquisition, vision.ErrAcquisition, vision.ErrAcquisition}
	ctx := context.Background()

	snap, err := f.mgr.Start(ctx, "tray-a")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, vision.ErrAcquisition) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	if snap.State != StateError {
		t.Fatalf("expected ERROR state, got %s", snap.State)
	}
	if snap.Verdict != nil {
		t.Fatalf("expected no verdict on failed scan, got %+v", snap.Verdict)
	}
	if len(f.sink.entries) != 0 {
		t.Fatalf("expected no log entries, got %d", len(f.sink.entries))
	}
	if f.rig.captures != 3 {
		t.Fatalf("expected 3 capture attempts, got %d", f.rig.captures)
	}

	// Operator input is rejected in ERROR; only reset recovers.
	if _, err := f.mgr.OperatorInput(ctx, ActionRetry); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput in ERROR state, got %v", err)
	}
	snap, err = f.mgr.Reset()
	if err != nil {
		t.Fatalf("unexpected reset error: %v", err)
	}
	if snap.State != StateIdle {
		t.Fatalf("expected IDLE after reset, got %s", snap.State)
	}
}

func TestTransientAcquisitionFailureRetriesWithinLimit(t *testing.T) {
	f := newFixture([]vision.Candidate{goodCandidate()})
	f.rig.captureErrs = []error{vision.ErrAcquisition, nil}
	ctx := context.Background()

	snap, err := f.mgr.Start(ctx, "tray-a")
	if err != nil {
		t.Fatalf("expected recovery within retry limit, got %v", err)
	}
	if snap.State != StateAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", snap.State)
	}
	if f.rig.captures != 2 {
		t.Fatalf("expected 2 captures, got %d", f.rig.captures)
	}
}

func TestBlurryFrameCountsAsFailedAcquisition(t *testing.T) {
	f := newFixture([]vision.Candidate{goodCandidate()})
	f.rig.focusScores = []float64{2.0, 20.0} // first frame out of focus
	ctx := context.Background()

	snap, err := f.mgr.Start(ctx, "tray-a")
	if err != nil {
		t.Fatalf("expected recapture to succeed, got %v", err)
	}
	if snap.State != StateAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", snap.State)
	}
	if f.rig.captures != 2 {
		t.Fatalf("expected a recapture after the blurry frame, got %d captures", f.rig.captures)
	}
}

func TestResetRejectedOutsideErrorState(t *testing.T) {
	f := newFixture(nil)

	if _, err := f.mgr.Reset(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClearanceRejectedWithoutPendingConfirmation(t *testing.T) {
	f := newFixture(nil)

	if _, err := f.mgr.ConfirmArmClearance(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMetricsSummaryComputesConfirmRate(t *testing.T) {
	f := newFixture(nil)
	f.sink.aggregation = &repository.MetricsAggregation{
		TotalCount:        4,
		ConfirmedCount:    3,
		AverageConfidence: 0.82,
	}

	summary, err := f.mgr.MetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalScans != 4 || summary.ConfirmedScans != 3 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.ConfirmRate != 0.75 {
		t.Fatalf("unexpected confirm rate: %f", summary.ConfirmRate)
	}
}

func TestParseAction(t *testing.T) {
	if _, err := ParseAction("next"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseAction("launch"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown action, got %v", err)
	}
}
