package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/example/tray-verify/internal/logging"
	"github.com/example/tray-verify/internal/vision"
	proto "github.com/example/tray-verify/proto"
)

// DialVisionRig returns a ready-to-use gRPC client for the vision rig sidecar.
func DialVisionRig(ctx context.Context, addr, stationID string, logger *zap.Logger) (vision.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_vision_rig", "", err)
		logger.Error("failed to dial vision rig", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	client := proto.NewVisionRigClient(conn)
	return &grpcVisionRig{client: client, stationID: stationID, logger: logger}, conn, nil
}

type grpcVisionRig struct {
	client    proto.VisionRigClient
	stationID string
	logger    *zap.Logger
}

func (g *grpcVisionRig) CaptureFrame(ctx context.Context) (*vision.Frame, error) {
	resp, err := g.client.CaptureFrame(ctx, &proto.CaptureRequest{StationId: g.stationID})
	if err != nil {
		g.logger.Error("capture frame call failed", zap.Error(err), zap.String("station_id", g.stationID))
		return nil, fmt.Errorf("%w: %v", vision.ErrAcquisition, err)
	}
	return &vision.Frame{
		ID:         resp.GetFrameId(),
		Width:      int(resp.GetWidth()),
		Height:     int(resp.GetHeight()),
		FocusScore: resp.GetFocusScore(),
	}, nil
}

func (g *grpcVisionRig) ExtractCandidates(ctx context.Context, frameID string, region vision.Region) ([]vision.Candidate, error) {
	resp, err := g.client.ExtractCandidates(ctx, &proto.ExtractRequest{
		FrameId: frameID,
		Region:  toProtoRegion(region),
	})
	if err != nil {
		g.logger.Error("extract candidates call failed", zap.Error(err), zap.String("frame_id", frameID))
		return nil, fmt.Errorf("%w: %v", vision.ErrAcquisition, err)
	}
	candidates := make([]vision.Candidate, 0, len(resp.GetCandidates()))
	for _, c := range resp.GetCandidates() {
		candidates = append(candidates, vision.Candidate{
			X:           c.GetX(),
			Y:           c.GetY(),
			Radius:      c.GetRadius(),
			Area:        c.GetArea(),
			Circularity: c.GetCircularity(),
		})
	}
	return candidates, nil
}

func (g *grpcVisionRig) MatchTemplate(ctx context.Context, frameID string, region vision.Region, logoRef string) (float64, error) {
	resp, err := g.client.MatchTemplate(ctx, &proto.MatchRequest{
		FrameId: frameID,
		Region:  toProtoRegion(region),
		LogoRef: logoRef,
	})
	if err != nil {
		g.logger.Error("match template call failed", zap.Error(err), zap.String("frame_id", frameID), zap.String("logo_ref", logoRef))
		return 0, fmt.Errorf("%w: %v", vision.ErrAcquisition, err)
	}
	return resp.GetScore(), nil
}

func toProtoRegion(r vision.Region) *proto.Region {
	return &proto.Region{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}
