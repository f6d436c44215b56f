// Package proto holds the wire types for the VisionRig gRPC service.
// The messages mirror trayvision.proto and are maintained by hand; the
// protobuf struct tags drive encoding through the protoimpl legacy path.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/runtime/protoimpl"
)

type CaptureRequest struct {
	StationId string `protobuf:"bytes,1,opt,name=station_id,json=stationId,proto3" json:"station_id,omitempty"`
}

func (x *CaptureRequest) Reset()         { *x = CaptureRequest{} }
func (x *CaptureRequest) String() string { return protoimpl.X.MessageStringOf(x) }
func (*CaptureRequest) ProtoMessage()    {}
func (x *CaptureRequest) ProtoReflect() protoreflect.Message {
	return protoimpl.X.MessageOf(x)
}

func (x *CaptureRequest) GetStationId() string {
	if x != nil {
		return x.StationId
	}
	return ""
}

type CaptureReply struct {
	FrameId    string  `protobuf:"bytes,1,opt,name=frame_id,json=frameId,proto3" json:"frame_id,omitempty"`
	Width      int32   `protobuf:"varint,2,opt,name=width,proto3" json:"width,omitempty"`
	Height     int32   `protobuf:"varint,3,opt,name=height,proto3" json:"height,omitempty"`
	FocusScore float64 `protobuf:"fixed64,4,opt,name=focus_score,json=focusScore,proto3" json:"focus_score,omitempty"`
}

func (x *CaptureReply) Reset()         { *x = CaptureReply{} }
func (x *CaptureReply) String() string { return protoimpl.X.MessageStringOf(x) }
func (*CaptureReply) ProtoMessage()    {}
func (x *CaptureReply) ProtoReflect() protoreflect.Message {
	return protoimpl.X.MessageOf(x)
}

func (x *CaptureReply) GetFrameId() string {
	if x != nil {
		return x.FrameId
	}
	return ""
}

func (x *CaptureReply) GetWidth() int32 {
	if x != nil {
		return x.Width
	}
	return 0
}

func (x *CaptureReply) GetHeight() int32 {
	if x != nil {
		return x.Height
	}
	return 0
}

func (x *CaptureReply) GetFocusScore() float64 {
	if x != nil {
		return x.FocusScore
	}
	return 0
}

type Region struct {
	X      float64 `protobuf:"fixed64,1,opt,name=x,proto3" json:"x,omitempty"`
	Y      float64 `protobuf:"fixed64,2,opt,name=y,proto3" json:"y,omitempty"`
	Width  float64 `protobuf:"fixed64,3,opt,name=width,proto3" json:"width,omitempty"`
	Height float64 `protobuf:"fixed64,4,opt,name=height,proto3" json:"height,omitempty"`
}

func (x *Region) Reset()         { *x = Region{} }
func (x *Region) String() string { return protoimpl.X.MessageStringOf(x) }
func (*Region) ProtoMessage()    {}
func (x *Region) ProtoReflect() protoreflect.Message {
	return protoimpl.X.MessageOf(x)
}

type ExtractRequest struct {
	FrameId string  `protobuf:"bytes,1,opt,name=frame_id,json=frameId,proto3" json:"frame_id,omitempty"`
	Region  *Region `protobuf:"bytes,2,opt,name=region,proto3" json:"region,omitempty"`
}

func (x *ExtractRequest) Reset()         { *x = ExtractRequest{} }
func (x *ExtractRequest) String() string { return protoimpl.X.MessageStringOf(x) }
func (*ExtractRequest) ProtoMessage()    {}
func (x *ExtractRequest) ProtoReflect() protoreflect.Message {
	return protoimpl.X.MessageOf(x)
}

func (x *ExtractRequest) GetFrameId() string {
	if x != nil {
		return x.FrameId
	}
	return ""
}

func (x *ExtractRequest) GetRegion() *Region {
	if x != nil {
		return x.Region
	}
	return nil
}

type Candidate struct {
	X           float64 `protobuf:"fixed64,1,opt,name=x,proto3" json:"x,omitempty"`
	Y           float64 `protobuf:"fixed64,2,opt,name=y,proto3" json:"y,omitempty"`
	Radius      float64 `protobuf:"fixed64,3,opt,name=radius,proto3" json:"radius,omitempty"`
	Area        float64 `protobuf:"fixed64,4,opt,name=area,proto3" json:"area,omitempty"`
	Circularity float64 `protobuf:"fixed64,5,opt,name=circularity,proto3" json:"circularity,omitempty"`
}

func (x *Candidate) Reset()         { *x = Candidate{} }
func (x *Candidate) String() string { return protoimpl.X.MessageStringOf(x) }
func (*Candidate) ProtoMessage()    {}
func (x *Candidate) ProtoReflect() protoreflect.Message {
	return protoimpl.X.MessageOf(x)
}

func (x *Candidate) GetX() float64 {
	if x != nil {
		return x.X
	}
	return 0
}

func (x *Candidate) GetY() float64 {
	if x != nil {
		return x.Y
	}
	return 0
}

func (x *Candidate) GetRadius() float64 {
	if x != nil {
		return x.Radius
	}
	return 0
}

func (x *Candidate) GetArea() float64 {
	if x != nil {
		return x.Area
	}
	return 0
}

func (x *Candidate) GetCircularity() float64 {
	if x != nil {
		return x.Circularity
	}
	return 0
}

type ExtractReply struct {
	Candidates []*Candidate `protobuf:"bytes,1,rep,name=candidates,proto3" json:"candidates,omitempty"`
}

func (x *ExtractReply) Reset()         { *x = ExtractReply{} }
func (x *ExtractReply) String() string { return protoimpl.X.MessageStringOf(x) }
func (*ExtractReply) ProtoMessage()    {}
func (x *ExtractReply) ProtoReflect() protoreflect.Message {
	return protoimpl.X.MessageOf(x)
}

func (x *ExtractReply) GetCandidates() []*Candidate {
	if x != nil {
		return x.Candidates
	}
	return nil
}

type MatchRequest struct {
	FrameId string  `protobuf:"bytes,1,opt,name=frame_id,json=frameId,proto3" json:"frame_id,omitempty"`
	Region  *Region `protobuf:"bytes,2,opt,name=region,proto3" json:"region,omitempty"`
	LogoRef string  `protobuf:"bytes,3,opt,name=logo_ref,json=logoRef,proto3" json:"logo_ref,omitempty"`
}

func (x *MatchRequest) Reset()         { *x = MatchRequest{} }
func (x *MatchRequest) String() string { return protoimpl.X.MessageStringOf(x) }
func (*MatchRequest) ProtoMessage()    {}
func (x *MatchRequest) ProtoReflect() protoreflect.Message {
	return protoimpl.X.MessageOf(x)
}

type MatchReply struct {
	Score float64 `protobuf:"fixed64,1,opt,name=score,proto3" json:"score,omitempty"`
}

func (x *MatchReply) Reset()         { *x = MatchReply{} }
func (x *MatchReply) String() string { return protoimpl.X.MessageStringOf(x) }
func (*MatchReply) ProtoMessage()    {}
func (x *MatchReply) ProtoReflect() protoreflect.Message {
	return protoimpl.X.MessageOf(x)
}

func (x *MatchReply) GetScore() float64 {
	if x != nil {
		return x.Score
	}
	return 0
}

const (
	VisionRig_CaptureFrame_FullMethodName      = "/trayvision.v1.VisionRig/CaptureFrame"
	VisionRig_ExtractCandidates_FullMethodName = "/trayvision.v1.VisionRig/ExtractCandidates"
	VisionRig_MatchTemplate_FullMethodName     = "/trayvision.v1.VisionRig/MatchTemplate"
)

// VisionRigClient is the client API for the VisionRig service.
type VisionRigClient interface {
	CaptureFrame(ctx context.Context, in *CaptureRequest, opts ...grpc.CallOption) (*CaptureReply, error)
	ExtractCandidates(ctx context.Context, in *ExtractRequest, opts ...grpc.CallOption) (*ExtractReply, error)
	MatchTemplate(ctx context.Context, in *MatchRequest, opts ...grpc.CallOption) (*MatchReply, error)
}

type visionRigClient struct {
	cc grpc.ClientConnInterface
}

func NewVisionRigClient(cc grpc.ClientConnInterface) VisionRigClient {
	return &visionRigClient{cc}
}

func (c *visionRigClient) CaptureFrame(ctx context.Context, in *CaptureRequest, opts ...grpc.CallOption) (*CaptureReply, error) {
	out := new(CaptureReply)
	if err := c.cc.Invoke(ctx, VisionRig_CaptureFrame_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *visionRigClient) ExtractCandidates(ctx context.Context, in *ExtractRequest, opts ...grpc.CallOption) (*ExtractReply, error) {
	out := new(ExtractReply)
	if err := c.cc.Invoke(ctx, VisionRig_ExtractCandidates_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *visionRigClient) MatchTemplate(ctx context.Context, in *MatchRequest, opts ...grpc.CallOption) (*MatchReply, error) {
	out := new(MatchReply)
	if err := c.cc.Invoke(ctx, VisionRig_MatchTemplate_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
