package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.perf.v1.PerfAnalysis"

const (
	analyzeRunMethod  = "/" + ServiceName + "/AnalyzeRun"
	healthCheckMethod = "/" + ServiceName + "/HealthCheck"
)

// PerfAnalysisServer is the server API for the PerfAnalysis service. Requests
// and responses travel as protobuf Structs carrying the JSON shapes of
// AnalysisRequest and AnalysisResponse.
type PerfAnalysisServer interface {
	AnalyzeRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HealthCheck(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterPerfAnalysisServer attaches srv to a gRPC registrar.
func RegisterPerfAnalysisServer(s grpc.ServiceRegistrar, srv PerfAnalysisServer) {
	s.RegisterService(&PerfAnalysisServiceDesc, srv)
}

// PerfAnalysisServiceDesc describes the PerfAnalysis service.
var PerfAnalysisServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PerfAnalysisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AnalyzeRun", Handler: analyzeRunHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/perf/v1/perf.proto",
}

func analyzeRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PerfAnalysisServer).AnalyzeRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeRunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PerfAnalysisServer).AnalyzeRun(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PerfAnalysisServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: healthCheckMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PerfAnalysisServer).HealthCheck(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// PerfAnalysisClient is the client API for the PerfAnalysis service.
type PerfAnalysisClient struct {
	cc grpc.ClientConnInterface
}

// NewPerfAnalysisClient wraps a client connection.
func NewPerfAnalysisClient(cc grpc.ClientConnInterface) *PerfAnalysisClient {
	return &PerfAnalysisClient{cc: cc}
}

// AnalyzeRun invokes PerfAnalysis.AnalyzeRun.
func (c *PerfAnalysisClient) AnalyzeRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeRunMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck invokes PerfAnalysis.HealthCheck.
func (c *PerfAnalysisClient) HealthCheck(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, healthCheckMethod, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
