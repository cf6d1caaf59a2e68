package api

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-perf/internal/config"
)

type echoService struct{}

func (echoService) AnalyzeRun(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := DecodeAnalyzeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return structpb.NewStruct(map[string]any{"run_id": req.RunID, "cached": false})
}

func (echoService) HealthCheck(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "SERVING"})
}

func startTestServer(t *testing.T) (*Server, *grpc.ClientConn) {
	t.Helper()
	srv, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0", GracefulTimeout: time.Second}, echoService{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go func() { _ = srv.Start() }()

	conn, err := grpc.NewClient(srv.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), srv.GracefulTimeout())
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, conn
}

func TestServerServesPerfAnalysis(t *testing.T) {
	_, conn := startTestServer(t)
	client := NewPerfAnalysisClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{"tenant_id": "t", "run_id": "run-7"})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	out, err := client.AnalyzeRun(ctx, req)
	if err != nil {
		t.Fatalf("AnalyzeRun: %v", err)
	}
	if got := out.GetFields()["run_id"].GetStringValue(); got != "run-7" {
		t.Fatalf("unexpected run id %q", got)
	}

	bad, _ := structpb.NewStruct(map[string]any{"tenant_id": "t"})
	if _, err := client.AnalyzeRun(ctx, bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	health, err := client.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if health.GetFields()["status"].GetStringValue() != "SERVING" {
		t.Fatalf("unexpected health payload: %v", health)
	}
}

func TestServerRegistersGRPCHealth(t *testing.T) {
	_, conn := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status %v", resp.GetStatus())
	}
}
