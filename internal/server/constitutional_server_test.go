package server

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/constitutional/internal/audit"
	"github.com/triage-ai/constitutional/internal/engine"
	"github.com/triage-ai/constitutional/internal/engine/detectors"
	"github.com/triage-ai/constitutional/internal/storage"
)

const ubuntuSample = "Ubuntu philosophy emphasizes community, sharing knowledge, and collective benefit for all people."

type testEnv struct {
	client *Client
	health healthpb.HealthClient
	trail  *audit.Logger
}

// testServer spins up an in-process gRPC server and returns connected clients.
func testServer(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	trail, err := audit.NewLogger(storage.NewMemorySink(), audit.Options{FlushInterval: time.Hour}, logger)
	if err != nil {
		t.Fatal(err)
	}
	set, err := detectors.NewSet(detectors.DefaultSetConfig())
	if err != nil {
		t.Fatal(err)
	}
	orch, err := engine.NewOrchestrator(set, engine.DefaultConfig(), logger, engine.WithAuditTrail(trail))
	if err != nil {
		t.Fatal(err)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(UnaryLoggingInterceptor(logger)))
	Register(grpcServer, NewConstitutionalServer(orch, logger))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go grpcServer.Serve(lis)

	conn, err := grpc.NewClient(
		lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		grpcServer.Stop()
		orch.Close(context.Background())
	})

	return &testEnv{
		client: NewClient(conn),
		health: healthpb.NewHealthClient(conn),
		trail:  trail,
	}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIntegration_ValidateCleanOutput(t *testing.T) {
	env := testServer(t)

	resp, err := env.client.Validate(context.Background(), mustStruct(t, map[string]any{
		"query":  "What is Ubuntu?",
		"output": ubuntuSample,
		"context": map[string]any{
			"user_id": "u-grpc",
			"tier":    "pro",
		},
	}))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	f := resp.GetFields()
	if !f["is_valid"].GetBoolValue() {
		t.Errorf("expected valid result, got %v", resp)
	}
	if f["validated_output"].GetStringValue() != ubuntuSample {
		t.Errorf("output = %q", f["validated_output"].GetStringValue())
	}
	if f["compliance_score"].GetNumberValue() < 70 {
		t.Errorf("score = %v", f["compliance_score"].GetNumberValue())
	}
	rc := f["metadata"].GetStructValue().GetFields()["context"].GetStructValue().GetFields()
	if rc["request_id"].GetStringValue() == "" {
		t.Error("expected a generated request_id in metadata context")
	}

	logs, err := env.trail.GetLogsForUser(context.Background(), "u-grpc")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Tier != "pro" {
		t.Errorf("audit logs = %+v", logs)
	}
}

func TestIntegration_ValidateRedactsPII(t *testing.T) {
	env := testServer(t)

	resp, err := env.client.Validate(context.Background(), mustStruct(t, map[string]any{
		"query":   "contact?",
		"output":  "Reach me at jane@corp.io or 555-123-4567.",
		"dry_run": true,
	}))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	out := resp.GetFields()["validated_output"].GetStringValue()
	if strings.Contains(out, "jane@corp.io") || !strings.Contains(out, "[REDACTED]") {
		t.Errorf("PII not redacted: %q", out)
	}
	if n := len(resp.GetFields()["violations"].GetListValue().GetValues()); n == 0 {
		t.Error("expected privacy violations")
	}

	logs, _ := env.trail.GetLogsForUser(context.Background(), "anonymous")
	if len(logs) != 0 {
		t.Errorf("dry run should not be logged, got %d", len(logs))
	}
}

func TestIntegration_ValidateMissingOutput(t *testing.T) {
	env := testServer(t)

	_, err := env.client.Validate(context.Background(), mustStruct(t, map[string]any{"query": "q"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}

	_, err = env.client.Validate(context.Background(), mustStruct(t, map[string]any{"output": 42}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for non-string output, got %v", err)
	}
}

func TestIntegration_GetMetrics(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.client.Validate(ctx, mustStruct(t, map[string]any{"output": ubuntuSample, "dry_run": true})); err != nil {
			t.Fatal(err)
		}
	}

	m, err := env.client.GetMetrics(ctx, mustStruct(t, map[string]any{"reset": true}))
	if err != nil {
		t.Fatalf("GetMetrics failed: %v", err)
	}
	if got := m.GetFields()["total_validations"].GetNumberValue(); got != 3 {
		t.Errorf("total_validations = %v, want 3", got)
	}

	m, err = env.client.GetMetrics(ctx, &structpb.Struct{})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.GetFields()["total_validations"].GetNumberValue(); got != 0 {
		t.Errorf("total_validations after reset = %v, want 0", got)
	}
}

func TestIntegration_Health(t *testing.T) {
	env := testServer(t)

	for _, svc := range []string{"", ServiceName} {
		resp, err := env.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: svc})
		if err != nil {
			t.Fatalf("health check %q: %v", svc, err)
		}
		if resp.Status != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("service %q status = %v", svc, resp.Status)
		}
	}
}

func TestStructRoundTrip(t *testing.T) {
	in := engine.RequestContext{UserID: "u", Tier: "free", RequestID: "r-1"}
	s, err := toStruct(in)
	if err != nil {
		t.Fatal(err)
	}
	var out engine.RequestContext
	if err := fromStruct(s, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
