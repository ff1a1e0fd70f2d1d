package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/constitutional/internal/engine"
)

// ConstitutionalServer implements ConstitutionalService on top of the
// orchestrator.
type ConstitutionalServer struct {
	engine *engine.Orchestrator
	logger *zap.Logger
}

// NewConstitutionalServer creates a new ConstitutionalServer.
func NewConstitutionalServer(eng *engine.Orchestrator, logger *zap.Logger) *ConstitutionalServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstitutionalServer{engine: eng, logger: logger}
}

// Register adds the service and a health server reporting it as serving.
func Register(s *grpc.Server, srv *ConstitutionalServer) *health.Server {
	s.RegisterService(&ServiceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// validateRequest mirrors the HTTP body of POST /v1/validate.
type validateRequest struct {
	Query   string                 `json:"query"`
	Output  *string                `json:"output"`
	Context *engine.RequestContext `json:"context,omitempty"`
	DryRun  bool                   `json:"dry_run,omitempty"`
}

// Validate implements ConstitutionalService.Validate.
func (s *ConstitutionalServer) Validate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	var req validateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if req.Output == nil {
		return nil, status.Error(codes.InvalidArgument, "output is required")
	}

	rc := req.Context
	if rc == nil {
		rc = &engine.RequestContext{}
	}
	if rc.RequestID == "" {
		rc.RequestID = uuid.New().String()
	}

	result := s.engine.ValidateOutput(ctx, req.Query, *req.Output, rc)

	if !req.DryRun {
		userID := rc.UserID
		if userID == "" {
			userID = "anonymous"
		}
		s.engine.LogValidation(result, userID, req.Query, *req.Output, rc.Tier, time.Since(start))
	}

	out, err := toStruct(result)
	if err != nil {
		s.logger.Error("failed to encode validation result", zap.String("request_id", rc.RequestID), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return out, nil
}

// GetMetrics implements ConstitutionalService.GetMetrics. The request body
// may set "reset": true to zero the counters after reading them.
func (s *ConstitutionalServer) GetMetrics(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	m := s.engine.GetComplianceMetrics()
	if in.GetFields()["reset"].GetBoolValue() {
		s.engine.ResetMetrics()
	}
	out, err := toStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode metrics")
	}
	return out, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	raw, err := in.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// toStruct encodes v into a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("toStruct: %w", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("toStruct: %w", err)
	}
	return out, nil
}

// UnaryLoggingInterceptor logs each RPC with its status code and latency.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
