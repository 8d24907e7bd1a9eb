package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"snapdiff/internal/storage"
)

// ServiceName is the fully qualified name of the verdict query service.
const ServiceName = "snapdiff.v1.Verdicts"

const (
	recentMethod = "/" + ServiceName + "/Recent"
	flakyMethod  = "/" + ServiceName + "/Flaky"
)

// VerdictsServer answers history queries. Requests and responses are
// structpb.Struct so the service needs no generated code.
type VerdictsServer interface {
	Recent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Flaky(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Verdicts service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VerdictsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recent", Handler: recentHandler},
		{MethodName: "Flaky", Handler: flakyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "snapdiff/v1/verdicts",
}

func recentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerdictsServer).Recent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recentMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerdictsServer).Recent(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func flakyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerdictsServer).Flaky(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: flakyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerdictsServer).Flaky(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// HistoryServer implements VerdictsServer over the verdict store.
type HistoryServer struct {
	store  *storage.Store
	log    *slog.Logger
	health *health.Server
}

func NewHistoryServer(store *storage.Store, log *slog.Logger) *HistoryServer {
	if log == nil {
		log = slog.Default()
	}
	return &HistoryServer{store: store, log: log, health: health.NewServer()}
}

// RegisterWithServer registers the verdict service and the standard
// health service with a gRPC server.
func (s *HistoryServer) RegisterWithServer(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&ServiceDesc, s)
	healthpb.RegisterHealthServer(grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Serve listens on addr until ctx is done.
func (s *HistoryServer) Serve(ctx context.Context, addr string) error {
	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	grpcServer := grpc.NewServer()
	s.RegisterWithServer(grpcServer)

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		grpcServer.GracefulStop()
	}()

	s.log.Info("gRPC server starting", "addr", addr)
	return grpcServer.Serve(listen)
}

// Recent takes {"identity": string, "limit": number} and returns
// {"verdicts": [...]}.
func (s *HistoryServer) Recent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.store == nil {
		return nil, status.Error(codes.Unavailable, "verdict store not configured")
	}
	limit, err := limitField(req)
	if err != nil {
		return nil, err
	}
	identity := req.GetFields()["identity"].GetStringValue()

	recs, err := s.store.RecentVerdicts(identity, limit)
	if err != nil {
		s.log.Error("recent verdicts query failed", "error", err)
		return nil, status.Errorf(codes.Internal, "query verdicts: %v", err)
	}
	items := make([]any, 0, len(recs))
	for _, r := range recs {
		items = append(items, map[string]any{
			"job_id":             r.JobID,
			"run_id":             r.RunID,
			"identity":           r.Identity,
			"verdict":            r.Verdict,
			"max_color_distance": r.MaxColorDistance,
			"diff_area":          r.DiffArea,
			"attempts":           r.Attempts,
			"stable":             r.Stable,
			"exhausted":          r.Exhausted,
			"current_path":       r.CurrentPath,
			"diff_path":          r.DiffPath,
			"error":              r.Error,
			"created_at":         r.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return structpb.NewStruct(map[string]any{"verdicts": items})
}

// Flaky takes {"limit": number} and returns {"identities": [...]}.
func (s *HistoryServer) Flaky(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.store == nil {
		return nil, status.Error(codes.Unavailable, "verdict store not configured")
	}
	limit, err := limitField(req)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.FlakyIdentities(limit)
	if err != nil {
		s.log.Error("flaky identities query failed", "error", err)
		return nil, status.Errorf(codes.Internal, "query flaky identities: %v", err)
	}
	items := make([]any, 0, len(recs))
	for _, r := range recs {
		items = append(items, map[string]any{
			"identity":    r.Identity,
			"runs":        r.Runs,
			"exhausted":   r.Exhausted,
			"differences": r.Differences,
			"identical":   r.Identical,
			"last_seen":   r.LastSeen.UTC().Format(time.RFC3339Nano),
		})
	}
	return structpb.NewStruct(map[string]any{"identities": items})
}

func limitField(req *structpb.Struct) (int, error) {
	v, ok := req.GetFields()["limit"]
	if !ok {
		return 50, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue < 0 {
		return 0, status.Error(codes.InvalidArgument, "limit must be a non-negative number")
	}
	return int(n.NumberValue), nil
}
