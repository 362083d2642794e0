// Package statsrpc exposes the dispatcher's live counters over gRPC.
// There is no .proto for this system, so the service is wired directly
// against grpc.ServiceDesc using the pre-built well-known protobuf types
// emptypb.Empty and structpb.Struct as request/response messages; this
// needs no generated stub code at all.
package statsrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jlab-daq/e2sar-framebuilder/internal/builder"
	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
)

// StatsSource is the read-only dispatcher view this service renders.
type StatsSource interface {
	Running() bool
	Stats() frame.Counters
	ShardStats() []builder.Counters
}

// StatsServer implements the hand-wired e2sar.framebuilder.Stats service.
type StatsServer struct {
	source StatsSource
}

// NewStatsServer constructs a StatsServer over the given dispatcher view.
func NewStatsServer(source StatsSource) *StatsServer {
	return &StatsServer{source: source}
}

// GetStats returns the aggregated, process-wide counters as a
// structpb.Struct.
func (s *StatsServer) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	c := s.source.Stats()
	st, err := structpb.NewStruct(map[string]interface{}{
		"frames_built":     float64(c.FramesBuilt),
		"slices_seen":      float64(c.SlicesSeen),
		"encode_errors":    float64(c.EncodeErrors),
		"timestamp_errors": float64(c.TimestampErrors),
		"files_created":    float64(c.FilesCreated),
		"bytes_written":    float64(c.BytesWritten),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build stats struct: %v", err)
	}
	return st, nil
}

// GetShardStats returns one entry per shard as a structpb.Struct keyed
// by shard index.
func (s *StatsServer) GetShardStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	shards := s.source.ShardStats()
	fields := make(map[string]interface{}, len(shards))
	for i, c := range shards {
		fields[fmt.Sprintf("%d", i)] = map[string]interface{}{
			"frames_built":     float64(c.FramesBuilt),
			"slices_seen":      float64(c.SlicesSeen),
			"encode_errors":    float64(c.EncodeErrors),
			"timestamp_errors": float64(c.TimestampErrors),
			"bytes_written":    float64(c.BytesWritten),
			"files_created":    float64(c.FilesCreated),
		}
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build shard stats struct: %v", err)
	}
	return st, nil
}

func getStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*StatsServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/e2sar.framebuilder.Stats/GetStats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*StatsServer).GetStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getShardStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*StatsServer).GetShardStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/e2sar.framebuilder.Stats/GetShardStats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*StatsServer).GetShardStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// statsService is the handler interface ServiceDesc registers against;
// StatsServer implements it.
type statsService interface {
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetShardStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would emit for a two-method, no-streaming Stats service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "e2sar.framebuilder.Stats",
	HandlerType: (*statsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStats", Handler: getStatsHandler},
		{MethodName: "GetShardStats", Handler: getShardStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/statsrpc/stats.go",
}

// Register registers the Stats service and a standard health server
// (driven by the dispatcher's Running flag) onto grpcServer.
func Register(grpcServer *grpc.Server, source StatsSource) {
	grpcServer.RegisterService(&ServiceDesc, NewStatsServer(source))

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	setHealth(healthSrv, source)
}

func setHealth(healthSrv *health.Server, source StatsSource) {
	if source.Running() {
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	} else {
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
}
