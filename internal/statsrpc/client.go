package statsrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a hand-written stub for the Stats service, built directly on
// grpc.ClientConnInterface.Invoke rather than generated code.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetStats calls the aggregated-counters RPC.
func (c *Client) GetStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/e2sar.framebuilder.Stats/GetStats", new(emptypb.Empty), out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetShardStats calls the per-shard-counters RPC.
func (c *Client) GetShardStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/e2sar.framebuilder.Stats/GetShardStats", new(emptypb.Empty), out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
