package statsrpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jlab-daq/e2sar-framebuilder/internal/builder"
	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
)

type fakeSource struct {
	running bool
	stats   frame.Counters
	shards  []builder.Counters
}

func (f *fakeSource) Running() bool                  { return f.running }
func (f *fakeSource) Stats() frame.Counters          { return f.stats }
func (f *fakeSource) ShardStats() []builder.Counters { return f.shards }

func dialTestServer(t *testing.T, source StatsSource) (*Client, func()) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	Register(grpcServer, source)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}

	return NewClient(conn), func() {
		conn.Close()
		grpcServer.Stop()
	}
}

func TestClientGetStats(t *testing.T) {
	source := &fakeSource{
		running: true,
		stats: frame.Counters{
			FramesBuilt:  42,
			SlicesSeen:   100,
			EncodeErrors: 1,
			FilesCreated: 3,
			BytesWritten: 4096,
		},
	}
	client, closeFn := dialTestServer(t, source)
	defer closeFn()

	st, err := client.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}

	fields := st.AsMap()
	if fields["frames_built"] != float64(42) {
		t.Errorf("frames_built = %v, want 42", fields["frames_built"])
	}
	if fields["files_created"] != float64(3) {
		t.Errorf("files_created = %v, want 3", fields["files_created"])
	}
}

func TestClientGetShardStats(t *testing.T) {
	source := &fakeSource{
		running: true,
		shards: []builder.Counters{
			{FramesBuilt: 1, SlicesSeen: 2, FilesCreated: 1},
			{FramesBuilt: 5, SlicesSeen: 9, FilesCreated: 2},
		},
	}
	client, closeFn := dialTestServer(t, source)
	defer closeFn()

	st, err := client.GetShardStats(context.Background())
	if err != nil {
		t.Fatalf("GetShardStats: %v", err)
	}

	fields := st.AsMap()
	shard0, ok := fields["0"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected shard 0 entry, got %v", fields["0"])
	}
	if shard0["frames_built"] != float64(1) {
		t.Errorf("shard 0 frames_built = %v, want 1", shard0["frames_built"])
	}
	shard1, ok := fields["1"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected shard 1 entry, got %v", fields["1"])
	}
	if shard1["files_created"] != float64(2) {
		t.Errorf("shard 1 files_created = %v, want 2", shard1["files_created"])
	}
}
