// Package sink implements the per-shard OutputSink abstraction: a rolling
// file writer and a ring publisher, either or both of which may back a
// given shard.
package sink

import "fmt"

// OutputSink is the per-shard destination for an encoded record buffer.
// A shard may own more than one (ring and file simultaneously); the
// caller is responsible for invoking Write on each configured sink.
type OutputSink interface {
	Write(buf []byte) error
	Close() error
}

// FileCounter is implemented by sinks that roll across multiple files
// (currently only FileSink); callers use a type assertion against this
// interface to fold a sink's file count into the shard's aggregated
// counters without coupling the generic OutputSink interface to a
// file-specific concept.
type FileCounter interface {
	FilesCreated() uint64
}

// Error kinds reported by sinks, matching the propagation policy: all
// per-frame errors are recovered locally by the calling worker.
var (
	ErrFileIO             = fmt.Errorf("file_io")
	ErrRingEventTooLarge  = fmt.Errorf("ring_event_too_large")
	ErrRingRequestTimeout = fmt.Errorf("ring_request_timeout")
)
