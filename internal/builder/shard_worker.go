// Package builder implements the per-shard worker that drains ready
// frames from a shardbuf.Buffer, encodes them via recordio, and publishes
// the result to one or more sinks.
package builder

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
	"github.com/jlab-daq/e2sar-framebuilder/internal/recordio"
	"github.com/jlab-daq/e2sar-framebuilder/internal/shardbuf"
	"github.com/jlab-daq/e2sar-framebuilder/internal/sink"
)

// Counters are the per-shard counters, updated with sync/atomic
// (SlicesSeen by producers in Submit, the rest by the shard's worker).
// The Dispatcher sums them live in Stats and into its own totals at
// Shutdown.
type Counters struct {
	FramesBuilt     uint64
	SlicesSeen      uint64
	EncodeErrors    uint64
	TimestampErrors uint64
	BytesWritten    uint64
	FilesCreated    uint64
}

// Shard owns one ShardBuffer and drives it against a set of sinks,
// reimplementing the IDLE/SCANNING/PUBLISHING/STOPPING loop.
type Shard struct {
	index           int
	buf             *shardbuf.Buffer
	sinks           []sink.OutputSink
	expectedStreams int
	frameTimeout    time.Duration
	timestampSlop   uint64

	running int32 // atomic; 1 while the worker should keep looping
	done    chan struct{}

	counters Counters

	// onPublish, if set, is called after every publish attempt (built or
	// dropped) so an audit trail can be kept without coupling this
	// package to a specific sink implementation.
	onPublish func(frameTs uint64, sliceCount int, builtClean, timestampErr bool, byteCount int)
}

// NewShard constructs a shard worker. sinks may contain one (ring-only or
// file-only) or two (dual-output) entries; every configured sink is
// written on every publish.
func NewShard(index int, sinks []sink.OutputSink, expectedStreams int, frameTimeout time.Duration, timestampSlop uint64) *Shard {
	return &Shard{
		index:           index,
		buf:             shardbuf.New(),
		sinks:           sinks,
		expectedStreams: expectedStreams,
		frameTimeout:    frameTimeout,
		timestampSlop:   timestampSlop,
		running:         1,
		done:            make(chan struct{}),
	}
}

// Submit inserts a slice into this shard's buffer. Called concurrently by
// any number of producers.
func (s *Shard) Submit(ts frame.TimeSlice) {
	atomic.AddUint64(&s.counters.SlicesSeen, 1)
	s.buf.Insert(ts, time.Now())
}

// Len reports the number of in-flight frames, for diagnostics only.
func (s *Shard) Len() int { return s.buf.Len() }

// Snapshot returns a copy of this shard's counters. Safe to call only
// after Run has returned (single-writer-then-single-reader discipline),
// or for best-effort live sampling via the atomics below. FilesCreated is
// queried directly from any sink that tracks it (FileSink), since the
// sink itself is the authority on how many files it has rolled.
func (s *Shard) Snapshot() Counters {
	var filesCreated uint64
	for _, snk := range s.sinks {
		if fc, ok := snk.(sink.FileCounter); ok {
			filesCreated += fc.FilesCreated()
		}
	}
	return Counters{
		FramesBuilt:     atomic.LoadUint64(&s.counters.FramesBuilt),
		SlicesSeen:      atomic.LoadUint64(&s.counters.SlicesSeen),
		EncodeErrors:    atomic.LoadUint64(&s.counters.EncodeErrors),
		TimestampErrors: atomic.LoadUint64(&s.counters.TimestampErrors),
		BytesWritten:    atomic.LoadUint64(&s.counters.BytesWritten),
		FilesCreated:    filesCreated,
	}
}

// Stop signals the worker to exit at its next checkpoint and wakes any
// wait in progress.
func (s *Shard) Stop() {
	atomic.StoreInt32(&s.running, 0)
	s.buf.Stop()
}

// Done returns a channel that is closed once Run has returned.
func (s *Shard) Done() <-chan struct{} { return s.done }

// SetOnPublish installs the audit callback. Must be called before Run.
func (s *Shard) SetOnPublish(fn func(frameTs uint64, sliceCount int, builtClean, timestampErr bool, byteCount int)) {
	s.onPublish = fn
}

// Close closes every sink owned by this shard. Callers must only invoke
// this after Run has returned (i.e. after <-Done()), never while a
// worker might still be writing to a sink.
func (s *Shard) Close() {
	for _, snk := range s.sinks {
		if err := snk.Close(); err != nil {
			log.Printf("builder[%d]: error closing sink: %v", s.index, err)
		}
	}
}

// isRunning is checked at every blocking-step boundary per the spec's
// cooperative-cancellation contract.
func (s *Shard) isRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Run is the shard's long-lived loop: wait up to frameTimeout/2, scan for
// ready frames, release the lock across encode/publish, repeat.
func (s *Shard) Run() {
	defer close(s.done)

	waitTimeout := s.frameTimeout / 2
	if waitTimeout <= 0 {
		waitTimeout = time.Millisecond
	}

	for {
		if !s.buf.WaitReady(waitTimeout) {
			return
		}
		if !s.isRunning() {
			return
		}

		ready := s.buf.DrainReady(s.expectedStreams, s.frameTimeout, time.Now())
		for _, f := range ready {
			if !s.isRunning() {
				return
			}
			s.publish(f)
			if !s.isRunning() {
				return
			}
		}
	}
}

// publish encodes one frame and writes it to every configured sink,
// recovering all per-frame errors locally so the worker keeps running.
func (s *Shard) publish(f *frame.AggregatedFrame) {
	res, err := recordio.Encode(f, s.timestampSlop)
	if err != nil {
		atomic.AddUint64(&s.counters.EncodeErrors, 1)
		log.Printf("builder[%d]: encode failed for timestamp=%d: %v", s.index, f.Timestamp, err)
		if s.onPublish != nil {
			s.onPublish(f.Timestamp, len(f.Slices), false, false, 0)
		}
		return
	}
	if res.TimestampErr {
		atomic.AddUint64(&s.counters.TimestampErrors, 1)
	}

	published := false
	for _, snk := range s.sinks {
		if !s.isRunning() {
			return
		}
		if err := snk.Write(res.Buffer); err != nil {
			atomic.AddUint64(&s.counters.EncodeErrors, 1)
			log.Printf("builder[%d]: sink write failed for timestamp=%d: %v", s.index, f.Timestamp, err)
			continue
		}
		atomic.AddUint64(&s.counters.BytesWritten, uint64(len(res.Buffer)))
		published = true
	}

	if published {
		atomic.AddUint64(&s.counters.FramesBuilt, 1)
	}
	if s.onPublish != nil {
		s.onPublish(f.Timestamp, len(f.Slices), res.BuiltClean, res.TimestampErr, len(res.Buffer))
	}
}
