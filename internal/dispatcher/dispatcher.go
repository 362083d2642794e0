// Package dispatcher implements the Dispatcher / FrameBuilder facade: the
// public entrypoint that routes submitted slices to shards by timestamp,
// owns the shard pool, and drives cooperative shutdown.
package dispatcher

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/jlab-daq/e2sar-framebuilder/internal/builder"
	"github.com/jlab-daq/e2sar-framebuilder/internal/config"
	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
	"github.com/jlab-daq/e2sar-framebuilder/internal/sink"
)

// perWorkerShutdownBound is the maximum time Shutdown waits for any one
// shard worker before detaching it and moving on.
const perWorkerShutdownBound = 1 * time.Second

// AuditTrail is the narrow interface the dispatcher needs from the audit
// package, kept here so this package does not have to import a
// ClickHouse client to be testable.
type AuditTrail interface {
	Record(shard int, frameTs uint64, sliceCount int, builtClean, timestampErr bool, byteCount int)
}

// Dispatcher is the process-global facade: it owns the shard pool, the
// optional ring connection, and the aggregated, read-only-after-shutdown
// counters.
type Dispatcher struct {
	cfg config.Config

	shards []*builder.Shard
	ring   sink.RingConn
	audit  AuditTrail

	running int32 // atomic

	detached []int // indices of shards that failed to join within bound

	counters frame.Counters
}

// New validates the configuration and constructs (but does not start) a
// Dispatcher.
func New(cfg config.Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{cfg: cfg}, nil
}

// SetAuditTrail installs an optional audit sink. Must be called before
// Start.
func (d *Dispatcher) SetAuditTrail(a AuditTrail) {
	d.audit = a
}

// Start initializes the ring (if configured), the output directory (if
// configured), attaches N independent ring handles, and spawns N shard
// workers. On any per-shard failure it releases previously-acquired ring
// handles and leaves no worker running.
func (d *Dispatcher) Start(ring sink.RingConn) error {
	n := d.cfg.Shard.ShardCount
	attachments := make([]sink.RingAttachment, 0, n)

	if d.cfg.Ring.Enabled() {
		if ring == nil {
			return fmt.Errorf("ring_unavailable: ring enabled in config but no RingConn supplied")
		}
		if err := ring.Open(d.cfg.Ring.Path, d.cfg.Ring.Host, d.cfg.Ring.Port); err != nil {
			return fmt.Errorf("ring_unavailable: %w", err)
		}
		d.ring = ring
	}

	shards := make([]*builder.Shard, 0, n)
	cleanup := func() {
		for _, a := range attachments {
			a.Detach()
		}
		if d.ring != nil {
			d.ring.Close()
			d.ring = nil
		}
	}

	for i := 0; i < n; i++ {
		var sinks []sink.OutputSink

		if d.cfg.Ring.Enabled() {
			att, err := d.ring.Attach(i)
			if err != nil {
				cleanup()
				return fmt.Errorf("ring_unavailable: attaching shard %d: %w", i, err)
			}
			attachments = append(attachments, att)
			sinks = append(sinks, sink.NewRingSink(att, d.cfg.Ring.EventSize))
		}

		if d.cfg.File.Enabled() {
			fs, err := sink.NewFileSink(d.cfg.File.Dir, d.cfg.File.Prefix, i, d.cfg.File.MaxFileSize)
			if err != nil {
				cleanup()
				return err
			}
			sinks = append(sinks, fs)
		}

		shardWorker := builder.NewShard(
			i, sinks,
			d.cfg.Shard.ExpectedStreams,
			time.Duration(d.cfg.Shard.FrameTimeoutMs)*time.Millisecond,
			uint64(d.cfg.Shard.TimestampSlop),
		)
		if d.audit != nil {
			shardIdx := i
			shardWorker.SetOnPublish(func(frameTs uint64, sliceCount int, builtClean, timestampErr bool, byteCount int) {
				d.audit.Record(shardIdx, frameTs, sliceCount, builtClean, timestampErr, byteCount)
			})
		}
		shards = append(shards, shardWorker)
	}

	d.shards = shards
	atomic.StoreInt32(&d.running, 1)

	for _, s := range d.shards {
		go s.Run()
	}

	log.Printf("dispatcher: started %d shard workers", n)
	return nil
}

// Submit routes a validated slice to shard (timestamp mod N), copies the
// payload, and returns immediately without blocking on output.
func (d *Dispatcher) Submit(timestamp uint64, frameNumber uint32, dataID uint16, payload []byte) {
	n := uint64(len(d.shards))
	if n == 0 {
		return
	}
	h := timestamp % n

	cp := make([]byte, len(payload))
	copy(cp, payload)

	d.shards[h].Submit(frame.TimeSlice{
		Timestamp:   timestamp,
		FrameNumber: frameNumber,
		DataID:      dataID,
		Payload:     cp,
	})
}

// Running reports whether the dispatcher is accepting submissions.
func (d *Dispatcher) Running() bool {
	return atomic.LoadInt32(&d.running) == 1
}

// Shutdown sets running=false, signals every shard's condition variable
// (repeatedly, to guard against a missed wakeup racing a fresh wait),
// waits up to perWorkerShutdownBound per worker, detaching any that do
// not exit in time. It returns within at most N*1s.
func (d *Dispatcher) Shutdown() {
	atomic.StoreInt32(&d.running, 0)

	for _, s := range d.shards {
		s.Stop()
	}
	// A 5x notify with a short stagger guards against a worker that
	// observes running==false and re-enters its wait just as the single
	// broadcast above was delivered.
	for i := 0; i < 4; i++ {
		time.Sleep(50 * time.Millisecond)
		for _, s := range d.shards {
			s.Stop()
		}
	}

	d.detached = d.detached[:0]
	joined := make(map[int]bool, len(d.shards))
	for i, s := range d.shards {
		select {
		case <-s.Done():
			joined[i] = true
		case <-time.After(perWorkerShutdownBound):
			log.Printf("dispatcher: shard %d did not stop within %s, detaching", i, perWorkerShutdownBound)
			d.detached = append(d.detached, i)
		}
	}

	for i, s := range d.shards {
		snap := s.Snapshot()
		atomic.AddUint64(&d.counters.FramesBuilt, snap.FramesBuilt)
		atomic.AddUint64(&d.counters.SlicesSeen, snap.SlicesSeen)
		atomic.AddUint64(&d.counters.EncodeErrors, snap.EncodeErrors)
		atomic.AddUint64(&d.counters.TimestampErrors, snap.TimestampErrors)
		atomic.AddUint64(&d.counters.BytesWritten, snap.BytesWritten)
		atomic.AddUint64(&d.counters.FilesCreated, snap.FilesCreated)

		// A detached shard may still be mid-write to its sinks; closing
		// them here would race the orphaned goroutine. Only joined
		// shards are safe to close.
		if joined[i] {
			s.Close()
		}
	}

	if d.ring != nil {
		d.ring.Close()
	}
}

// Stats returns a live snapshot of per-shard counters, distinct from the
// post-shutdown aggregate: it sums whatever each shard has recorded so
// far without requiring the workers to have stopped.
func (d *Dispatcher) Stats() frame.Counters {
	var c frame.Counters
	for _, s := range d.shards {
		snap := s.Snapshot()
		c.FramesBuilt += snap.FramesBuilt
		c.SlicesSeen += snap.SlicesSeen
		c.EncodeErrors += snap.EncodeErrors
		c.TimestampErrors += snap.TimestampErrors
		c.BytesWritten += snap.BytesWritten
		c.FilesCreated += snap.FilesCreated
	}
	return c
}

// ShardStats reports per-shard live counters and in-flight depth, the
// concrete data the httpapi /shards endpoint surfaces.
func (d *Dispatcher) ShardStats() []builder.Counters {
	out := make([]builder.Counters, len(d.shards))
	for i, s := range d.shards {
		out[i] = s.Snapshot()
	}
	return out
}

// ShardCount returns the configured shard count N.
func (d *Dispatcher) ShardCount() int { return len(d.shards) }

// ShardDepth returns shard i's current in-flight frame count.
func (d *Dispatcher) ShardDepth(i int) int {
	if i < 0 || i >= len(d.shards) {
		return 0
	}
	return d.shards[i].Len()
}
