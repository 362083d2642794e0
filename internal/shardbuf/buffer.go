// Package shardbuf implements the per-shard timestamp-keyed frame buffer:
// a map guarded by one mutex and one condition variable, shared between
// an arbitrary number of producer goroutines and exactly one builder
// worker.
package shardbuf

import (
	"sync"
	"time"

	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
)

// Buffer is the per-shard mapping from timestamp to AggregatedFrame. It
// is safe for concurrent Insert from any number of goroutines; DrainReady is
// meant to be called by exactly one builder worker.
type Buffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	frames  map[uint64]*frame.AggregatedFrame
	running bool
}

// New creates a buffer in the running state.
func New() *Buffer {
	b := &Buffer{
		frames:  make(map[uint64]*frame.AggregatedFrame),
		running: true,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Insert adds a slice to the frame for its timestamp, creating the frame
// entry if this is the first slice seen for that timestamp. It signals
// the condition variable so a waiting worker wakes to reconsider the
// buffer.
func (b *Buffer) Insert(s frame.TimeSlice, now time.Time) {
	b.mu.Lock()
	f, ok := b.frames[s.Timestamp]
	if !ok {
		f = frame.NewAggregatedFrame(s, now)
		b.frames[s.Timestamp] = f
	} else {
		f.Append(s)
	}
	b.cond.Signal()
	b.mu.Unlock()
}

// WaitReady blocks until either the map is non-empty or the buffer has
// been stopped, waking at least every timeout via the condition
// variable's periodic broadcaster. It returns false if the buffer was
// stopped while waiting.
func (b *Buffer) WaitReady(timeout time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.frames) == 0 && b.running {
		b.waitTimeout(timeout)
	}
	return b.running
}

// waitTimeout blocks on the condition variable for at most timeout. The
// stdlib sync.Cond has no native timed wait, so a helper goroutine
// broadcasts after the timeout elapses; this mirrors the teacher's
// ticker-driven wakeups but scoped to a single wait call.
func (b *Buffer) waitTimeout(timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()
	b.cond.Wait()
}

// Running reports whether the buffer has not yet been stopped.
func (b *Buffer) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Stop marks the buffer stopped and wakes any waiter. Callers
// (Dispatcher.Shutdown) are expected to call this repeatedly with a
// short stagger to guard against a missed wakeup racing a fresh Wait.
func (b *Buffer) Stop() {
	b.mu.Lock()
	b.running = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// DrainReady removes and returns every frame that is ready for emission
// under the lock, leaving not-ready frames untouched. Call this only
// from the owning shard's single worker.
func (b *Buffer) DrainReady(expectedStreams int, frameTimeout time.Duration, now time.Time) []*frame.AggregatedFrame {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ready []*frame.AggregatedFrame
	for ts, f := range b.frames {
		if f.Ready(expectedStreams, frameTimeout, now) {
			ready = append(ready, f)
			delete(b.frames, ts)
		}
	}
	return ready
}

// Len reports the current number of in-flight frames; used for
// diagnostics (the HTTP/gRPC stats surfaces), not for control flow.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}
