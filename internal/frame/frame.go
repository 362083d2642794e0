// Package frame holds the data model shared by the shard buffer, the
// builder workers and the record encoder: time slices and the aggregated
// frames they are collected into.
package frame

import "time"

// TimeSlice is one detector source's fragment for one timestamp. It is
// immutable after construction; submit is required to copy the producer's
// bytes before building one of these.
type TimeSlice struct {
	Timestamp    uint64
	FrameNumber  uint32
	DataID       uint16
	StreamStatus uint16
	Payload      []byte
}

// AggregatedFrame is the set of time slices sharing one timestamp, routed
// to one shard. It lives inside exactly one ShardBuffer until removed
// under that shard's lock.
type AggregatedFrame struct {
	Timestamp   uint64
	FrameNumber uint32
	Slices      []TimeSlice
	ArrivalTime time.Time
}

// NewAggregatedFrame seeds a frame atomically with its first slice, per
// the invariant that a frame is never observable in the buffer without at
// least one slice.
func NewAggregatedFrame(first TimeSlice, now time.Time) *AggregatedFrame {
	return &AggregatedFrame{
		Timestamp:   first.Timestamp,
		FrameNumber: first.FrameNumber,
		Slices:      []TimeSlice{first},
		ArrivalTime: now,
	}
}

// Append adds another slice to the frame, preserving submission order.
func (f *AggregatedFrame) Append(s TimeSlice) {
	f.Slices = append(f.Slices, s)
}

// Ready reports whether the frame is eligible for emission: it has
// reached the expected stream count, or it has aged past frameTimeout.
func (f *AggregatedFrame) Ready(expectedStreams int, frameTimeout time.Duration, now time.Time) bool {
	if len(f.Slices) == 0 {
		return false
	}
	if len(f.Slices) >= expectedStreams {
		return true
	}
	return now.Sub(f.ArrivalTime) > frameTimeout
}

// Counters are the Dispatcher's process-global, monotonically
// nondecreasing aggregates. They are read-only to callers once Shutdown
// returns.
type Counters struct {
	FramesBuilt     uint64
	SlicesSeen      uint64
	EncodeErrors    uint64
	TimestampErrors uint64
	FilesCreated    uint64
	BytesWritten    uint64
}
