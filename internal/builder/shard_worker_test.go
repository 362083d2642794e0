package builder

import (
	"sync"
	"testing"
	"time"

	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
	"github.com/jlab-daq/e2sar-framebuilder/internal/sink"
)

type memSink struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (m *memSink) Write(buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), buf...)
	m.writes = append(m.writes, cp)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func rawPayload(rocBytes []byte) []byte {
	buf := make([]byte, 32+len(rocBytes))
	buf[28] = 0xC0
	buf[29] = 0xDA
	buf[30] = 0x01
	buf[31] = 0x00
	copy(buf[32:], rocBytes)
	return buf
}

func TestShardTimeoutEmission(t *testing.T) {
	ms := &memSink{}
	s := NewShard(0, []sink.OutputSink{ms}, 3, 200*time.Millisecond, 100)
	go s.Run()

	s.Submit(frame.TimeSlice{Timestamp: 0x20, DataID: 1, Payload: rawPayload([]byte{1, 2, 3, 4})})
	s.Submit(frame.TimeSlice{Timestamp: 0x20, DataID: 2, Payload: rawPayload([]byte{5, 6, 7, 8})})

	deadline := time.After(2 * time.Second)
	for ms.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for timeout-driven emission")
		case <-time.After(20 * time.Millisecond):
		}
	}

	s.Stop()
	<-s.Done()

	if ms.count() != 1 {
		t.Fatalf("expected exactly 1 emitted record, got %d", ms.count())
	}
	snap := s.Snapshot()
	if snap.FramesBuilt != 1 {
		t.Errorf("expected FramesBuilt=1, got %d", snap.FramesBuilt)
	}
	if snap.SlicesSeen != 2 {
		t.Errorf("expected SlicesSeen=2, got %d", snap.SlicesSeen)
	}
}

func TestShardStopIsPrompt(t *testing.T) {
	ms := &memSink{}
	s := NewShard(0, []sink.OutputSink{ms}, 100, 5*time.Second, 100)
	go s.Run()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("shard did not stop within 1s")
	}
}
