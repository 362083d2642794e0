package shardbuf

import (
	"testing"
	"time"

	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
)

func TestInsertAndDrainReady(t *testing.T) {
	b := New()
	now := time.Now()

	b.Insert(frame.TimeSlice{Timestamp: 1, DataID: 1}, now)
	b.Insert(frame.TimeSlice{Timestamp: 1, DataID: 2}, now)
	b.Insert(frame.TimeSlice{Timestamp: 2, DataID: 1}, now)

	if b.Len() != 2 {
		t.Fatalf("expected 2 in-flight frames, got %d", b.Len())
	}

	ready := b.DrainReady(2, time.Second, now)
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready frame (ts=1 reached expectedStreams), got %d", len(ready))
	}
	if ready[0].Timestamp != 1 || len(ready[0].Slices) != 2 {
		t.Errorf("unexpected ready frame: %+v", ready[0])
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 remaining frame, got %d", b.Len())
	}
}

func TestDrainReadyByTimeout(t *testing.T) {
	b := New()
	past := time.Now().Add(-500 * time.Millisecond)
	b.Insert(frame.TimeSlice{Timestamp: 9, DataID: 1}, past)

	ready := b.DrainReady(3, 100*time.Millisecond, time.Now())
	if len(ready) != 1 {
		t.Fatalf("expected frame to be ready via timeout, got %d ready", len(ready))
	}
}

func TestWaitReadyWakesOnInsert(t *testing.T) {
	b := New()
	done := make(chan bool, 1)
	go func() {
		done <- b.WaitReady(time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Insert(frame.TimeSlice{Timestamp: 1}, time.Now())

	select {
	case ok := <-done:
		if !ok {
			t.Errorf("expected WaitReady to return true (still running)")
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitReady did not wake on insert")
	}
}

func TestWaitReadyWakesOnStop(t *testing.T) {
	b := New()
	done := make(chan bool, 1)
	go func() {
		done <- b.WaitReady(5 * time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Stop()

	select {
	case ok := <-done:
		if ok {
			t.Errorf("expected WaitReady to return false after Stop")
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitReady did not wake on Stop")
	}
}
