package recordio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
)

func rawPayload(magic uint32, rocBytes []byte) []byte {
	buf := make([]byte, 32+len(rocBytes))
	binary.BigEndian.PutUint32(buf[7*4:7*4+4], magic)
	copy(buf[32:], rocBytes)
	return buf
}

func TestEncodeSingleStreamHappyPath(t *testing.T) {
	roc := make([]byte, 16)
	for i := range roc {
		roc[i] = 0xAA
	}
	ts := frame.TimeSlice{
		Timestamp:   0x10,
		FrameNumber: 7,
		DataID:      0x2A,
		Payload:     rawPayload(magicWire, roc),
	}
	f := frame.NewAggregatedFrame(ts, time.Now())

	res, err := Encode(f, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.BuiltClean {
		t.Errorf("expected BuiltClean=true")
	}

	buf := res.Buffer
	if binary.BigEndian.Uint32(buf[7*4:7*4+4]) != magicWire {
		t.Errorf("magic preservation failed")
	}

	status := byte(0x01)
	aggHeaderWord := binary.BigEndian.Uint32(buf[(14+1)*4 : (14+1)*4+4])
	wantAggHeader := uint32(0xFF60<<16) | uint32(0x10<<8) | uint32(status)
	if aggHeaderWord != wantAggHeader {
		t.Errorf("agg bank header = %#x, want %#x", aggHeaderWord, wantAggHeader)
	}

	aisHeaderIdx := 14 + 2 + 2 + 4
	aisEntry := binary.BigEndian.Uint32(buf[(aisHeaderIdx+1)*4 : (aisHeaderIdx+1)*4+4])
	if aisEntry != 0x002A0000 {
		t.Errorf("AIS entry = %#x, want 0x002A0000", aisEntry)
	}

	recordLength := binary.BigEndian.Uint32(buf[0:4])
	if int(recordLength)*4 != len(buf) {
		t.Errorf("recordLength*4 = %d, len(buf) = %d", recordLength*4, len(buf))
	}

	for _, w := range []int{1, 6, 9, 10, 11, 12, 13} {
		if binary.BigEndian.Uint32(buf[w*4:w*4+4]) != 0 {
			t.Errorf("header word %d not zero", w)
		}
	}
	if w3 := binary.BigEndian.Uint32(buf[3*4 : 3*4+4]); w3 != 1 {
		t.Errorf("header word 3 = %d, want 1", w3)
	}
}

func TestEncodeTwoSliceAggregation(t *testing.T) {
	s1 := frame.TimeSlice{Timestamp: 0x1000, FrameNumber: 1, DataID: 1, Payload: rawPayload(magicWire, []byte{1, 2, 3, 4})}
	s2 := frame.TimeSlice{Timestamp: 0x1000, FrameNumber: 1, DataID: 2, Payload: rawPayload(magicWire, []byte{5, 6, 7, 8})}
	f := frame.NewAggregatedFrame(s1, time.Now())
	f.Append(s2)

	res, err := Encode(f, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.BuiltClean {
		t.Errorf("expected BuiltClean=true")
	}

	buf := res.Buffer
	status := buf[15*4+3] // low byte of aggregated bank header word
	if status != 0x02 {
		t.Errorf("SS = %#x, want 0x02", status)
	}

	tssIdx := 14 + 4
	tsLow := binary.BigEndian.Uint32(buf[(tssIdx+2)*4 : (tssIdx+2)*4+4])
	tsHigh := binary.BigEndian.Uint32(buf[(tssIdx+3)*4 : (tssIdx+3)*4+4])
	meanTs := uint64(tsHigh)<<32 | uint64(tsLow)
	if meanTs != 0x1000 {
		t.Errorf("mean timestamp = %#x, want 0x1000", meanTs)
	}
}

func TestEncodeTimestampSlop(t *testing.T) {
	s1 := frame.TimeSlice{Timestamp: 100, FrameNumber: 1, DataID: 1, Payload: rawPayload(magicWire, []byte{1, 2, 3, 4})}
	s2 := frame.TimeSlice{Timestamp: 200, FrameNumber: 1, DataID: 2, Payload: rawPayload(magicWire, []byte{5, 6, 7, 8})}
	f := frame.NewAggregatedFrame(s1, time.Now())
	f.Append(s2)

	res, err := Encode(f, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BuiltClean {
		t.Errorf("expected BuiltClean=false (slop exceeded)")
	}
	if !res.TimestampErr {
		t.Errorf("expected TimestampErr=true")
	}

	buf := res.Buffer
	statusByte := buf[15*4+3]
	if statusByte&0x80 == 0 {
		t.Errorf("expected error flag bit set in SS")
	}
	if statusByte&0x7F != 2 {
		t.Errorf("SS low bits = %d, want 2", statusByte&0x7F)
	}

	tssIdx := 14 + 4
	tsLow := binary.BigEndian.Uint32(buf[(tssIdx+2)*4 : (tssIdx+2)*4+4])
	tsHigh := binary.BigEndian.Uint32(buf[(tssIdx+3)*4 : (tssIdx+3)*4+4])
	meanTs := uint64(tsHigh)<<32 | uint64(tsLow)
	if meanTs != 150 {
		t.Errorf("mean timestamp = %d, want 150", meanTs)
	}
}

func TestEncodeNoValidSlices(t *testing.T) {
	s1 := frame.TimeSlice{Timestamp: 1, FrameNumber: 1, DataID: 1, Payload: rawPayload(0xBADC0DE, nil)}
	f := frame.NewAggregatedFrame(s1, time.Now())

	_, err := Encode(f, 100)
	if err != ErrNoValidSlices {
		t.Errorf("expected ErrNoValidSlices, got %v", err)
	}
}

func TestEncodeVerbatimPayloadPadding(t *testing.T) {
	roc := []byte{1, 2, 3, 4, 5} // 5 bytes -> pad to 8
	s1 := frame.TimeSlice{Timestamp: 1, FrameNumber: 1, DataID: 1, Payload: rawPayload(magicWire, roc)}
	f := frame.NewAggregatedFrame(s1, time.Now())

	res, err := Encode(f, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := res.Buffer
	if len(buf)%4 != 0 {
		t.Errorf("buffer length not a multiple of 4: %d", len(buf))
	}
	tail := buf[len(buf)-8:]
	if tail[0] != 1 || tail[1] != 2 || tail[2] != 3 || tail[3] != 4 || tail[4] != 5 {
		t.Errorf("verbatim payload not found at expected offset: %v", tail)
	}
	for _, b := range tail[5:] {
		if b != 0 {
			t.Errorf("expected zero padding, got %v", tail[5:])
		}
	}
}
