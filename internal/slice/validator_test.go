package slice

import (
	"encoding/binary"
	"testing"
)

func buildRawSlice(dataID uint16, frameNumber uint32, timestamp uint64, reversed bool) []byte {
	buf := make([]byte, 64)
	words := make([]uint32, 16)
	words[7] = magicWire
	words[9] = 0x10<<8 | uint32(dataID)
	words[13] = frameNumber
	words[14] = uint32(timestamp)
	words[15] = uint32(timestamp >> 32)

	for i, w := range words {
		if reversed {
			w = swap32(w)
		}
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], w)
	}
	return buf
}

func TestValidateHappyPath(t *testing.T) {
	buf := buildRawSlice(0x2A, 7, 0x10, false)
	v, err := Validate(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.WrongEndian {
		t.Errorf("expected WrongEndian=false")
	}
	if v.DataID != 0x2A || v.FrameNumber != 7 || v.Timestamp != 0x10 {
		t.Errorf("unexpected fields: %+v", v)
	}
}

func TestValidateReversedEndian(t *testing.T) {
	buf := buildRawSlice(3, 9, 0x1000, true)
	v, err := Validate(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.WrongEndian {
		t.Errorf("expected WrongEndian=true")
	}
	if v.DataID != 3 || v.FrameNumber != 9 || v.Timestamp != 0x1000 {
		t.Errorf("unexpected fields: %+v", v)
	}
}

func TestValidateTooSmall(t *testing.T) {
	_, err := Validate(make([]byte, 63))
	if err != ErrTooSmall {
		t.Errorf("expected ErrTooSmall, got %v", err)
	}
}

func TestValidateBadMagic(t *testing.T) {
	buf := buildRawSlice(1, 1, 1, false)
	binary.BigEndian.PutUint32(buf[7*4:7*4+4], 0xDEADBEEF)
	_, err := Validate(buf)
	if err != ErrBadMagic {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}
}

func TestValidateBadRocFormat(t *testing.T) {
	buf := buildRawSlice(1, 1, 1, false)
	binary.BigEndian.PutUint32(buf[9*4:9*4+4], 0x20<<8|1)
	_, err := Validate(buf)
	if err != ErrBadRocFormat {
		t.Errorf("expected ErrBadRocFormat, got %v", err)
	}
}
