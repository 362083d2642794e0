// Package recordio implements the stateless encoder that turns an
// AggregatedFrame into a record-format byte buffer: a 32-bit big-endian
// container with a 14-word header, an aggregated bank, a stream-info
// bank, a time-slice segment, an aggregation-info segment, and the raw
// per-slice ROC bank payloads.
package recordio

import (
	"encoding/binary"
	"fmt"

	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
)

const (
	magicWire    = 0xC0DA0100
	magicSwapped = 0x0001DAC0

	bitInfo = 6 | (1 << 9) | (1 << 14) | (1 << 31)

	rocPrefixBytes = 32
)

// ErrNoValidSlices is returned when every slice in a frame fails the
// slice-level sanity check and the frame cannot be emitted at all.
var ErrNoValidSlices = fmt.Errorf("no_valid_slices")

// Result carries the encoded buffer plus whether the frame was built
// clean or published with an error flag set (still a valid buffer that
// must still be emitted).
type Result struct {
	Buffer       []byte
	BuiltClean   bool
	TimestampErr bool
}

// Encode runs the fourteen-step algorithm against a single AggregatedFrame
// and the configured timestamp slop tolerance.
func Encode(f *frame.AggregatedFrame, timestampSlop uint64) (Result, error) {
	type kept struct {
		slice   frame.TimeSlice
		rocBank []byte
	}

	var survivors []kept
	sliceErr := false
	for _, s := range f.Slices {
		if len(s.Payload) < rocPrefixBytes {
			sliceErr = true
			continue
		}
		word7 := binary.BigEndian.Uint32(s.Payload[7*4 : 7*4+4])
		if word7 != magicWire && word7 != magicSwapped {
			sliceErr = true
			continue
		}
		survivors = append(survivors, kept{slice: s, rocBank: s.Payload[rocPrefixBytes:]})
	}
	if len(survivors) == 0 {
		return Result{}, ErrNoValidSlices
	}
	k := len(survivors)

	var minTs, maxTs uint64
	var sum uint64
	for i, sv := range survivors {
		ts := sv.slice.Timestamp
		sum += ts
		if i == 0 {
			minTs, maxTs = ts, ts
			continue
		}
		if ts < minTs {
			minTs = ts
		}
		if ts > maxTs {
			maxTs = ts
		}
	}
	timestampErr := maxTs-minTs > timestampSlop
	avgTs := sum / uint64(k)

	errFlag := sliceErr || timestampErr
	var ef uint32
	if errFlag {
		ef = 1
	}
	status := (ef << 7) | (uint32(k) & 0x7F)

	words := make([]uint32, 0, 32)
	words = append(words,
		0,          // w0 recordLength, back-patched
		0,          // w1
		14,         // w2
		1,          // w3
		0,          // w4
		bitInfo,    // w5
		0,          // w6
		magicWire,  // w7
		0,          // w8 uncompressedDataLength, back-patched
		0,          // w9
		0, 0, 0, 0, // w10..w13
	)

	A := len(words)
	words = append(words, 0) // aggregatedBankLength placeholder
	words = append(words, (0xFF60<<16)|(0x10<<8)|status)

	S := len(words)
	words = append(words, 0) // streamInfoLength placeholder
	words = append(words, (0xFF31<<16)|(0x20<<8)|status)

	words = append(words, (0x32<<24)|(0x01<<16)|3)
	words = append(words, f.FrameNumber)
	words = append(words, uint32(avgTs&0xFFFFFFFF))
	words = append(words, uint32(avgTs>>32))

	words = append(words, (0x42<<24)|(0x01<<16)|uint32(k))
	for _, sv := range survivors {
		words = append(words, (uint32(sv.slice.DataID)<<16)|uint32(sv.slice.StreamStatus))
	}

	indexAfterAIS := len(words)
	words[S] = uint32(indexAfterAIS - S - 1)

	var totalPayloadWords int
	for _, sv := range survivors {
		totalPayloadWords += (len(sv.rocBank) + 3) / 4
	}

	aggregatedBankLength := uint32(indexAfterAIS-A-1) + uint32(totalPayloadWords)
	words[A] = aggregatedBankLength

	recordLength := 14 + aggregatedBankLength + 1
	uncompressedDataLength := recordLength - 14
	words[0] = recordLength
	words[8] = uncompressedDataLength

	out := make([]byte, len(words)*4, len(words)*4+totalPayloadWords*4)
	for i, w := range words {
		binary.BigEndian.PutUint32(out[i*4:i*4+4], w)
	}

	for _, sv := range survivors {
		out = append(out, sv.rocBank...)
		if pad := (4 - len(sv.rocBank)%4) % 4; pad > 0 {
			out = append(out, make([]byte, pad)...)
		}
	}

	return Result{
		Buffer:       out,
		BuiltClean:   !errFlag,
		TimestampErr: timestampErr,
	}, nil
}
