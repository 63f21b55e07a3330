// Package varint implements the unsigned/signed LEB128 codecs GeoDesk uses
// for way-node coordinate deltas, run-length tile directory entries, and
// relation member counts. Two decode paths are provided per spec: a fast
// path bounded by a known remaining byte count, and a safe path bounded by
// an end pointer that fails with gderr.Corrupt when the varint overruns
// its buffer or exceeds the 10-byte limit for a 64-bit value.
package varint

import (
	"github.com/clarisma/geodesk-go/internal/gderr"
)

// MaxBytes is the maximum number of bytes a 64-bit unsigned LEB128 varint
// can occupy (ceil(64/7)).
const MaxBytes = 10

// PutUvarint encodes v into buf (which must have at least MaxBytes
// capacity) and returns the number of bytes written. Mirrors
// encoding/binary.PutUvarint but kept local so the tile decoder does not
// take an unrelated stdlib dependency for a one-line primitive.
func PutUvarint(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// AppendUvarint appends the varint encoding of v to buf and returns the
// extended slice.
func AppendUvarint(buf []byte, v uint64) []byte {
	var tmp [MaxBytes]byte
	n := PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Uvarint decodes an unsigned varint from buf using the fast path: the
// caller guarantees buf holds at least one complete, well-formed varint.
// Returns the decoded value and the number of bytes consumed, or (0, 0)
// if buf is exhausted before a terminating byte is seen.
func Uvarint(buf []byte) (uint64, int) {
	var val uint64
	var shift uint
	for i, b := range buf {
		if i >= MaxBytes {
			return 0, 0
		}
		val |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return val, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// SafeUvarint decodes an unsigned varint bounded by end, the one-past-last
// valid index into buf (so callers working over a mapped tile can pass the
// tile's payload length rather than slicing a sub-buffer). Returns
// gderr.Corrupt if more than MaxBytes bytes are consumed or the buffer is
// exhausted first.
func SafeUvarint(buf []byte, pos, end int) (uint64, int, error) {
	var val uint64
	var shift uint
	p := pos
	for p < end {
		b := buf[p]
		p++
		val |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return val, p, nil
		}
		shift += 7
		if shift > 63 {
			return 0, 0, gderr.New(gderr.Corrupt, "varint exceeds 10 bytes").WithOffset(int64(pos))
		}
	}
	return 0, 0, gderr.New(gderr.Corrupt, "varint extends past end of buffer").WithOffset(int64(pos))
}

// ZigZagEncode maps a signed integer to an unsigned one so that small
// magnitude values (positive or negative) encode to short varints:
// 0, -1, 1, -2, 2, ... -> 0, 1, 2, 3, 4, ...
func ZigZagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// ZigZagDecode reverses ZigZagEncode.
func ZigZagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// PutVarint encodes a zig-zag signed varint into buf, returning the number
// of bytes written.
func PutVarint(buf []byte, v int64) int {
	return PutUvarint(buf, ZigZagEncode(v))
}

// AppendVarint appends the zig-zag signed varint encoding of v to buf.
func AppendVarint(buf []byte, v int64) []byte {
	return AppendUvarint(buf, ZigZagEncode(v))
}

// Varint decodes a zig-zag signed varint using the fast path.
func Varint(buf []byte) (int64, int) {
	u, n := Uvarint(buf)
	if n == 0 {
		return 0, 0
	}
	return ZigZagDecode(u), n
}

// SafeVarint decodes a zig-zag signed varint bounded by end.
func SafeVarint(buf []byte, pos, end int) (int64, int, error) {
	u, p, err := SafeUvarint(buf, pos, end)
	if err != nil {
		return 0, 0, err
	}
	return ZigZagDecode(u), p, nil
}

// Size returns the number of bytes PutUvarint would write for v.
func Size(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// SizeSigned returns the number of bytes PutVarint would write for v.
func SizeSigned(v int64) int {
	return Size(ZigZagEncode(v))
}
