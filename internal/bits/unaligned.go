// Package bits provides explicit unaligned little-endian loads and stores
// over mapped tile bytes. The GOL format packs feature headers and tag
// tables at 4-byte (sometimes sub-4-byte) boundaries, so every multi-byte
// field must be read through an explicit unaligned primitive rather than
// relying on natural alignment — see spec §4.3 and §9 ("Unaligned reads").
package bits

import "encoding/binary"

// U16 reads a little-endian uint16 from the first two bytes of buf
// without requiring 2-byte alignment.
func U16(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf[0:2])
}

// U32 reads a little-endian uint32 from the first four bytes of buf
// without requiring 4-byte alignment.
func U32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[0:4])
}

// U64 reads a little-endian uint64 from the first eight bytes of buf
// without requiring 8-byte alignment.
func U64(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[0:8])
}

// PutU16 writes v as little-endian to the first two bytes of buf.
func PutU16(buf []byte, v uint16) {
	binary.LittleEndian.PutUint16(buf[0:2], v)
}

// PutU32 writes v as little-endian to the first four bytes of buf.
func PutU32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], v)
}

// PutU64 writes v as little-endian to the first eight bytes of buf.
func PutU64(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf[0:8], v)
}

// I32 reads a little-endian int32 from the first four bytes of buf.
func I32(buf []byte) int32 {
	return int32(U32(buf))
}

// F32 reads a little-endian IEEE-754 float32 from the first four bytes
// of buf.
func F32(buf []byte) float32 {
	return f32frombits(U32(buf))
}

// AlignUp4 rounds off up to the next multiple of 4, as required for a tag
// table anchor (spec §3.4: "the anchor is 4-byte aligned").
func AlignUp4(off int) int {
	return (off + 3) &^ 3
}
