package blobstore

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/clarisma/geodesk-go/internal/gderr"
)

// Magic identifies a GOL file: bytes "GOL1" stored little-endian at offset 0.
const Magic uint32 = 0x314c4f47

// FormatVersion is the GOL major version this build produces and accepts.
const FormatVersion uint32 = 1

// HeaderSize is the fixed size in bytes of the GOL header, per spec §6:
// magic(4) version(4) pageSizeExponent(1) flags(3) GUID(16) revision(4)
// revisionTimestamp(8) stringTableBlobRef(4) propertiesBlobRef(4)
// indexedKeysBlobRef(4) tileIndexRoot(4) freeListRoot(4) headerCRC32C(4).
const HeaderSize = 64

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Header is the single source of truth for commit state (spec §3.1): a new
// state becomes visible only once its checksum matches.
type Header struct {
	PageSizeExponent   uint8
	Flags              uint32 // low 24 bits significant
	GUID               [16]byte
	Revision           uint32
	RevisionTimestamp  int64
	StringTableBlobRef uint32
	PropertiesBlobRef  uint32
	IndexedKeysBlobRef uint32
	TileIndexRoot      uint32
	FreeListRoot       uint32
}

// PageSize returns 1 << PageSizeExponent.
func (h *Header) PageSize() uint32 {
	return 1 << h.PageSizeExponent
}

// Serialize encodes h into a HeaderSize-byte buffer, computing and
// appending the CRC32-C over everything that precedes it.
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	buf[8] = h.PageSizeExponent
	buf[9] = byte(h.Flags)
	buf[10] = byte(h.Flags >> 8)
	buf[11] = byte(h.Flags >> 16)
	copy(buf[12:28], h.GUID[:])
	binary.LittleEndian.PutUint32(buf[28:32], h.Revision)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.RevisionTimestamp))
	binary.LittleEndian.PutUint32(buf[40:44], h.StringTableBlobRef)
	binary.LittleEndian.PutUint32(buf[44:48], h.PropertiesBlobRef)
	binary.LittleEndian.PutUint32(buf[48:52], h.IndexedKeysBlobRef)
	binary.LittleEndian.PutUint32(buf[52:56], h.TileIndexRoot)
	binary.LittleEndian.PutUint32(buf[56:60], h.FreeListRoot)

	crc := crc32.Checksum(buf[:60], crcTable)
	binary.LittleEndian.PutUint32(buf[60:64], crc)
	return buf
}

// DeserializeHeader parses and validates a HeaderSize-byte buffer,
// rejecting bad magic, unsupported versions, and CRC mismatches.
func DeserializeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, gderr.New(gderr.Corrupt, "header too short")
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Header{}, gderr.New(gderr.Corrupt, "bad GOL magic").WithDetail("got", magic)
	}

	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != FormatVersion {
		return Header{}, gderr.New(gderr.VersionMismatch, "unsupported GOL version").
			WithDetail("got", version).WithDetail("want", FormatVersion)
	}

	wantCRC := crc32.Checksum(buf[:60], crcTable)
	gotCRC := binary.LittleEndian.Uint32(buf[60:64])
	if wantCRC != gotCRC {
		return Header{}, gderr.New(gderr.Corrupt, "header CRC mismatch").
			WithDetail("want", wantCRC).WithDetail("got", gotCRC)
	}

	h := Header{
		PageSizeExponent:   buf[8],
		Flags:              uint32(buf[9]) | uint32(buf[10])<<8 | uint32(buf[11])<<16,
		Revision:           binary.LittleEndian.Uint32(buf[28:32]),
		RevisionTimestamp:  int64(binary.LittleEndian.Uint64(buf[32:40])),
		StringTableBlobRef: binary.LittleEndian.Uint32(buf[40:44]),
		PropertiesBlobRef:  binary.LittleEndian.Uint32(buf[44:48]),
		IndexedKeysBlobRef: binary.LittleEndian.Uint32(buf[48:52]),
		TileIndexRoot:      binary.LittleEndian.Uint32(buf[52:56]),
		FreeListRoot:       binary.LittleEndian.Uint32(buf[56:60]),
	}
	copy(h.GUID[:], buf[12:28])
	return h, nil
}

// CRC32C computes the Castagnoli CRC32 used throughout the store (header
// checksum, journal terminal block).
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}
