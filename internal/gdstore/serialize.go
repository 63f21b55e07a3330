package gdstore

import (
	"github.com/clarisma/geodesk-go/internal/bits"
	"github.com/clarisma/geodesk-go/internal/gderr"
)

// Serialization for the small metadata blobs a FeatureStore keeps
// alongside its tile blobs: the global string table, the indexed-key
// table, and the tile index (spec §4.2). None of these need the tile
// decoder's zero-copy discipline — they are read once at Open and
// rebuilt wholesale on commit — so they use a plain length-prefixed
// encoding rather than tilefmt's mapped-byte accessors.

func putStr(buf []byte, s string) []byte {
	var lenBuf [2]byte
	bits.PutU16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func getStr(buf []byte, pos int) (string, int, error) {
	if pos+2 > len(buf) {
		return "", 0, gderr.New(gderr.Corrupt, "truncated string length")
	}
	n := int(bits.U16(buf[pos : pos+2]))
	pos += 2
	if pos+n > len(buf) {
		return "", 0, gderr.New(gderr.Corrupt, "truncated string")
	}
	return string(buf[pos : pos+n]), pos + n, nil
}

// SerializeStringTable encodes a StringTable's strings in code order.
func SerializeStringTable(st *StringTable) []byte {
	st.mu.RLock()
	defer st.mu.RUnlock()
	buf := make([]byte, 0, len(st.strings)*8)
	var countBuf [4]byte
	bits.PutU32(countBuf[:], uint32(len(st.strings)))
	buf = append(buf, countBuf[:]...)
	for _, s := range st.strings {
		buf = putStr(buf, s)
	}
	return buf
}

// DeserializeStringTable decodes a blob produced by SerializeStringTable.
func DeserializeStringTable(data []byte) (*StringTable, error) {
	if len(data) < 4 {
		return nil, gderr.New(gderr.Corrupt, "truncated string table")
	}
	count := int(bits.U32(data[0:4]))
	pos := 4
	strings := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s, next, err := getStr(data, pos)
		if err != nil {
			return nil, err
		}
		strings = append(strings, s)
		pos = next
	}
	return NewStringTable(strings), nil
}

// SerializeIndexedKeyTable encodes an IndexedKeyTable's keys in bit order.
func SerializeIndexedKeyTable(ikt *IndexedKeyTable) []byte {
	buf := make([]byte, 0, len(ikt.keys)*8+2)
	var countBuf [2]byte
	bits.PutU16(countBuf[:], uint16(len(ikt.keys)))
	buf = append(buf, countBuf[:]...)
	for _, k := range ikt.keys {
		buf = putStr(buf, k)
	}
	return buf
}

// DeserializeIndexedKeyTable decodes a blob produced by
// SerializeIndexedKeyTable.
func DeserializeIndexedKeyTable(data []byte) (*IndexedKeyTable, error) {
	if len(data) < 2 {
		return nil, gderr.New(gderr.Corrupt, "truncated indexed-key table")
	}
	count := int(bits.U16(data[0:2]))
	pos := 2
	keys := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s, next, err := getStr(data, pos)
		if err != nil {
			return nil, err
		}
		keys = append(keys, s)
		pos = next
	}
	return NewIndexedKeyTable(keys), nil
}

// SerializeTileIndex encodes every tracked (TIP, entry) pair.
func SerializeTileIndex(ti *TileIndex) []byte {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	buf := make([]byte, 0, len(ti.entries)*8+4)
	var countBuf [4]byte
	bits.PutU32(countBuf[:], uint32(len(ti.entries)))
	buf = append(buf, countBuf[:]...)
	for tip, e := range ti.entries {
		var tipBuf, entryBuf [4]byte
		bits.PutU32(tipBuf[:], uint32(tip))
		bits.PutU32(entryBuf[:], uint32(e))
		buf = append(buf, tipBuf[:]...)
		buf = append(buf, entryBuf[:]...)
	}
	return buf
}

// DeserializeTileIndex decodes a blob produced by SerializeTileIndex.
func DeserializeTileIndex(data []byte) (*TileIndex, error) {
	if len(data) < 4 {
		return nil, gderr.New(gderr.Corrupt, "truncated tile index")
	}
	count := int(bits.U32(data[0:4]))
	pos := 4
	ti := NewTileIndex()
	for i := 0; i < count; i++ {
		if pos+8 > len(data) {
			return nil, gderr.New(gderr.Corrupt, "truncated tile index entry")
		}
		tip := TIP(bits.U32(data[pos : pos+4]))
		entry := TileIndexEntry(bits.U32(data[pos+4 : pos+8]))
		ti.entries[tip] = entry
		pos += 8
	}
	return ti, nil
}
