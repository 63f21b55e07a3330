package tilefmt

import (
	"github.com/clarisma/geodesk-go/internal/bits"
	"github.com/clarisma/geodesk-go/internal/gderr"
)

// ValueKind discriminates how a tag's value is encoded, selected by the
// tag-type bits the spec describes abstractly in §3.4 ("global-string
// reference, local-string pointer, narrow-integer, wide-integer, or
// decimal"). This port assigns one byte to the discriminator rather than
// packing it into spare key-word bits, trading a little density for a
// format simple enough to read and write without a bit-level spec of the
// original's exact packing (not recoverable from the abstract
// description alone — see DESIGN.md).
type ValueKind uint8

const (
	ValueGlobalString ValueKind = iota
	ValueLocalStringPtr
	ValueNarrowInt
	ValueWideInt
	ValueDecimal
)

// TagValue is a decoded tag value: exactly one of its fields is
// meaningful, selected by Kind.
type TagValue struct {
	Kind        ValueKind
	GlobalCode  int32  // ValueGlobalString
	LocalOffset uint32 // ValueLocalStringPtr: offset of the string within the tile's local string area
	LocalLen    uint32 // ValueLocalStringPtr: length in bytes of that string
	Int         int64  // ValueNarrowInt / ValueWideInt
	Mantissa    int32  // ValueDecimal
	Exponent    int8   // ValueDecimal
}

// payloadSize returns the number of bytes a value of this kind occupies
// after its 1-byte kind discriminator.
func (k ValueKind) payloadSize() int {
	switch k {
	case ValueGlobalString, ValueNarrowInt:
		return 2
	case ValueLocalStringPtr, ValueWideInt:
		return 4
	case ValueDecimal:
		return 5
	default:
		return 0
	}
}

// TagTablePtr is a borrowed view of a feature's tag table: two-sided
// around an anchor offset, global tags growing forward and local tags
// growing backward (spec §3.4). The anchor is 4-byte aligned. A 16-bit
// entry count precedes each side (globalCount at the anchor itself,
// localCount immediately before it) so an empty side never requires the
// iterator to guess where entries would have started.
type TagTablePtr struct {
	tile   []byte
	anchor uint32
}

// NewTagTablePtr constructs a TagTablePtr at the given anchor offset.
func NewTagTablePtr(tile []byte, anchor uint32) TagTablePtr {
	return TagTablePtr{tile: tile, anchor: anchor}
}

// Tag is one decoded (key, value) pair as yielded by iteration. Key is a
// global-string code (>= 0) or, if Key < 0, a local key whose string text
// is LocalKey.
type Tag struct {
	Key      int32
	LocalKey string
	Value    TagValue
}

// TagIterator walks a tag table's global (forward) then local (backward)
// entries exactly once each (spec Testable Property 3: "iterating the
// tag table yields each tag exactly once").
type TagIterator struct {
	tile         []byte
	pos          uint32 // next global entry offset (grows forward)
	pos2         uint32 // next local entry offset (grows backward, exclusive)
	globalLeft   uint32
	localLeft    uint32
	inGlobal     bool
	err          error
}

// Iterate returns a fresh TagIterator positioned at the table's first
// global entry.
func (t TagTablePtr) Iterate() *TagIterator {
	globalCount := bits.U16(t.tile[t.anchor : t.anchor+2])
	localCount := bits.U16(t.tile[t.anchor-2 : t.anchor])
	return &TagIterator{
		tile:       t.tile,
		pos:        t.anchor + 2,
		pos2:       t.anchor - 2,
		globalLeft: uint32(globalCount),
		localLeft:  uint32(localCount),
		inGlobal:   true,
	}
}

// Err returns the first decode error encountered, if any.
func (it *TagIterator) Err() error { return it.err }

func readValue(buf []byte, pos uint32) (TagValue, uint32, error) {
	if int(pos) >= len(buf) {
		return TagValue{}, 0, gderr.New(gderr.Corrupt, "tag value out of bounds").WithOffset(int64(pos))
	}
	kind := ValueKind(buf[pos])
	pos++
	size := kind.payloadSize()
	if int(pos)+size > len(buf) {
		return TagValue{}, 0, gderr.New(gderr.Corrupt, "truncated tag value").WithOffset(int64(pos))
	}
	var v TagValue
	v.Kind = kind
	payload := buf[pos : pos+uint32(size)]
	switch kind {
	case ValueGlobalString:
		v.GlobalCode = int32(bits.U16(payload))
	case ValueLocalStringPtr:
		v.LocalOffset = uint32(bits.U16(payload[0:2]))
		v.LocalLen = uint32(bits.U16(payload[2:4]))
	case ValueNarrowInt:
		v.Int = int64(int16(bits.U16(payload)))
	case ValueWideInt:
		v.Int = int64(bits.I32(payload))
	case ValueDecimal:
		v.Mantissa = bits.I32(payload[0:4])
		v.Exponent = int8(payload[4])
	default:
		return TagValue{}, 0, gderr.New(gderr.Corrupt, "unknown tag value kind").WithDetail("kind", kind)
	}
	return v, pos + uint32(size), nil
}

// Next advances the iterator and reports whether a tag was produced.
// Global entries are yielded in forward storage order, then local
// entries nearest the anchor first, walking backward through storage.
// Neither side is sorted by key.
func (it *TagIterator) Next() (Tag, bool) {
	if it.err != nil {
		return Tag{}, false
	}
	if it.inGlobal {
		if it.globalLeft == 0 {
			it.inGlobal = false
		} else {
			keyCode := int32(bits.U16(it.tile[it.pos : it.pos+2]))
			val, next, err := readValue(it.tile, it.pos+2)
			if err != nil {
				it.err = err
				return Tag{}, false
			}
			it.pos = next
			it.globalLeft--
			return Tag{Key: keyCode, Value: val}, true
		}
	}
	if it.localLeft == 0 {
		return Tag{}, false
	}
	// Local entries: a 4-byte word immediately preceding pos2 holds
	// (reserved:3 in the low bits, keyLen:13, keyOffset:16), where keyLen/
	// keyOffset locate the key's bytes within the tile's local string
	// area preceding the anchor.
	it.pos2 -= 4
	word := bits.U32(it.tile[it.pos2 : it.pos2+4])
	keyLen := (word >> 3) & 0x1FFF
	keyOff := word >> 16
	key := string(it.tile[keyOff : keyOff+keyLen])

	val, _, err := readValueBackward(it.tile, it.pos2)
	if err != nil {
		it.err = err
		return Tag{}, false
	}
	it.localLeft--
	return Tag{Key: -1, LocalKey: key, Value: val}, true
}

// readValueBackward decodes a value whose kind byte sits immediately
// before pos (local entries store their value just ahead of the key
// word, so the table's backward growth stays contiguous).
func readValueBackward(buf []byte, pos uint32) (TagValue, uint32, error) {
	size := 1
	if int(pos) < size {
		return TagValue{}, 0, gderr.New(gderr.Corrupt, "local tag value out of bounds")
	}
	kind := ValueKind(buf[pos-1])
	payloadSize := kind.payloadSize()
	start := int(pos) - 1 - payloadSize
	if start < 0 {
		return TagValue{}, 0, gderr.New(gderr.Corrupt, "truncated local tag value")
	}
	v, _, err := readValue(buf, uint32(start))
	return v, uint32(start), err
}

// LocalString resolves a ValueLocalStringPtr value's text from the tile's
// local string area.
func (t TagTablePtr) LocalString(v TagValue) string {
	return string(t.tile[v.LocalOffset : v.LocalOffset+v.LocalLen])
}

// Get looks up a single global-coded key, returning (value, true) if
// present. Local keys are looked up via GetLocal.
func (t TagTablePtr) Get(keyCode int32) (TagValue, bool) {
	it := t.Iterate()
	for {
		tag, ok := it.Next()
		if !ok {
			return TagValue{}, false
		}
		if tag.Key == keyCode && tag.Key >= 0 {
			return tag.Value, true
		}
	}
}

// GetLocal looks up a local (non-interned) key by its literal text.
func (t TagTablePtr) GetLocal(key string) (TagValue, bool) {
	it := t.Iterate()
	for {
		tag, ok := it.Next()
		if !ok {
			return TagValue{}, false
		}
		if tag.Key < 0 && tag.LocalKey == key {
			return tag.Value, true
		}
	}
}

// All collects every (key, value) pair in iteration order. Intended for
// tests and small tag tables; hot paths should use Iterate directly.
func (t TagTablePtr) All() ([]Tag, error) {
	it := t.Iterate()
	var out []Tag
	for {
		tag, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, tag)
	}
	return out, it.Err()
}
