package gdstore

import "sync"

// StringTable is the GOL's global string table (spec §3.5): roughly
// 30k common OSM keys/values, assigned stable codes 0..N-1 that are
// baked into tile data. Grounded on the source's GlobalStrings.h, which
// the build pipeline populates once and the reader treats as immutable.
type StringTable struct {
	mu      sync.RWMutex
	strings []string
	codeOf  map[string]int32
}

// NewStringTable builds a StringTable from an ordered list of strings;
// strings[i] is assigned code i.
func NewStringTable(strings []string) *StringTable {
	codeOf := make(map[string]int32, len(strings))
	for i, s := range strings {
		codeOf[s] = int32(i)
	}
	return &StringTable{strings: strings, codeOf: codeOf}
}

// Lookup returns the global code for s, or (-1, false) if s is not a
// global string (the caller falls back to local-key/value handling).
func (st *StringTable) Lookup(s string) (int32, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	code, ok := st.codeOf[s]
	return code, ok
}

// String returns the string for a global code.
func (st *StringTable) String(code int32) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if code < 0 || int(code) >= len(st.strings) {
		return "", false
	}
	return st.strings[code], true
}

// Len returns the number of interned strings.
func (st *StringTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.strings)
}

// IndexedKeyTable maps each of the (typically <=32) indexed keys to its
// bit position in a tile subtree's indexBits mask (spec §3.5, §4.4).
// Which keys are indexed is data-dependent per store and must be read
// from the GOL, not hardcoded (spec §9).
type IndexedKeyTable struct {
	bitOf map[string]uint8
	keys  []string
}

// NewIndexedKeyTable builds a table from an ordered key list; keys[i]
// owns bit i of the indexBits mask.
func NewIndexedKeyTable(keys []string) *IndexedKeyTable {
	bitOf := make(map[string]uint8, len(keys))
	for i, k := range keys {
		bitOf[k] = uint8(i)
	}
	return &IndexedKeyTable{bitOf: bitOf, keys: keys}
}

// BitFor returns the indexBits bit position for key, or (0, false) if key
// is not an indexed key.
func (ikt *IndexedKeyTable) BitFor(key string) (uint8, bool) {
	b, ok := ikt.bitOf[key]
	return b, ok
}

// MaskFor computes a combined indexBits mask for a set of keys, ignoring
// keys that are not indexed (they contribute no pruning information).
func (ikt *IndexedKeyTable) MaskFor(keys ...string) uint32 {
	var mask uint32
	for _, k := range keys {
		if b, ok := ikt.bitOf[k]; ok {
			mask |= 1 << b
		}
	}
	return mask
}

// Keys returns the ordered list of indexed keys.
func (ikt *IndexedKeyTable) Keys() []string { return ikt.keys }
