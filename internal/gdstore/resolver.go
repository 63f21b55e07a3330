package gdstore

// Resolver combines a store's StringTable and IndexedKeyTable into the
// single lookup surface match.Resolver expects. match cannot import
// gdstore (gdstore holds the compiled-matcher cache, which would create
// a cycle), so this adapter is the one place the two packages meet: its
// methods are promoted from the embedded tables, satisfying
// match.Resolver structurally with no translation code.
type Resolver struct {
	*StringTable
	*IndexedKeyTable
}

// NewResolver builds a Resolver over a store's string and indexed-key
// tables.
func NewResolver(strings *StringTable, indexedKeys *IndexedKeyTable) Resolver {
	return Resolver{StringTable: strings, IndexedKeyTable: indexedKeys}
}
