package gdstore

import (
	"sort"
	"sync"

	"github.com/clarisma/geodesk-go/internal/mercator"
)

// TileStatus is the state of a tile index entry, per spec §4.2.
type TileStatus uint32

const (
	MissingOrStale      TileStatus = 0
	ChildTilePtr        TileStatus = 1
	Current             TileStatus = 2
	CurrentWithModified TileStatus = 3
)

// TileIndexEntry packs a blob page number and a TileStatus into one word,
// grounded directly on the source's TileIndexEntry (page in the high
// bits, 2-bit status in the low bits).
type TileIndexEntry uint32

// NewTileIndexEntry builds an entry from a page number and status.
func NewTileIndexEntry(page uint32, status TileStatus) TileIndexEntry {
	return TileIndexEntry(page<<2 | uint32(status))
}

// Page returns the entry's blob page number.
func (e TileIndexEntry) Page() uint32 { return uint32(e) >> 2 }

// Status returns the entry's TileStatus.
func (e TileIndexEntry) Status() TileStatus { return TileStatus(uint32(e) & 3) }

// IsLoadedAndCurrent reports whether the entry's status is CURRENT or
// CURRENT_WITH_MODIFIED.
func (e TileIndexEntry) IsLoadedAndCurrent() bool { return e.Status() >= Current }

// TileIndex maps TIP -> TileIndexEntry. §4.2 describes this as "a fixed-
// fan hierarchical tree keyed on TIP"; readers only ever need point
// lookup (by TIP) and range lookup (by bbox), so this port keeps a flat
// map guarded by a RWMutex instead of reproducing the on-disk tree
// structure — the updater rebuilds it wholesale under the writer lock
// rather than mutating individual tree nodes (§5: "the updater rebuilds
// them under a writer lock that excludes other writers but not readers").
type TileIndex struct {
	mu      sync.RWMutex
	entries map[TIP]TileIndexEntry
}

// NewTileIndex creates an empty tile index.
func NewTileIndex() *TileIndex {
	return &TileIndex{entries: make(map[TIP]TileIndexEntry)}
}

// Get looks up a single TIP.
func (ti *TileIndex) Get(tip TIP) (TileIndexEntry, bool) {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	e, ok := ti.entries[tip]
	return e, ok
}

// Set installs or replaces a TIP's entry.
func (ti *TileIndex) Set(tip TIP, e TileIndexEntry) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.entries[tip] = e
}

// Delete removes a TIP's entry.
func (ti *TileIndex) Delete(tip TIP) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	delete(ti.entries, tip)
}

// Len returns the number of tiles currently tracked.
func (ti *TileIndex) Len() int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return len(ti.entries)
}

// TilesIntersecting returns, in a stable order (ascending TIP), every TIP
// whose bounds intersect bbox — the tile set a query's bbox resolves to
// (§4.7 step 1). Ordering matters: §5 requires "result iteration order
// equals task submission order (tile index traversal order over the
// query bbox)", so the executor submits TileQueryTasks in this order.
func (ti *TileIndex) TilesIntersecting(bbox mercator.Bounds) []TIP {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	out := make([]TIP, 0, len(ti.entries))
	for tip, e := range ti.entries {
		if !e.IsLoadedAndCurrent() {
			continue
		}
		if tip.Bounds().Intersects(bbox) {
			out = append(out, tip)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns every tracked TIP, in ascending order.
func (ti *TileIndex) Snapshot() []TIP {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	out := make([]TIP, 0, len(ti.entries))
	for tip := range ti.entries {
		out = append(out, tip)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
