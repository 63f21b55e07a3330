package blobstore

import (
	"math/bits"
	"sort"
)

// PageNum addresses a page within the GOL file (spec §4.1: "32-bit page
// numbers").
type PageNum uint32

// extent is a contiguous run of free pages.
type extent struct {
	page  PageNum
	count uint32
}

// FreeList tracks free page extents with size-classed best-fit allocation
// and on-free coalescing, per spec §4.1: "A set of size-classed free-list
// nodes ... allocation is best-fit by size class then split. Coalescing
// happens on free when the neighbour blob is free."
//
// The representation below lives in memory only. BlobStore starts it
// empty when a store is opened and never writes it to the file: no
// free-list blob is written or read, so pages freed in one session are
// not reused after the store is reopened.
type FreeList struct {
	buckets  map[int][]extent  // size class -> extents of that class
	byStart  map[PageNum]int   // extent start page -> index into flat storage
	byEnd    map[PageNum]int   // one-past-last page -> index into flat storage
	extents  []extent          // flat storage of all live extents; index stable until removed
	freeSlot []int             // recycled indices into extents
	live     map[int]bool      // index -> still live
}

// sizeClass buckets a page count into its allocation class with the rule
// class(n) = bits.Len(n-1), the exponent of the smallest power of two
// >= n, so class k > 0 holds extents of 2^(k-1)+1 .. 2^k pages. Any extent
// in a class above sizeClass(n) satisfies a request for n pages; an
// extent in class sizeClass(n) itself may be smaller than n.
func sizeClass(pages uint32) int {
	if pages <= 1 {
		return 0
	}
	return bits.Len32(pages - 1)
}

// NewFreeList creates an empty free list.
func NewFreeList() *FreeList {
	return &FreeList{
		buckets: make(map[int][]extent),
		byStart: make(map[PageNum]int),
		byEnd:   make(map[PageNum]int),
		live:    make(map[int]bool),
	}
}

func (fl *FreeList) store(e extent) int {
	var idx int
	if n := len(fl.freeSlot); n > 0 {
		idx = fl.freeSlot[n-1]
		fl.freeSlot = fl.freeSlot[:n-1]
		fl.extents[idx] = e
	} else {
		idx = len(fl.extents)
		fl.extents = append(fl.extents, e)
	}
	fl.live[idx] = true
	fl.byStart[e.page] = idx
	fl.byEnd[e.page+PageNum(e.count)] = idx
	class := sizeClass(e.count)
	fl.buckets[class] = append(fl.buckets[class], e)
	return idx
}

func (fl *FreeList) remove(idx int) {
	e := fl.extents[idx]
	delete(fl.live, idx)
	delete(fl.byStart, e.page)
	delete(fl.byEnd, e.page+PageNum(e.count))
	fl.freeSlot = append(fl.freeSlot, idx)

	class := sizeClass(e.count)
	bucket := fl.buckets[class]
	for i, be := range bucket {
		if be.page == e.page && be.count == e.count {
			bucket[i] = bucket[len(bucket)-1]
			fl.buckets[class] = bucket[:len(bucket)-1]
			break
		}
	}
}

// Alloc removes and returns a PageNum extent of exactly pages pages using
// best-fit-then-split: the smallest sufficient size class is consumed,
// splitting off and re-inserting any remainder. Returns (0, false) if no
// extent is large enough.
func (fl *FreeList) Alloc(pages uint32) (PageNum, bool) {
	needed := sizeClass(pages)
	for class := needed; class <= 32; class++ {
		bucket := fl.buckets[class]
		for i := len(bucket) - 1; i >= 0; i-- {
			chosen := bucket[i]
			if chosen.count < pages {
				continue
			}
			idx, ok := fl.byStart[chosen.page]
			if !ok {
				continue
			}
			fl.remove(idx)

			if chosen.count > pages {
				remainder := extent{page: chosen.page + PageNum(pages), count: chosen.count - pages}
				fl.store(remainder)
			}
			return chosen.page, true
		}
	}
	return 0, false
}

// Free returns an extent of pages pages starting at page to the free list,
// coalescing with an immediately preceding or following free extent.
func (fl *FreeList) Free(page PageNum, pages uint32) {
	start := page
	count := pages

	if idx, ok := fl.byEnd[start]; ok {
		prev := fl.extents[idx]
		fl.remove(idx)
		start = prev.page
		count += prev.count
	}

	if idx, ok := fl.byStart[start+PageNum(count)]; ok {
		next := fl.extents[idx]
		fl.remove(idx)
		count += next.count
	}

	fl.store(extent{page: start, count: count})
}

// TotalFreePages returns the sum of all free extents' page counts.
func (fl *FreeList) TotalFreePages() uint32 {
	var total uint32
	for idx := range fl.live {
		total += fl.extents[idx].count
	}
	return total
}

// Extents returns a sorted snapshot of all live free extents, for
// serialization and testing.
func (fl *FreeList) Extents() []struct {
	Page  PageNum
	Count uint32
} {
	out := make([]struct {
		Page  PageNum
		Count uint32
	}, 0, len(fl.live))
	for idx := range fl.live {
		e := fl.extents[idx]
		out = append(out, struct {
			Page  PageNum
			Count uint32
		}{e.page, e.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}
