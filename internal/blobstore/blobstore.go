// Package blobstore implements the paged, free-list-managed, journal-
// protected blob file described in spec §4.1: BlobStore. It is the
// bottom layer FeatureStore specializes with GOL-specific metadata (tile
// index, string tables, GUID) — see internal/gdstore.
package blobstore

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/clarisma/geodesk-go/internal/gderr"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BlobPrefixSize is the size of the 8-byte (payloadSize, flags) prefix
// that precedes every blob's payload (spec §3.1).
const BlobPrefixSize = 8

// BlobKind identifies what a blob holds.
type BlobKind uint32

const (
	KindHeader BlobKind = iota
	KindTile
	KindStringTable
	KindIndexedKeyTable
	KindFreeList
	KindJournalStaging
	KindProperties
	KindTileIndex
)

// Mode selects how Open accesses the underlying file.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Options configures a BlobStore, following the functional-options shape
// used throughout this module for consistency with FeatureStore/query
// configuration.
type Options struct {
	Logger        *zap.SugaredLogger
	DefaultPageSz uint32 // used only when creating a new store
}

// Option mutates an Options during construction.
type Option func(*Options)

// WithLogger injects a structured logger; the zero value is a no-op logger
// (spec §9: "port the former as an injected writer").
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithPageSize sets the page size used when creating a brand-new store.
// Ignored when opening an existing file (the page size is immutable once
// the file exists, per spec §4.1).
func WithPageSize(sz uint32) Option {
	return func(o *Options) { o.DefaultPageSz = sz }
}

func defaultOptions() Options {
	return Options{Logger: zap.NewNop().Sugar(), DefaultPageSz: 4096}
}

// BlobStore is a memory-mappable, page-addressed file holding a header,
// a free list, and a set of blobs (spec §3.1, §4.1).
type BlobStore struct {
	path string
	file *os.File
	mode Mode
	log  *zap.SugaredLogger

	mu       sync.RWMutex
	header   Header
	freeList *FreeList
	data     []byte // read-only mmap of the whole file; nil if mmap unsupported
	fileSize int64
	marker   uint64 // next journal transaction marker (monotonic epoch)

	locked bool
}

func pagesFor(payloadSize uint32, pageSize uint32) uint32 {
	total := payloadSize + BlobPrefixSize
	return (total + pageSize - 1) / pageSize
}

// Open opens an existing GOL file, replaying any pending journal first.
func Open(path string, mode Mode, opts ...Option) (*BlobStore, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	flags := os.O_RDONLY
	if mode == ReadWrite {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, gderr.Wrap(err, gderr.Io, "opening GOL file").WithPath(path)
	}

	bs := &BlobStore{path: path, file: f, mode: mode, log: o.Logger}

	if mode == ReadWrite {
		if err := bs.lockFile(); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := bs.recoverAndLoad(); err != nil {
		bs.unlockFile()
		f.Close()
		return nil, err
	}

	bs.marker = uint64(bs.header.Revision) + 1
	return bs, nil
}

// Create initializes a brand-new GOL file with an empty free list and the
// given initial header fields (GUID, page size); callers then run a setup
// transaction to populate the tile index, string table, etc. (spec §4.8).
func Create(path string, guid [16]byte, opts ...Option) (*BlobStore, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, gderr.Wrap(err, gderr.Io, "creating GOL file").WithPath(path)
	}

	pageSizeExp := uint8(0)
	for sz := uint32(1); sz < o.DefaultPageSz; sz <<= 1 {
		pageSizeExp++
	}

	h := Header{PageSizeExponent: pageSizeExp, GUID: guid, RevisionTimestamp: time.Now().UnixNano()}
	buf := h.Serialize()
	pageSize := h.PageSize()
	if uint32(len(buf)) < pageSize {
		buf = append(buf, make([]byte, pageSize-uint32(len(buf)))...)
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		f.Close()
		return nil, gderr.Wrap(err, gderr.Io, "writing initial header")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, gderr.Wrap(err, gderr.Io, "syncing initial header")
	}

	bs := &BlobStore{path: path, file: f, mode: ReadWrite, log: o.Logger, header: h, freeList: NewFreeList()}
	if err := bs.lockFile(); err != nil {
		f.Close()
		return nil, err
	}
	if err := bs.remap(); err != nil {
		bs.unlockFile()
		f.Close()
		return nil, err
	}
	bs.marker = 1
	return bs, nil
}

// recoverAndLoad replays a pending journal (if any), then reads and
// validates the header and remaps the file.
func (bs *BlobStore) recoverAndLoad() error {
	blocks, err := recoverJournal(bs.path)
	if err != nil {
		return err
	}
	if len(blocks) > 0 {
		bs.log.Infow("replaying journal", "path", bs.path, "blocks", len(blocks))
		for _, blk := range blocks {
			if err := bs.undoBlock(blk); err != nil {
				return err
			}
		}
		if err := bs.file.Sync(); err != nil {
			return gderr.Wrap(err, gderr.Io, "syncing recovered header")
		}
		if bs.mode == ReadWrite {
			if err := removeJournal(bs.path); err != nil {
				return err
			}
		}
	}

	hdrBuf := make([]byte, HeaderSize)
	if _, err := bs.file.ReadAt(hdrBuf, 0); err != nil {
		return gderr.Wrap(err, gderr.Io, "reading header")
	}
	h, err := DeserializeHeader(hdrBuf)
	if err != nil {
		return err
	}
	bs.header = h
	bs.freeList = NewFreeList() // starts empty; the free list is not stored in the file

	return bs.remap()
}

// undoBlock restores a journaled pre-image. Every current pre-image is a
// header snapshot at offset 0 (captured by BeginTransaction and journaled
// by (*Transaction).Commit); future callers
// that journal additional regions would dispatch on a region tag here.
func (bs *BlobStore) undoBlock(blk journalBlock) error {
	if _, err := bs.file.WriteAt(blk.content, 0); err != nil {
		return gderr.Wrap(err, gderr.Io, "undoing journal block")
	}
	return nil
}

// remap (re)establishes the read-only mmap over the whole file, used by
// concurrent readers for zero-copy blob access. Falls back silently to
// pread-based access (readAt) when mmap is unavailable.
func (bs *BlobStore) remap() error {
	fi, err := bs.file.Stat()
	if err != nil {
		return gderr.Wrap(err, gderr.Io, "stat GOL file")
	}
	size := fi.Size()

	if bs.data != nil {
		_ = munmapFile(bs.data)
		bs.data = nil
	}
	if size == 0 {
		bs.fileSize = 0
		return nil
	}

	data, err := mmapFile(bs.file.Fd(), int(size))
	if err == nil {
		bs.data = data
	}
	bs.fileSize = size
	return nil
}

func (bs *BlobStore) readAt(off int64, n int) ([]byte, error) {
	if bs.data != nil {
		if off < 0 || off+int64(n) > int64(len(bs.data)) {
			return nil, gderr.New(gderr.Corrupt, "read out of bounds").WithOffset(off)
		}
		return bs.data[off : off+int64(n)], nil
	}
	buf := make([]byte, n)
	if _, err := bs.file.ReadAt(buf, off); err != nil {
		return nil, gderr.Wrap(err, gderr.Io, "reading blob").WithOffset(off)
	}
	return buf, nil
}

// Header returns a snapshot of the current, committed header.
func (bs *BlobStore) Header() Header {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.header
}

// PageSize returns the store's immutable page size.
func (bs *BlobStore) PageSize() uint32 {
	return bs.header.PageSize()
}

// FreeList exposes the in-memory free list for FeatureStore's setup
// transaction and for tests; not part of the stable public surface.
func (bs *BlobStore) FreeList() *FreeList { return bs.freeList }

// ReadBlob returns the payload bytes of the blob starting at pageNum,
// reading its (payloadSize, flags) prefix to determine the payload's
// extent. The returned slice aliases the mmap when available and must not
// be retained past the store's lifetime (spec §3.6).
func (bs *BlobStore) ReadBlob(pageNum PageNum) ([]byte, uint32, error) {
	pageSize := int64(bs.PageSize())
	off := int64(pageNum) * pageSize

	prefix, err := bs.readAt(off, BlobPrefixSize)
	if err != nil {
		return nil, 0, err
	}
	payloadSize := binary.LittleEndian.Uint32(prefix[0:4])
	flags := binary.LittleEndian.Uint32(prefix[4:8])

	payload, err := bs.readAt(off+BlobPrefixSize, int(payloadSize))
	if err != nil {
		return nil, 0, err
	}
	return payload, flags, nil
}

// AllocBlob reserves pages for a blob able to hold payloadSize bytes of
// payload, growing the file if the free list cannot satisfy the request,
// and writes the blob's (payloadSize, flags) prefix. It returns the page
// number the caller should write the payload to (at pageNum*PageSize +
// BlobPrefixSize).
func (bs *BlobStore) AllocBlob(payloadSize uint32, flags uint32) (PageNum, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	pageSize := bs.PageSize()
	pages := pagesFor(payloadSize, pageSize)

	pageNum, ok := bs.freeList.Alloc(pages)
	if !ok {
		var err error
		pageNum, err = bs.growFile(pages)
		if err != nil {
			return 0, err
		}
	}

	var prefix [BlobPrefixSize]byte
	binary.LittleEndian.PutUint32(prefix[0:4], payloadSize)
	binary.LittleEndian.PutUint32(prefix[4:8], flags)
	off := int64(pageNum) * int64(pageSize)
	if _, err := bs.file.WriteAt(prefix[:], off); err != nil {
		return 0, gderr.Wrap(err, gderr.Io, "writing blob prefix").WithOffset(off)
	}
	return pageNum, nil
}

// WriteBlobPayload writes payload at pageNum's payload offset. The blob
// must have already been allocated via AllocBlob with a payloadSize large
// enough to hold it.
func (bs *BlobStore) WriteBlobPayload(pageNum PageNum, payload []byte) error {
	off := int64(pageNum)*int64(bs.PageSize()) + BlobPrefixSize
	if _, err := bs.file.WriteAt(payload, off); err != nil {
		return gderr.Wrap(err, gderr.Io, "writing blob payload").WithOffset(off)
	}
	return nil
}

// FreeBlob returns pageNum's pages to the free list.
func (bs *BlobStore) FreeBlob(pageNum PageNum) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	pageSize := bs.PageSize()
	off := int64(pageNum) * int64(pageSize)
	prefix, err := bs.readAt(off, BlobPrefixSize)
	if err != nil {
		return err
	}
	payloadSize := binary.LittleEndian.Uint32(prefix[0:4])
	pages := pagesFor(payloadSize, pageSize)
	bs.freeList.Free(pageNum, pages)
	return nil
}

// growFile extends the file by `pages` pages at its current end and
// returns the page number of the new extent. Callers hold bs.mu.
func (bs *BlobStore) growFile(pages uint32) (PageNum, error) {
	pageSize := int64(bs.PageSize())
	fi, err := bs.file.Stat()
	if err != nil {
		return 0, gderr.Wrap(err, gderr.Io, "stat before grow")
	}
	curPages := fi.Size() / pageSize
	newSize := (curPages + int64(pages)) * pageSize
	if err := bs.file.Truncate(newSize); err != nil {
		return 0, gderr.Wrap(err, gderr.Io, "growing GOL file")
	}
	if err := bs.remap(); err != nil {
		return 0, err
	}
	return PageNum(curPages), nil
}

// Sync flushes buffered writes to disk.
func (bs *BlobStore) Sync() error {
	return bs.file.Sync()
}

// Close releases the store's file handle, lock, and mmap.
func (bs *BlobStore) Close() error {
	var errs error
	if bs.data != nil {
		errs = multierr.Append(errs, munmapFile(bs.data))
	}
	bs.unlockFile()
	errs = multierr.Append(errs, bs.file.Close())
	return errs
}

func (bs *BlobStore) lockFile() error {
	if err := flock(bs.file); err != nil {
		return gderr.Wrap(err, gderr.LockConflict, "acquiring writer lock").WithPath(bs.path)
	}
	bs.locked = true
	return nil
}

func (bs *BlobStore) unlockFile() {
	if bs.locked {
		_ = funlock(bs.file)
		bs.locked = false
	}
}
