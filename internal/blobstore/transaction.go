package blobstore

import (
	"time"

	"github.com/clarisma/geodesk-go/internal/gderr"
)

// state tracks a Transaction through the commit state machine described in
// spec §4.8: Idle -> Open -> Staged -> Journaled -> Sealed -> Applied ->
// Idle. Failure at or before Sealed rolls back cleanly (the journal, if
// any, is simply discarded); failure at Applied is the narrow window left
// unrecoverable by design (see DESIGN.md).
type state int

const (
	stateIdle state = iota
	stateOpen
	stateStaged
	stateJournaled
	stateSealed
	stateApplied
)

// Transaction is the single-writer commit unit for a BlobStore: stage new
// blob writes and header field changes, then Commit to make them visible
// atomically (spec §3.1, §4.1, §4.8).
type Transaction struct {
	store   *BlobStore
	state   state
	journal *Journal

	newHeader Header
	preImage  []byte // the header bytes as they were when the transaction opened

	pendingAllocs []PageNum // blobs allocated this transaction, for rollback bookkeeping
	pendingFrees  []struct {
		page  PageNum
		pages uint32
	}
}

// BeginTransaction opens a new write transaction. Only one may be open on a
// store at a time; the caller is expected to serialize writers externally
// (the file lock taken by Open/Create enforces this across processes).
func (bs *BlobStore) BeginTransaction() (*Transaction, error) {
	if bs.mode != ReadWrite {
		return nil, gderr.New(gderr.Io, "store was opened read-only")
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	t := &Transaction{
		store:     bs,
		state:     stateOpen,
		newHeader: bs.header,
		preImage:  bs.header.Serialize(),
	}
	return t, nil
}

// Store exposes the owning BlobStore for callers (e.g. gdstore) that need
// to allocate or read blobs mid-transaction.
func (t *Transaction) Store() *BlobStore { return t.store }

// SetStringTableRef stages a new string-table blob reference to be
// committed with this transaction's header update.
func (t *Transaction) SetStringTableRef(pageNum uint32) { t.newHeader.StringTableBlobRef = pageNum }

// SetPropertiesRef stages a new properties blob reference.
func (t *Transaction) SetPropertiesRef(pageNum uint32) { t.newHeader.PropertiesBlobRef = pageNum }

// SetIndexedKeysRef stages a new indexed-key-table blob reference.
func (t *Transaction) SetIndexedKeysRef(pageNum uint32) { t.newHeader.IndexedKeysBlobRef = pageNum }

// SetTileIndexRoot stages a new tile index root blob reference. Because
// every structure a commit touches is written copy-on-write to a fresh
// blob, switching this one pointer atomically (guarded by the header CRC)
// is what makes the new tile index visible (spec §3.1).
func (t *Transaction) SetTileIndexRoot(pageNum uint32) { t.newHeader.TileIndexRoot = pageNum }

// SetFreeListRoot stages a new free-list blob reference.
func (t *Transaction) SetFreeListRoot(pageNum uint32) { t.newHeader.FreeListRoot = pageNum }

// NoteFreed records that page/pages were returned to the in-memory free
// list during this transaction. Rollback does not undo these frees.
func (t *Transaction) NoteFreed(page PageNum, pages uint32) {
	t.pendingFrees = append(t.pendingFrees, struct {
		page  PageNum
		pages uint32
	}{page, pages})
}

// Commit runs the full Stage -> Journal -> Seal -> Apply -> Truncate
// pipeline (spec §4.1 steps 1-5):
//  1. Stage: blob payload writes already happened via BlobStore.AllocBlob/
//     WriteBlobPayload calls made against t.store before Commit.
//  2. Journal: the pre-transaction header is appended to a fresh journal.
//  3. Seal: the journal's terminal CRC32-C block is written and fsynced.
//  4. Apply: the new header is written in place and fsynced.
//  5. Truncate: the journal is discarded.
func (t *Transaction) Commit() error {
	if t.state != stateOpen {
		return gderr.New(gderr.Io, "transaction is not open")
	}
	t.state = stateStaged

	bs := t.store
	bs.mu.Lock()
	defer bs.mu.Unlock()

	t.newHeader.Revision = bs.header.Revision + 1
	t.newHeader.RevisionTimestamp = nowFunc()

	j, err := openJournal(bs.path, bs.marker)
	if err != nil {
		t.state = stateOpen
		return err
	}
	t.journal = j

	if err := j.AddBlock(t.preImage); err != nil {
		j.Close()
		t.state = stateOpen
		return err
	}
	t.state = stateJournaled

	if err := j.Seal(); err != nil {
		j.Close()
		t.state = stateJournaled
		return err
	}
	t.state = stateSealed

	newBuf := t.newHeader.Serialize()
	if _, err := bs.file.WriteAt(newBuf, 0); err != nil {
		// The header write itself failed (not merely "crashed after"); the
		// journal is still intact on disk, so a future Open will undo back
		// to the pre-image. Leave the journal in place and surface the
		// error rather than calling Truncate.
		j.Close()
		return gderr.Wrap(err, gderr.Io, "applying header")
	}
	if err := bs.file.Sync(); err != nil {
		j.Close()
		return gderr.Wrap(err, gderr.Io, "syncing applied header")
	}
	t.state = stateApplied
	bs.header = t.newHeader
	bs.marker++

	if err := j.Truncate(); err != nil {
		j.Close()
		return err
	}
	if err := j.Close(); err != nil {
		return gderr.Wrap(err, gderr.Io, "closing journal")
	}
	if err := removeJournal(bs.path); err != nil {
		return err
	}

	t.state = stateIdle
	return nil
}

// Rollback discards a transaction that has not yet reached Commit's
// journal-write point. It frees only the pages listed in pendingAllocs,
// one page each; nothing adds to that list, so blobs allocated through
// BlobStore.AllocBlob during the transaction stay allocated.
// It returns an error once Commit has begun journaling (spec: once journaled,
// the transaction either completes or is recovered on next Open).
func (t *Transaction) Rollback() error {
	if t.state != stateOpen {
		return gderr.New(gderr.Io, "transaction already committed or journaling")
	}
	bs := t.store
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for _, p := range t.pendingAllocs {
		bs.freeList.Free(p, 1)
	}
	t.state = stateIdle
	return nil
}

// nowFunc is a seam for deterministic tests; defaults to the real clock.
var nowFunc = func() int64 { return time.Now().UnixNano() }
