package gdstore

import (
	"crypto/rand"

	"github.com/clarisma/geodesk-go/internal/blobstore"
	"github.com/clarisma/geodesk-go/internal/gderr"
	"github.com/clarisma/geodesk-go/internal/match"
	"github.com/clarisma/geodesk-go/internal/properties"
)

// Create initializes a brand-new GOL file with a random GUID and an empty
// tile index, string table, and indexed-key table. Callers run Setup (and
// subsequent transactions) to populate real data (spec §4.8 "setup(
// metadata, tileIndex) -- initial population").
func Create(path string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	var guid [16]byte
	if _, err := rand.Read(guid[:]); err != nil {
		return nil, gderr.Wrap(err, gderr.Io, "generating GUID")
	}

	bs, err := blobstore.Create(path, guid, append(o.BlobStoreOpts, blobstore.WithLogger(o.Logger))...)
	if err != nil {
		return nil, err
	}
	s := &Store{
		bs:           bs,
		log:          o.Logger,
		tileIndex:    NewTileIndex(),
		strings:      NewStringTable(nil),
		indexedKeys:  NewIndexedKeyTable(nil),
		props:        properties.New(),
		matcherCache: make(map[string]*match.Matcher),
		matcherCap:   o.MatcherCache,
	}
	s.resolver = NewResolver(s.strings, s.indexedKeys)
	return s, nil
}

// Transaction is FeatureStore's write unit, layered on top of
// blobstore.Transaction: it stages tile writes, interned string/indexed-
// key tables, and the tile index, then commits all of it atomically
// through the blob store's journal protocol (spec §4.8).
type Transaction struct {
	store *Store
	bt    *blobstore.Transaction

	newStrings     *StringTable
	newIndexedKeys *IndexedKeyTable
	stringsDirty   bool

	freed []struct {
		page  blobstore.PageNum
		pages uint32
	}
}

// Begin opens a new Transaction against s (spec §4.8 "begin()").
func (s *Store) Begin() (*Transaction, error) {
	if err := s.ensureWritable(); err != nil {
		return nil, err
	}
	bt, err := s.bs.BeginTransaction()
	if err != nil {
		return nil, err
	}
	return &Transaction{store: s, bt: bt, newStrings: s.strings, newIndexedKeys: s.indexedKeys}, nil
}

// Setup installs the store's initial string table and indexed-key table
// (spec §4.8 "setup(metadata, tileIndex)"); called once before the first
// tiles are written.
func (t *Transaction) Setup(strings []string, indexedKeys []string) {
	t.newStrings = NewStringTable(strings)
	t.newIndexedKeys = NewIndexedKeyTable(indexedKeys)
	t.stringsDirty = true
}

// PutTile replaces (or creates) the tile at tip with the given encoded
// payload bytes, allocating a fresh blob and retiring the old one (spec
// §4.8 "putTile(tip, bytes)"). With keepPriorAsModified (and a prior
// tile present), the new entry gets status CURRENT_WITH_MODIFIED and the
// prior tile's blob is left allocated instead of freed; the tile index
// then refers only to the new blob.
func (t *Transaction) PutTile(tip TIP, payload []byte, keepPriorAsModified bool) error {
	pageNum, err := t.bt.Store().AllocBlob(uint32(len(payload)), uint32(blobstore.KindTile))
	if err != nil {
		return err
	}
	if err := t.bt.Store().WriteBlobPayload(pageNum, payload); err != nil {
		return err
	}

	prior, hadPrior := t.store.tileIndex.Get(tip)
	status := Current
	if keepPriorAsModified && hadPrior {
		status = CurrentWithModified
	}
	t.store.tileIndex.Set(tip, NewTileIndexEntry(uint32(pageNum), status))

	if hadPrior && !keepPriorAsModified {
		t.freed = append(t.freed, struct {
			page  blobstore.PageNum
			pages uint32
		}{blobstore.PageNum(prior.Page()), 1})
	}
	return nil
}

// Commit writes the string table, indexed-key table, and tile index
// blobs (if changed), frees superseded tile blobs, and runs the
// underlying blob store's Stage -> Journal -> Seal -> Apply -> Truncate
// pipeline (spec §4.8 "commit(final)").
func (t *Transaction) Commit(final bool) error {
	bs := t.bt.Store()

	if t.stringsDirty {
		strBuf := SerializeStringTable(t.newStrings)
		strPage, err := bs.AllocBlob(uint32(len(strBuf)), uint32(blobstore.KindStringTable))
		if err != nil {
			return err
		}
		if err := bs.WriteBlobPayload(strPage, strBuf); err != nil {
			return err
		}
		t.bt.SetStringTableRef(uint32(strPage))

		keysBuf := SerializeIndexedKeyTable(t.newIndexedKeys)
		keysPage, err := bs.AllocBlob(uint32(len(keysBuf)), uint32(blobstore.KindIndexedKeyTable))
		if err != nil {
			return err
		}
		if err := bs.WriteBlobPayload(keysPage, keysBuf); err != nil {
			return err
		}
		t.bt.SetIndexedKeysRef(uint32(keysPage))
	}

	tileIdxBuf := SerializeTileIndex(t.store.tileIndex)
	tileIdxPage, err := bs.AllocBlob(uint32(len(tileIdxBuf)), uint32(blobstore.KindTileIndex))
	if err != nil {
		return err
	}
	if err := bs.WriteBlobPayload(tileIdxPage, tileIdxBuf); err != nil {
		return err
	}
	t.bt.SetTileIndexRoot(uint32(tileIdxPage))

	if err := t.bt.Commit(); err != nil {
		return err
	}

	for _, f := range t.freed {
		_ = bs.FreeBlob(f.page)
	}
	if t.stringsDirty {
		t.store.strings = t.newStrings
		t.store.indexedKeys = t.newIndexedKeys
		t.store.resolver = NewResolver(t.store.strings, t.store.indexedKeys)
	}
	return nil
}

// Rollback discards the transaction without committing.
func (t *Transaction) Rollback() error {
	return t.bt.Rollback()
}
