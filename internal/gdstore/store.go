package gdstore

import (
	"sync"

	"github.com/clarisma/geodesk-go/internal/blobstore"
	"github.com/clarisma/geodesk-go/internal/gderr"
	"github.com/clarisma/geodesk-go/internal/match"
	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/properties"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
	"go.uber.org/zap"
)

// Options configures a Store, following the functional-options shape used
// throughout this module (SPEC_FULL.md §4.0 "Configuration").
type Options struct {
	Logger        *zap.SugaredLogger
	MatcherCache  int // max compiled matchers cached; 0 disables the cache
	BlobStoreOpts []blobstore.Option
}

// Option mutates Options during construction.
type Option func(*Options)

// WithLogger injects a structured logger; defaults to a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMatcherCacheSize bounds the number of compiled matchers a Store
// keeps around (spec §4.2 "getMatcher(expr)", §5 "matcher cache ...
// guarded by a short critical section; compiled matchers are immutable
// and reference-counted" — this port drops reference counting since Go's
// GC already reclaims an evicted *match.Matcher once no query holds it).
func WithMatcherCacheSize(n int) Option {
	return func(o *Options) { o.MatcherCache = n }
}

func defaultOptions() Options {
	return Options{Logger: zap.NewNop().Sugar(), MatcherCache: 256}
}

// Store is a FeatureStore: a BlobStore specialized with GOL metadata —
// GUID, revision, the tile index, global string table, indexed-key
// table, and properties (spec §4.2).
type Store struct {
	bs   *blobstore.BlobStore
	log  *zap.SugaredLogger

	tileIndex   *TileIndex
	strings     *StringTable
	indexedKeys *IndexedKeyTable
	props       *properties.Properties
	resolver    Resolver

	matcherMu    sync.Mutex
	matcherCache map[string]*match.Matcher
	matcherCap   int
}

// OpenSingle opens a single GOL file read-only and loads its metadata
// blobs (spec §4.2 "openSingle(path)").
func OpenSingle(path string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	bs, err := blobstore.Open(path, blobstore.ReadOnly, append(o.BlobStoreOpts, blobstore.WithLogger(o.Logger))...)
	if err != nil {
		return nil, err
	}
	s := &Store{bs: bs, log: o.Logger, matcherCache: make(map[string]*match.Matcher), matcherCap: o.MatcherCache}
	if err := s.loadMetadata(); err != nil {
		bs.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadMetadata() error {
	h := s.bs.Header()

	strTable := NewStringTable(nil)
	if h.StringTableBlobRef != 0 {
		payload, _, err := s.bs.ReadBlob(blobstore.PageNum(h.StringTableBlobRef))
		if err != nil {
			return err
		}
		strTable, err = DeserializeStringTable(payload)
		if err != nil {
			return err
		}
	}
	s.strings = strTable

	idxKeys := NewIndexedKeyTable(nil)
	if h.IndexedKeysBlobRef != 0 {
		payload, _, err := s.bs.ReadBlob(blobstore.PageNum(h.IndexedKeysBlobRef))
		if err != nil {
			return err
		}
		idxKeys, err = DeserializeIndexedKeyTable(payload)
		if err != nil {
			return err
		}
	}
	s.indexedKeys = idxKeys
	s.resolver = NewResolver(s.strings, s.indexedKeys)

	tileIdx := NewTileIndex()
	if h.TileIndexRoot != 0 {
		payload, _, err := s.bs.ReadBlob(blobstore.PageNum(h.TileIndexRoot))
		if err != nil {
			return err
		}
		tileIdx, err = DeserializeTileIndex(payload)
		if err != nil {
			return err
		}
	}
	s.tileIndex = tileIdx

	props := properties.New()
	if h.PropertiesBlobRef != 0 {
		payload, _, err := s.bs.ReadBlob(blobstore.PageNum(h.PropertiesBlobRef))
		if err != nil {
			return err
		}
		props, err = properties.Parse(payload)
		if err != nil {
			return err
		}
	}
	s.props = props
	return nil
}

// Close releases the underlying BlobStore.
func (s *Store) Close() error {
	return s.bs.Close()
}

// GUID returns the dataset's unique identifier (spec §3.1): a Key
// obtained from one store is undefined for another.
func (s *Store) GUID() [16]byte { return s.bs.Header().GUID }

// Revision returns the store's current revision number.
func (s *Store) Revision() uint32 { return s.bs.Header().Revision }

// RevisionTimestamp returns the UnixNano timestamp of the current revision.
func (s *Store) RevisionTimestamp() int64 { return s.bs.Header().RevisionTimestamp }

// Properties exposes the store's settings blob.
func (s *Store) Properties() *properties.Properties { return s.props }

// LookupKey resolves a tag key string to a Key, interning its global code
// if the store recognizes it (spec §4.2 "lookupKey(str) -> Key").
func (s *Store) LookupKey(str string) Key {
	code, ok := s.strings.Lookup(str)
	if !ok {
		return Key{Name: str, Code: -1}
	}
	return Key{Name: str, Code: code}
}

// GetGlobalString resolves a global string code back to text (spec §4.2
// "getGlobalString(code)").
func (s *Store) GetGlobalString(code int32) (string, bool) {
	return s.strings.String(code)
}

// BorrowAllMatcher returns the shared "accept everything" matcher (spec
// §4.2 "borrowAllMatcher()").
func (s *Store) BorrowAllMatcher() *match.Matcher { return match.AcceptAll }

// GetMatcher compiles (or returns a cached compilation of) a tag
// expression against this store's string and indexed-key tables (spec
// §4.2 "getMatcher(expr)"). The cache is guarded by a short critical
// section per spec §5; compiled matchers are immutable so no copying is
// needed on a cache hit.
func (s *Store) GetMatcher(expr string) (*match.Matcher, error) {
	if s.matcherCap > 0 {
		s.matcherMu.Lock()
		if m, ok := s.matcherCache[expr]; ok {
			s.matcherMu.Unlock()
			return m, nil
		}
		s.matcherMu.Unlock()
	}

	m, err := match.Compile(expr, s.resolver)
	if err != nil {
		return nil, err
	}

	if s.matcherCap > 0 {
		s.matcherMu.Lock()
		if len(s.matcherCache) >= s.matcherCap {
			// Simple unbounded-growth guard: evict an arbitrary entry
			// rather than tracking LRU order, since matcher compilation
			// is cheap relative to a query and cache misses are rare in
			// practice (expressions are reused across many queries).
			for k := range s.matcherCache {
				delete(s.matcherCache, k)
				break
			}
		}
		s.matcherCache[expr] = m
		s.matcherMu.Unlock()
	}
	return m, nil
}

// TilesIntersecting returns every currently-loaded TIP whose bounds
// intersect bbox, in ascending TIP order (spec §4.7 step 1).
func (s *Store) TilesIntersecting(bbox mercator.Bounds) []TIP {
	return s.tileIndex.TilesIntersecting(bbox)
}

// LoadTile resolves a TIP to its decoded tile payload via a single lookup
// against the tile index (spec §4.6: "a single atomic load"). ok is false
// (with a nil error) when the tile's status is MISSING_OR_STALE — the
// caller treats the tile as empty rather than erroring (spec §7
// "StaleTile ... query skips the tile, no error to caller").
func (s *Store) LoadTile(tip TIP) (tilefmt.TilePtr, bool, error) {
	entry, ok := s.tileIndex.Get(tip)
	if !ok || !entry.IsLoadedAndCurrent() {
		return tilefmt.TilePtr{}, false, nil
	}
	payload, _, err := s.bs.ReadBlob(blobstore.PageNum(entry.Page()))
	if err != nil {
		return tilefmt.TilePtr{}, false, err
	}
	return tilefmt.NewTilePtr(payload), true, nil
}

// AllTiles returns every tile the index tracks, in ascending TIP order,
// regardless of bbox — used by the checker's exhaustive sweep (spec
// §4.10) where a spatial filter would be wrong.
func (s *Store) AllTiles() []TIP {
	return s.tileIndex.Snapshot()
}

// IndexedKeys exposes the store's indexed-key table (the pruning bit
// assignment used to compute a matcher's indexBits, spec §3.5/§4.4).
func (s *Store) IndexedKeys() *IndexedKeyTable { return s.indexedKeys }

// ensureWritable is a small guard shared by the updater (transaction.go).
func (s *Store) ensureWritable() error {
	if s.bs == nil {
		return gderr.New(gderr.Io, "store is closed")
	}
	return nil
}
