// Package geodesk is an embedded library for querying OpenStreetMap
// features from a Geographic Object Library (GOL) file: open a store,
// refine a FeatureSet by tag expression, bounding box, geometric filter
// or feature relationship, and iterate matches (spec §1, §6).
package geodesk

import (
	"github.com/clarisma/geodesk-go/internal/gdstore"
	"go.uber.org/zap"
)

// Option configures an Open call, following the functional-options shape
// used throughout the underlying store layer.
type Option func(*gdstore.Options)

// WithLogger injects a structured logger used for store diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *gdstore.Options) { gdstore.WithLogger(l)(o) }
}

// WithMatcherCacheSize bounds how many compiled tag-expression matchers
// a Store keeps around.
func WithMatcherCacheSize(n int) Option {
	return func(o *gdstore.Options) { gdstore.WithMatcherCacheSize(n)(o) }
}

// Store is an open handle on a GOL file (spec §4.2 FeatureStore).
type Store struct {
	s *gdstore.Store
}

// Open opens path read-only and loads its metadata (spec §6 "Features(path)").
func Open(path string, opts ...Option) (*Store, error) {
	var gopts []gdstore.Option
	for _, fn := range opts {
		gopts = append(gopts, gdstore.Option(fn))
	}
	s, err := gdstore.OpenSingle(path, gopts...)
	if err != nil {
		return nil, err
	}
	return &Store{s: s}, nil
}

// Close releases the store's underlying resources.
func (st *Store) Close() error { return st.s.Close() }

// GUID returns the dataset's unique identifier.
func (st *Store) GUID() [16]byte { return st.s.GUID() }

// Revision returns the store's current revision number.
func (st *Store) Revision() uint32 { return st.s.Revision() }

// Features returns an unfiltered FeatureSet bound to this store (spec §6
// "Features(path)"); chain Select/In/Where/MembersOf/ParentsOf/NodesOf to
// refine it before iterating.
func (st *Store) Features() *FeatureSet {
	return &FeatureSet{store: st}
}
