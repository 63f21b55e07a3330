package tilefmt

import (
	"github.com/clarisma/geodesk-go/internal/varint"
)

// RelationPtr is a FeaturePtr known to be a relation (spec §3.3).
type RelationPtr struct{ FeaturePtr }

// AsRelation wraps a FeaturePtr as a RelationPtr; the caller must have
// already checked p.IsRelation().
func AsRelation(p FeaturePtr) RelationPtr { return RelationPtr{p} }

// memberLastFlag / memberHasRoleFlag mark bits of a relation member
// entry's leading varint-encoded word (spec §3.3: "repeated member
// entries carrying a tagged reference ... and an optional role").
const (
	memberLastFlag    = 1 << 0
	memberHasRoleFlag = 1 << 1
)

// Member is one decoded relation member entry.
type Member struct {
	FeatureOffset uint32 // tile-local offset of the member feature
	Type          FeatureType
	Role          string // "" if the member carries no role
}

// MemberIterator walks a relation's member table (spec §3.3, grounded on
// the source's FastMemberIterator/AreaMemberIterator). A role is encoded
// as a following varint global-string code, resolved through stringsOf;
// local-string roles are not supported.
type MemberIterator struct {
	tile      []byte
	pos       int
	done      bool
	err       error
	stringsOf func(code int32) (string, bool)
}

// NewMemberIterator starts an iterator over r's member table. stringsOf
// resolves a global string code to text for role decoding; pass nil to
// get raw (possibly empty) roles back as "".
func NewMemberIterator(r RelationPtr, stringsOf func(code int32) (string, bool)) *MemberIterator {
	return &MemberIterator{tile: r.Body(), stringsOf: stringsOf}
}

// Err returns the first decode error encountered, if any.
func (it *MemberIterator) Err() error { return it.err }

// Next advances the iterator, returning the next member in storage
// order (spec Testable Scenario S3: "members() returns [...] in member
// order").
func (it *MemberIterator) Next() (Member, bool) {
	if it.err != nil || it.done {
		return Member{}, false
	}
	word, n, err := varint.SafeUvarint(it.tile, it.pos, len(it.tile))
	if err != nil {
		it.err = err
		return Member{}, false
	}
	last := word&memberLastFlag != 0
	hasRole := word&memberHasRoleFlag != 0
	typ := FeatureType((word >> 2) & 3)
	offset := uint32(word >> 4)
	it.pos = n

	var role string
	if hasRole {
		code, n2, err := varint.SafeUvarint(it.tile, it.pos, len(it.tile))
		if err != nil {
			it.err = err
			return Member{}, false
		}
		it.pos = n2
		if it.stringsOf != nil {
			role, _ = it.stringsOf(int32(code))
		}
	}
	if last {
		it.done = true
	}
	return Member{FeatureOffset: offset, Type: typ, Role: role}, true
}

// All collects every member in storage order.
func (it *MemberIterator) All() ([]Member, error) {
	var out []Member
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, m)
	}
	return out, it.Err()
}

// AreaMembers filters a multipolygon relation's members down to ways
// with role "outer" or "inner" (spec §9 Glossary, grounded on the
// source's AreaMemberIterator). Returns an empty slice for a relation
// that is not an area (spec S3: "AreaMemberIterator on a non-multipolygon
// relation returns []").
func AreaMembers(r RelationPtr, stringsOf func(code int32) (string, bool)) ([]Member, error) {
	if !r.IsArea() {
		return nil, nil
	}
	all, err := NewMemberIterator(r, stringsOf).All()
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(all))
	for _, m := range all {
		if m.Type == TypeWay && (m.Role == "outer" || m.Role == "inner") {
			out = append(out, m)
		}
	}
	return out, nil
}

// memberTableByteSize returns how many body bytes the member table
// occupies, so callers can locate the relation-membership table that
// follows it.
func memberTableByteSize(body []byte) (int, error) {
	pos := 0
	for {
		word, n, err := varint.SafeUvarint(body, pos, len(body))
		if err != nil {
			return 0, err
		}
		pos = n
		if word&memberHasRoleFlag != 0 {
			_, n2, err := varint.SafeUvarint(body, pos, len(body))
			if err != nil {
				return 0, err
			}
			pos = n2
		}
		if word&memberLastFlag != 0 {
			return pos, nil
		}
	}
}

// Relations returns the relation's own parent-relation table (relations
// can themselves be members of other relations), valid only when
// HasRelations() is true.
func (r RelationPtr) Relations() (RelationTablePtr, error) {
	trailer, err := memberTableByteSize(r.Body())
	if err != nil {
		return RelationTablePtr{}, err
	}
	return NewRelationTablePtr(r.tileBytes(), r.BodyOffset()+uint32(trailer)), nil
}

// RelationTablePtr is a borrowed view of a feature's relation-membership
// table: the list of relations a node/way/relation belongs to, used to
// implement ParentRelationIterator. Encoded as a sequence of varint
// relation-feature offsets terminated by a zero-length table or a
// last-entry flag on the final offset's low bit.
type RelationTablePtr struct {
	tile []byte
	off  uint32
}

// NewRelationTablePtr constructs a view at the given offset.
func NewRelationTablePtr(tile []byte, off uint32) RelationTablePtr {
	return RelationTablePtr{tile: tile, off: off}
}

// ParentRelationIterator walks a feature's relation-membership table.
type ParentRelationIterator struct {
	tile      []byte
	pos       int
	done      bool
	err       error
}

// NewParentRelationIterator starts an iterator over t.
func NewParentRelationIterator(t RelationTablePtr) *ParentRelationIterator {
	return &ParentRelationIterator{tile: t.tile, pos: int(t.off)}
}

// Err returns the first decode error encountered, if any.
func (it *ParentRelationIterator) Err() error { return it.err }

// Next returns the tile-local offset of the next parent relation.
func (it *ParentRelationIterator) Next() (uint32, bool) {
	if it.err != nil || it.done {
		return 0, false
	}
	word, n, err := varint.SafeUvarint(it.tile, it.pos, len(it.tile))
	if err != nil {
		it.err = err
		return 0, false
	}
	it.pos = n
	if word&1 != 0 {
		it.done = true
	}
	return uint32(word >> 1), true
}

// RecursionGuard prevents unbounded descent through a cycle of relation
// memberships (spec §7 RecursionCycle, §9 "a per-traversal recursion set
// keyed on feature id + type ... a hash-set, not a global").
type RecursionGuard struct {
	parent uint64
	seen   map[uint64]struct{}
}

// NewRecursionGuard creates a guard rooted at the given parent relation.
func NewRecursionGuard(parent RelationPtr) *RecursionGuard {
	return &RecursionGuard{parent: relGuardKey(parent), seen: make(map[uint64]struct{})}
}

func relGuardKey(r RelationPtr) uint64 {
	return r.ID()<<2 | uint64(r.Type())
}

// CheckAndAdd reports whether child may be descended into: false if it
// equals the guard's root or has already been visited in this traversal.
func (g *RecursionGuard) CheckAndAdd(child RelationPtr) bool {
	key := relGuardKey(child)
	if key == g.parent {
		return false
	}
	if _, seen := g.seen[key]; seen {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}
