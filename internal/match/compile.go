// Package match compiles a tag-expression selector string into a
// Matcher: a compiled, immutable, reference-shareable evaluator the
// query executor runs once per candidate feature (spec §4.4). To avoid
// an import cycle with the store package that owns the global string
// table and indexed-key table, match never imports that package;
// instead it depends on the narrow Resolver interface below, which
// gdstore's concrete types satisfy structurally.
package match

import (
	"strings"

	"github.com/clarisma/geodesk-go/internal/gderr"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
)

// Resolver looks up global-string codes and indexed-key bit positions.
// A store's StringTable and IndexedKeyTable each satisfy the relevant
// half of this interface by method signature alone.
type Resolver interface {
	Lookup(s string) (int32, bool)
	String(code int32) (string, bool)
	BitFor(key string) (uint8, bool)
}

// Feature type/area bits, the "acceptedTypes" bitset of spec §4.4.
const (
	AcceptNode FeatureMask = 1 << iota
	AcceptWay
	AcceptArea
	AcceptRelation
)

// FeatureMask is a bitset over {node, way, area, relation}.
type FeatureMask uint8

// MaskFor computes the feature mask for one decoded feature, given its
// basic type and whether its AREA flag is set (an area is not a fourth
// type — spec Glossary).
func MaskFor(t tilefmt.FeatureType, isArea bool) FeatureMask {
	switch t {
	case tilefmt.TypeNode:
		return AcceptNode
	case tilefmt.TypeWay:
		if isArea {
			return AcceptWay | AcceptArea
		}
		return AcceptWay
	case tilefmt.TypeRelation:
		if isArea {
			return AcceptRelation | AcceptArea
		}
		return AcceptRelation
	default:
		return 0
	}
}

func parseTypeSpec(spec string, offset int) (FeatureMask, error) {
	var mask FeatureMask
	for _, r := range spec {
		switch r {
		case '*':
			mask |= AcceptNode | AcceptWay | AcceptArea | AcceptRelation
		case 'n':
			mask |= AcceptNode
		case 'w':
			mask |= AcceptWay
		case 'a':
			mask |= AcceptArea
		case 'r':
			mask |= AcceptRelation
		default:
			return 0, gderr.New(gderr.BadExpression, "unknown type specifier").
				WithOffset(int64(offset)).WithDetail("token", string(r))
		}
	}
	if mask == 0 {
		return 0, gderr.New(gderr.BadExpression, "empty type specifier").WithOffset(int64(offset))
	}
	return mask, nil
}

// clauseValue is a compiled literal: resolved to a global-string code
// when the resolver recognizes it, kept as raw text/number otherwise
// (spec §4.4: "Value lists compile to a sorted search over global-string
// codes plus a linear scan over local strings").
type clauseValue struct {
	isNumber   bool
	num        float64
	str        string
	globalCode int32 // -1 if str is not an interned global string
}

// clause is one compiled `[key op values]` term.
type clause struct {
	keyCode  int32 // >= 0: global key code
	localKey string // used when keyCode < 0
	op       string // "" marks the presence-check form
	values   []clauseValue
}

// Selector is one compiled OR-term: a type mask plus an AND-chain of
// clauses (spec §4.4 compile output).
type Selector struct {
	acceptedTypes FeatureMask
	indexBits     uint32
	clauses       []clause
}

// Matcher is the compiled form of a full tag-expression string: an OR of
// Selectors, immutable and safe to share across concurrent queries (spec
// §4.8 "Matcher compiled-object lifetime").
type Matcher struct {
	selectors      []Selector
	indexBits      uint32 // union across all selectors
	source         string
	yesCode, noCode int32 // interned codes for "yes"/"no" truthiness; -1 if not interned
}

// AcceptAll is the matcher for the empty/"*" expression: every feature
// of every type passes.
var AcceptAll = &Matcher{
	selectors: []Selector{{acceptedTypes: AcceptNode | AcceptWay | AcceptArea | AcceptRelation}},
	yesCode:   -1, noCode: -1,
}

// IndexBits returns the union of every selector's index-pruning mask,
// zero meaning "no index-based pruning is possible for this matcher".
func (m *Matcher) IndexBits() uint32 { return m.indexBits }

// AcceptedTypes returns the union of every selector's accepted-type
// mask: the superset of feature kinds this matcher could ever accept,
// used by the query executor to decide which of a tile's spatial indexes
// are worth scanning (spec §4.5, §4.7).
func (m *Matcher) AcceptedTypes() FeatureMask {
	var mask FeatureMask
	for _, sel := range m.selectors {
		mask |= sel.acceptedTypes
	}
	return mask
}

// Source returns the original expression the matcher was compiled from.
func (m *Matcher) Source() string { return m.source }

// Compile parses and compiles a selector expression against resolver.
func Compile(expr string, resolver Resolver) (*Matcher, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" || trimmed == "*" {
		return AcceptAll, nil
	}
	parsed, err := parse(trimmed)
	if err != nil {
		return nil, err
	}
	m := &Matcher{source: expr, yesCode: -1, noCode: -1}
	if code, ok := resolver.Lookup("yes"); ok {
		m.yesCode = code
	}
	if code, ok := resolver.Lookup("no"); ok {
		m.noCode = code
	}
	for _, ps := range parsed {
		sel, err := compileSelector(ps, resolver)
		if err != nil {
			return nil, err
		}
		m.selectors = append(m.selectors, sel)
		m.indexBits |= sel.indexBits
	}
	return m, nil
}

func compileSelector(ps parsedSelector, resolver Resolver) (Selector, error) {
	mask, err := parseTypeSpec(ps.typeSpec, ps.offset)
	if err != nil {
		return Selector{}, err
	}
	sel := Selector{acceptedTypes: mask}
	for _, pc := range ps.clauses {
		c, err := compileClause(pc, resolver)
		if err != nil {
			return Selector{}, err
		}
		sel.clauses = append(sel.clauses, c)
		if bit, ok := resolver.BitFor(pc.key); ok {
			sel.indexBits |= 1 << bit
		}
	}
	return sel, nil
}

func compileClause(pc parsedClause, resolver Resolver) (clause, error) {
	c := clause{keyCode: -1, localKey: pc.key, op: pc.op}
	if code, ok := resolver.Lookup(pc.key); ok {
		c.keyCode = code
	}
	for _, pv := range pc.values {
		cv := clauseValue{isNumber: pv.isNumber, num: pv.num, str: pv.str, globalCode: -1}
		if !pv.isNumber {
			if code, ok := resolver.Lookup(pv.str); ok {
				cv.globalCode = code
			}
		}
		c.values = append(c.values, cv)
	}
	return c, nil
}
