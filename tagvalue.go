package geodesk

import (
	"fmt"
	"math"
	"strconv"

	"github.com/clarisma/geodesk-go/internal/tilefmt"
)

// TagValue is a decoded tag value: a feature's `feature[key]` accessor
// result (spec §6), materialized from the tile's two-sided tag table into
// a value safe to hold past the tile's lifetime.
type TagValue struct {
	present bool
	str     string
	isNum   bool
	num     float64
}

// noTagValue is returned for a key the feature does not carry.
var noTagValue = TagValue{}

// IsPresent reports whether the feature actually carries this key.
func (v TagValue) IsPresent() bool { return v.present }

// String returns the value's text form, converting a numeric value with
// strconv the way the teacher's CLI output formatting does (no
// locale-dependent fmt verbs).
func (v TagValue) String() string {
	if !v.present {
		return ""
	}
	if v.isNum {
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return v.str
}

// Float returns the value as a float64 and whether it parsed as a number
// (either because it was stored as one, or because its text parses
// cleanly).
func (v TagValue) Float() (float64, bool) {
	if !v.present {
		return 0, false
	}
	if v.isNum {
		return v.num, true
	}
	f, err := strconv.ParseFloat(v.str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int is shorthand for Float truncated toward zero.
func (v TagValue) Int() (int64, bool) {
	f, ok := v.Float()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// GoString supports %#v debugging output.
func (v TagValue) GoString() string {
	return fmt.Sprintf("geodesk.TagValue{%q}", v.String())
}

// tagValueOf materializes one decoded tilefmt.TagValue into a TagValue,
// resolving string codes via the store's global string table and the tag
// table's own local-string area.
func tagValueOf(tv tilefmt.TagValue, tags tilefmt.TagTablePtr, globalString func(int32) (string, bool)) TagValue {
	switch tv.Kind {
	case tilefmt.ValueGlobalString:
		s, _ := globalString(tv.GlobalCode)
		return TagValue{present: true, str: s}
	case tilefmt.ValueLocalStringPtr:
		return TagValue{present: true, str: tags.LocalString(tv)}
	case tilefmt.ValueNarrowInt, tilefmt.ValueWideInt:
		return TagValue{present: true, isNum: true, num: float64(tv.Int)}
	case tilefmt.ValueDecimal:
		return TagValue{present: true, isNum: true, num: float64(tv.Mantissa) * math.Pow(10, float64(tv.Exponent))}
	default:
		return TagValue{}
	}
}
