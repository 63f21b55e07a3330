package match

import "github.com/clarisma/geodesk-go/internal/tilefmt"

// Accept evaluates the matcher against one feature's type/area bits and
// tag table, returning true the first selector both accepts the
// feature's type and whose clauses all pass (spec §4.4: "Selectors OR
// into a single evaluator ... within a selector, clauses AND via
// sequential dependence").
func (m *Matcher) Accept(featureMask FeatureMask, tags tilefmt.TagTablePtr) bool {
	for _, sel := range m.selectors {
		if sel.acceptedTypes&featureMask == 0 {
			continue
		}
		if m.evalClauses(sel, tags) {
			return true
		}
	}
	return false
}

func (m *Matcher) evalClauses(sel Selector, tags tilefmt.TagTablePtr) bool {
	for _, c := range sel.clauses {
		if !m.eval(c, tags) {
			return false
		}
	}
	return true
}

func (c clause) lookup(tags tilefmt.TagTablePtr) (tilefmt.TagValue, bool) {
	if c.keyCode >= 0 {
		return tags.Get(c.keyCode)
	}
	return tags.GetLocal(c.localKey)
}

// eval runs one clause against tags. The bare `[key]` form (op == "") is
// a presence check (spec §4.4's `LOAD_KEY` rule: "if tag missing: jump
// false-next" — absence rejects, presence continues to ACCEPT) and
// passes iff the key is present.
func (m *Matcher) eval(c clause, tags tilefmt.TagTablePtr) bool {
	val, present := c.lookup(tags)
	if c.op == "" {
		return present
	}
	if !present {
		return false
	}

	switch c.op {
	case "=":
		for _, v := range c.values {
			if m.valueEquals(v, val, tags) {
				return true
			}
		}
		return false
	case "!=":
		for _, v := range c.values {
			if m.valueEquals(v, val, tags) {
				return false
			}
		}
		return true
	case "<", "<=", ">", ">=":
		num, isNum := m.numericOf(val, tags)
		if !isNum || len(c.values) != 1 || !c.values[0].isNumber {
			return false
		}
		return compareNum(c.op, num, c.values[0].num)
	default:
		return false
	}
}

// valueEquals compares a compiled literal against a decoded tag value.
// Global-string values compare by interned code (spec §4.4: "Value lists
// compile to a sorted search over global-string codes"), sidestepping a
// text lookup entirely; local-string values compare by text. Numeric
// kinds compare as numbers, with "yes"/"no" accepted as 1/0 truthiness
// against a numeric literal on either side (spec §4.4).
func (m *Matcher) valueEquals(cv clauseValue, val tilefmt.TagValue, tags tilefmt.TagTablePtr) bool {
	switch val.Kind {
	case tilefmt.ValueGlobalString:
		if cv.isNumber {
			n, ok := m.globalTruthiness(val.GlobalCode)
			return ok && n == cv.num
		}
		return cv.globalCode >= 0 && cv.globalCode == val.GlobalCode
	case tilefmt.ValueLocalStringPtr:
		s := tags.LocalString(val)
		if cv.isNumber {
			n, ok := truthiness(s)
			return ok && n == cv.num
		}
		return s == cv.str
	case tilefmt.ValueNarrowInt, tilefmt.ValueWideInt, tilefmt.ValueDecimal:
		num, _ := m.numericOf(val, tags)
		if cv.isNumber {
			return num == cv.num
		}
		if n, ok := truthiness(cv.str); ok {
			return n == num
		}
		return false
	default:
		return false
	}
}

func (m *Matcher) numericOf(val tilefmt.TagValue, tags tilefmt.TagTablePtr) (float64, bool) {
	switch val.Kind {
	case tilefmt.ValueNarrowInt, tilefmt.ValueWideInt:
		return float64(val.Int), true
	case tilefmt.ValueDecimal:
		return decimalToFloat(val.Mantissa, val.Exponent), true
	case tilefmt.ValueLocalStringPtr:
		return truthiness(tags.LocalString(val))
	case tilefmt.ValueGlobalString:
		return m.globalTruthiness(val.GlobalCode)
	default:
		return 0, false
	}
}

func (m *Matcher) globalTruthiness(code int32) (float64, bool) {
	if m.yesCode >= 0 && code == m.yesCode {
		return 1, true
	}
	if m.noCode >= 0 && code == m.noCode {
		return 0, true
	}
	return 0, false
}

func truthiness(s string) (float64, bool) {
	switch s {
	case "yes":
		return 1, true
	case "no":
		return 0, true
	default:
		return 0, false
	}
}

func decimalToFloat(mantissa int32, exponent int8) float64 {
	f := float64(mantissa)
	e := int(exponent)
	for ; e > 0; e-- {
		f *= 10
	}
	for ; e < 0; e++ {
		f /= 10
	}
	return f
}

func compareNum(op string, lhs, rhs float64) bool {
	switch op {
	case "<":
		return lhs < rhs
	case "<=":
		return lhs <= rhs
	case ">":
		return lhs > rhs
	case ">=":
		return lhs >= rhs
	}
	return false
}
