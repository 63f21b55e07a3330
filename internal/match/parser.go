package match

import (
	"strconv"

	"github.com/clarisma/geodesk-go/internal/gderr"
)

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// parser turns a selector expression's token stream into a list of
// parsedSelector terms (spec §4.4: "selectors are OR'd with ',' between
// top-level selectors").
type parser struct {
	lex *lexer
	cur token
}

func parse(expr string) ([]parsedSelector, error) {
	p := &parser{lex: newLexer(expr)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var selectors []parsedSelector
	for {
		sel, err := p.parseSelector()
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, sel)
		if p.cur.kind != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.cur.kind != tokEOF {
		return nil, gderr.New(gderr.BadExpression, "unexpected trailing input").
			WithOffset(int64(p.cur.offset)).WithDetail("token", p.cur.text)
	}
	return selectors, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

// parseSelector parses `Type[clause]...` — and also the type-less
// `[clause]...` shorthand (spec §8 S4's `[amenity=cafe,restaurant]
// [name!=Ada]`, no leading type), which GeoDesk treats as `*` (any type).
func (p *parser) parseSelector() (parsedSelector, error) {
	var sel parsedSelector
	switch p.cur.kind {
	case tokLBracket:
		sel = parsedSelector{typeSpec: "*", offset: p.cur.offset}
	case tokIdent:
		sel = parsedSelector{typeSpec: p.cur.text, offset: p.cur.offset}
		if err := p.advance(); err != nil {
			return parsedSelector{}, err
		}
	default:
		return parsedSelector{}, gderr.New(gderr.BadExpression, "expected a type specifier (n, w, a, r, or *)").
			WithOffset(int64(p.cur.offset))
	}
	for p.cur.kind == tokLBracket {
		clause, err := p.parseClause()
		if err != nil {
			return parsedSelector{}, err
		}
		sel.clauses = append(sel.clauses, clause)
	}
	return sel, nil
}

func (p *parser) parseClause() (parsedClause, error) {
	offset := p.cur.offset
	if err := p.advance(); err != nil { // consume '['
		return parsedClause{}, err
	}
	if p.cur.kind != tokIdent {
		return parsedClause{}, gderr.New(gderr.BadExpression, "expected a key name").
			WithOffset(int64(p.cur.offset))
	}
	clause := parsedClause{key: p.cur.text, offset: offset}
	if err := p.advance(); err != nil {
		return parsedClause{}, err
	}

	if p.cur.kind == tokOp {
		clause.op = p.cur.text
		if err := p.advance(); err != nil {
			return parsedClause{}, err
		}
		for {
			v, err := p.parseValue()
			if err != nil {
				return parsedClause{}, err
			}
			clause.values = append(clause.values, v)
			if p.cur.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return parsedClause{}, err
			}
		}
	}

	if p.cur.kind != tokRBracket {
		return parsedClause{}, gderr.New(gderr.BadExpression, "expected ']'").
			WithOffset(int64(p.cur.offset))
	}
	return clause, p.advance()
}

func (p *parser) parseValue() (parsedValue, error) {
	switch p.cur.kind {
	case tokNumber:
		v := parsedValue{isNumber: true}
		var err error
		v.num, err = parseFloat(p.cur.text)
		if err != nil {
			return parsedValue{}, gderr.New(gderr.BadExpression, "malformed number").
				WithOffset(int64(p.cur.offset)).WithDetail("token", p.cur.text)
		}
		return v, p.advance()
	case tokString, tokIdent:
		v := parsedValue{str: p.cur.text}
		return v, p.advance()
	default:
		return parsedValue{}, gderr.New(gderr.BadExpression, "expected a value").
			WithOffset(int64(p.cur.offset))
	}
}
