package caps

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/c360/zipstage/errors"
)

// Parse reads caps in the textual form used by String, e.g.
//
//	video/x-raw, format=(string){ RGBA, BGRA }, width=(int)[ 1, 4096 ]; image/png
//
// Untyped scalars are inferred: integers, n/d fractions, true/false, then strings.
func Parse(s string) (Caps, error) {
	trimmed := strings.TrimSpace(s)
	switch trimmed {
	case "ANY":
		return Any(), nil
	case "EMPTY", "NONE", "":
		return Empty(), nil
	}

	p := &parser{src: trimmed}
	var out Caps
	for {
		st, err := p.structure()
		if err != nil {
			return Caps{}, errors.WrapInvalid(err, "caps", "Parse", fmt.Sprintf("parse %q", s))
		}
		out.structures = append(out.structures, st)

		p.skipSpace()
		if p.eof() {
			return out, nil
		}
		if !p.consume(';') {
			return Caps{}, errors.WrapInvalid(p.errorf("expected ';'"), "caps", "Parse", fmt.Sprintf("parse %q", s))
		}
		p.skipSpace()
		if p.eof() {
			return out, nil
		}
	}
}

// MustParse is Parse for static declarations; it panics on error.
func MustParse(s string) Caps {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) consume(c byte) bool {
	p.skipSpace()
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", errors.ErrParsingFailed, p.pos, fmt.Sprintf(format, args...))
}

// token reads up to the next delimiter.
func (p *parser) token() string {
	p.skipSpace()
	start := p.pos
	for !p.eof() && !strings.ContainsRune(",;=[]{}()", rune(p.src[p.pos])) {
		p.pos++
	}
	return strings.TrimSpace(p.src[start:p.pos])
}

func (p *parser) structure() (Structure, error) {
	name := p.token()
	if name == "" {
		return Structure{}, p.errorf("missing structure name")
	}
	st := NewStructure(name)

	for {
		p.skipSpace()
		if p.eof() || p.peek() == ';' {
			return st, nil
		}
		if !p.consume(',') {
			return Structure{}, p.errorf("expected ',' after %q", name)
		}
		field := p.token()
		if field == "" {
			return Structure{}, p.errorf("missing field name")
		}
		if !p.consume('=') {
			return Structure{}, p.errorf("expected '=' after field %q", field)
		}
		v, err := p.value("")
		if err != nil {
			return Structure{}, err
		}
		st = st.With(field, v)
	}
}

func (p *parser) value(typ string) (Value, error) {
	p.skipSpace()
	if p.consume('(') {
		typ = p.token()
		if !p.consume(')') {
			return nil, p.errorf("unterminated type cast")
		}
		p.skipSpace()
	}

	switch p.peek() {
	case '[':
		p.pos++
		lo, err := p.value(typ)
		if err != nil {
			return nil, err
		}
		if !p.consume(',') {
			return nil, p.errorf("expected ',' in range")
		}
		hi, err := p.value(typ)
		if err != nil {
			return nil, err
		}
		if !p.consume(']') {
			return nil, p.errorf("expected ']'")
		}
		return makeRange(lo, hi, p)
	case '{':
		p.pos++
		var list List
		for {
			item, err := p.value(typ)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
			if p.consume('}') {
				return list, nil
			}
			if !p.consume(',') {
				return nil, p.errorf("expected ',' or '}' in list")
			}
		}
	case '"':
		raw, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return scalar(raw, typ, true, p)
	default:
		raw := p.token()
		if raw == "" {
			return nil, p.errorf("missing value")
		}
		return scalar(raw, typ, false, p)
	}
}

func (p *parser) quoted() (string, error) {
	start := p.pos
	p.pos++
	for !p.eof() {
		switch p.src[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case '"':
			p.pos++
			return strconv.Unquote(p.src[start:p.pos])
		}
		p.pos++
	}
	return "", p.errorf("unterminated string")
}

func scalar(raw, typ string, quoted bool, p *parser) (Value, error) {
	switch typ {
	case "string", "str", "s":
		return String(raw), nil
	case "int", "i":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, p.errorf("invalid int %q", raw)
		}
		return Int(n), nil
	case "boolean", "bool", "b":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, p.errorf("invalid boolean %q", raw)
		}
		return Bool(b), nil
	case "fraction":
		f, ok := parseFraction(raw)
		if !ok {
			return nil, p.errorf("invalid fraction %q", raw)
		}
		return f, nil
	case "":
	default:
		return nil, p.errorf("unsupported type %q", typ)
	}

	if quoted {
		return String(raw), nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return Int(n), nil
	}
	if f, ok := parseFraction(raw); ok {
		return f, nil
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return Bool(b), nil
	}
	return String(raw), nil
}

func parseFraction(raw string) (Fraction, bool) {
	num, den, ok := strings.Cut(raw, "/")
	if !ok {
		return Fraction{}, false
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(num))
	d, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil || d == 0 {
		return Fraction{}, false
	}
	return Fraction{Num: n, Den: d}.normalize(), true
}

func makeRange(lo, hi Value, p *parser) (Value, error) {
	switch l := lo.(type) {
	case Int:
		h, ok := hi.(Int)
		if !ok || h < l {
			return nil, p.errorf("invalid int range")
		}
		return IntRange{Min: int(l), Max: int(h)}, nil
	case Fraction:
		h, ok := hi.(Fraction)
		if !ok || h.cmp(l) < 0 {
			return nil, p.errorf("invalid fraction range")
		}
		return FractionRange{Min: l, Max: h}, nil
	}
	return nil, p.errorf("ranges need int or fraction bounds")
}
