package caps

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a field value inside a Structure. Fixed values are Int, Bool,
// String and Fraction; IntRange, FractionRange and List describe sets.
type Value interface {
	String() string
	fixed() bool
}

// Int is a fixed integer value.
type Int int

// Bool is a fixed boolean value.
type Bool bool

// String is a fixed string value.
type String string

// Fraction is a fixed rational value such as a framerate.
type Fraction struct {
	Num, Den int
}

// IntRange is the closed interval [Min, Max].
type IntRange struct {
	Min, Max int
}

// FractionRange is the closed interval [Min, Max].
type FractionRange struct {
	Min, Max Fraction
}

// List is a set of alternatives in preference order.
type List []Value

func (v Int) String() string           { return typed(v) }
func (v Bool) String() string          { return typed(v) }
func (v String) String() string        { return typed(v) }
func (v Fraction) String() string      { return typed(v) }
func (v IntRange) String() string      { return typed(v) }
func (v FractionRange) String() string { return typed(v) }

// String prints a list with a single type cast when all items share a type.
func (v List) String() string {
	common := ""
	for i, item := range v {
		t := typeOf(item)
		if i == 0 {
			common = t
		} else if t != common {
			common = ""
			break
		}
	}

	parts := make([]string, len(v))
	for i, item := range v {
		if common != "" {
			parts[i] = literal(item)
		} else {
			parts[i] = item.String()
		}
	}
	body := "{ " + strings.Join(parts, ", ") + " }"
	if common == "" {
		return body
	}
	return "(" + common + ")" + body
}

func typed(v Value) string {
	return "(" + typeOf(v) + ")" + literal(v)
}

func typeOf(v Value) string {
	switch v.(type) {
	case Int, IntRange:
		return "int"
	case Bool:
		return "boolean"
	case String:
		return "string"
	case Fraction, FractionRange:
		return "fraction"
	default:
		return ""
	}
}

func literal(v Value) string {
	switch tv := v.(type) {
	case Int:
		return strconv.Itoa(int(tv))
	case Bool:
		return strconv.FormatBool(bool(tv))
	case String:
		return quoteIfNeeded(string(tv))
	case Fraction:
		return fmt.Sprintf("%d/%d", tv.Num, tv.Den)
	case IntRange:
		return fmt.Sprintf("[ %d, %d ]", tv.Min, tv.Max)
	case FractionRange:
		return fmt.Sprintf("[ %d/%d, %d/%d ]", tv.Min.Num, tv.Min.Den, tv.Max.Num, tv.Max.Den)
	default:
		return v.String()
	}
}

func (Int) fixed() bool           { return true }
func (Bool) fixed() bool          { return true }
func (String) fixed() bool        { return true }
func (Fraction) fixed() bool      { return true }
func (IntRange) fixed() bool      { return false }
func (FractionRange) fixed() bool { return false }
func (List) fixed() bool          { return false }

// cmp compares two fractions; both denominators are positive after normalize.
func (v Fraction) cmp(o Fraction) int {
	l := int64(v.Num) * int64(o.Den)
	r := int64(o.Num) * int64(v.Den)
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

func (v Fraction) normalize() Fraction {
	if v.Den < 0 {
		return Fraction{Num: -v.Num, Den: -v.Den}
	}
	return v
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " ,;=[]{}()\"") {
		return strconv.Quote(s)
	}
	return s
}

// ValueEqual reports whether two values describe the same set.
func ValueEqual(a, b Value) bool {
	switch av := a.(type) {
	case Fraction:
		bv, ok := b.(Fraction)
		return ok && av.normalize().cmp(bv.normalize()) == 0
	case FractionRange:
		bv, ok := b.(FractionRange)
		return ok && av.Min.cmp(bv.Min) == 0 && av.Max.cmp(bv.Max) == 0
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// IntersectValues returns the values common to a and b. When both sides hold
// alternatives, a's order wins.
func IntersectValues(a, b Value) (Value, bool) {
	if al, ok := a.(List); ok {
		return intersectList(al, b)
	}
	if bl, ok := b.(List); ok {
		// a is not a list, so the result has at most a's shape.
		for _, item := range bl {
			if v, ok := IntersectValues(a, item); ok {
				return v, true
			}
		}
		return nil, false
	}

	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return av, av == bv
		case IntRange:
			return av, int(av) >= bv.Min && int(av) <= bv.Max
		}
	case IntRange:
		switch bv := b.(type) {
		case Int:
			return bv, int(bv) >= av.Min && int(bv) <= av.Max
		case IntRange:
			lo, hi := max(av.Min, bv.Min), min(av.Max, bv.Max)
			switch {
			case lo > hi:
				return nil, false
			case lo == hi:
				return Int(lo), true
			default:
				return IntRange{Min: lo, Max: hi}, true
			}
		}
	case Fraction:
		av = av.normalize()
		switch bv := b.(type) {
		case Fraction:
			return av, av.cmp(bv.normalize()) == 0
		case FractionRange:
			return av, av.cmp(bv.Min) >= 0 && av.cmp(bv.Max) <= 0
		}
	case FractionRange:
		switch bv := b.(type) {
		case Fraction:
			bv = bv.normalize()
			return bv, bv.cmp(av.Min) >= 0 && bv.cmp(av.Max) <= 0
		case FractionRange:
			lo, hi := av.Min, av.Max
			if bv.Min.cmp(lo) > 0 {
				lo = bv.Min
			}
			if bv.Max.cmp(hi) < 0 {
				hi = bv.Max
			}
			switch c := lo.cmp(hi); {
			case c > 0:
				return nil, false
			case c == 0:
				return lo, true
			default:
				return FractionRange{Min: lo, Max: hi}, true
			}
		}
	case Bool, String:
		return a, a == b
	}
	return nil, false
}

func intersectList(a List, b Value) (Value, bool) {
	var out List
	for _, item := range a {
		v, ok := IntersectValues(item, b)
		if !ok {
			continue
		}
		if nested, isList := v.(List); isList {
			for _, n := range nested {
				out = appendUnique(out, n)
			}
			continue
		}
		out = appendUnique(out, v)
	}
	switch len(out) {
	case 0:
		return nil, false
	case 1:
		return out[0], true
	default:
		return out, true
	}
}

func appendUnique(list List, v Value) List {
	for _, existing := range list {
		if ValueEqual(existing, v) {
			return list
		}
	}
	return append(list, v)
}

// fixateValue picks a single fixed value: the lower bound of a range or the
// first alternative of a list.
func fixateValue(v Value) Value {
	switch tv := v.(type) {
	case IntRange:
		return Int(tv.Min)
	case FractionRange:
		return tv.Min
	case List:
		if len(tv) == 0 {
			return tv
		}
		return fixateValue(tv[0])
	default:
		return v
	}
}
