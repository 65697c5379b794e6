// Package caps models media format descriptors: an ordered set of named
// structures whose fields hold fixed values, ranges, or lists of alternatives.
// It answers the intersections and fixations needed for format negotiation.
package caps

import (
	"strings"
)

// Field is one named entry of a Structure.
type Field struct {
	Name  string
	Value Value
}

// Structure is a media type name with ordered fields, e.g.
// video/x-raw, format=(string)RGBA, width=(int)640.
type Structure struct {
	Name   string
	Fields []Field
}

// NewStructure creates a structure with the given media type name.
func NewStructure(name string) Structure {
	return Structure{Name: name}
}

// With returns a copy of s with field set to v, replacing an existing field
// in place or appending a new one.
func (s Structure) With(field string, v Value) Structure {
	out := s.clone()
	for i := range out.Fields {
		if out.Fields[i].Name == field {
			out.Fields[i].Value = v
			return out
		}
	}
	out.Fields = append(out.Fields, Field{Name: field, Value: v})
	return out
}

// Get returns the value of field.
func (s Structure) Get(field string) (Value, bool) {
	for _, f := range s.Fields {
		if f.Name == field {
			return f.Value, true
		}
	}
	return nil, false
}

// IsFixed reports whether every field holds a single value.
func (s Structure) IsFixed() bool {
	for _, f := range s.Fields {
		if !f.Value.fixed() {
			return false
		}
	}
	return true
}

// Equal compares name and fields, including field order.
func (s Structure) Equal(o Structure) bool {
	if s.Name != o.Name || len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != o.Fields[i].Name || !ValueEqual(s.Fields[i].Value, o.Fields[i].Value) {
			return false
		}
	}
	return true
}

func (s Structure) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	for _, f := range s.Fields {
		b.WriteString(", ")
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(f.Value.String())
	}
	return b.String()
}

func (s Structure) clone() Structure {
	out := Structure{Name: s.Name}
	if len(s.Fields) > 0 {
		out.Fields = make([]Field, len(s.Fields))
		copy(out.Fields, s.Fields)
	}
	return out
}

// intersect merges two structures with matching names. Fields follow a's
// order, then the fields only b has, in b's order.
func (s Structure) intersect(o Structure) (Structure, bool) {
	if s.Name != o.Name {
		return Structure{}, false
	}

	out := Structure{Name: s.Name}
	for _, f := range s.Fields {
		ov, ok := o.Get(f.Name)
		if !ok {
			out.Fields = append(out.Fields, f)
			continue
		}
		v, ok := IntersectValues(f.Value, ov)
		if !ok {
			return Structure{}, false
		}
		out.Fields = append(out.Fields, Field{Name: f.Name, Value: v})
	}
	for _, f := range o.Fields {
		if _, ok := s.Get(f.Name); !ok {
			out.Fields = append(out.Fields, f)
		}
	}
	return out, true
}

func (s Structure) fixate() Structure {
	out := s.clone()
	for i := range out.Fields {
		out.Fields[i].Value = fixateValue(out.Fields[i].Value)
	}
	return out
}

// Caps is an ordered set of structures, or one of the special values ANY
// (accepts everything) and EMPTY (accepts nothing). The zero value is EMPTY.
type Caps struct {
	any        bool
	structures []Structure
}

// Any returns caps that intersect with everything.
func Any() Caps { return Caps{any: true} }

// Empty returns caps that intersect with nothing.
func Empty() Caps { return Caps{} }

// New builds caps from structures in preference order.
func New(structures ...Structure) Caps {
	out := Caps{structures: make([]Structure, 0, len(structures))}
	for _, s := range structures {
		out.structures = append(out.structures, s.clone())
	}
	return out
}

// Simple builds single-structure caps from alternating field names and values.
func Simple(name string, kv ...any) Caps {
	s := NewStructure(name)
	for i := 0; i+1 < len(kv); i += 2 {
		s = s.With(kv[i].(string), kv[i+1].(Value))
	}
	return New(s)
}

// IsAny reports whether c is ANY.
func (c Caps) IsAny() bool { return c.any }

// IsEmpty reports whether c matches nothing.
func (c Caps) IsEmpty() bool { return !c.any && len(c.structures) == 0 }

// IsFixed reports whether c holds exactly one fixed structure.
func (c Caps) IsFixed() bool {
	return !c.any && len(c.structures) == 1 && c.structures[0].IsFixed()
}

// Len returns the number of structures; ANY and EMPTY have none.
func (c Caps) Len() int { return len(c.structures) }

// Structure returns the i-th structure.
func (c Caps) Structure(i int) Structure { return c.structures[i].clone() }

// Equal reports whether both caps hold the same structures in the same order.
func (c Caps) Equal(o Caps) bool {
	if c.any || o.any {
		return c.any == o.any
	}
	if len(c.structures) != len(o.structures) {
		return false
	}
	for i := range c.structures {
		if !c.structures[i].Equal(o.structures[i]) {
			return false
		}
	}
	return true
}

// Intersect returns the caps common to c and o in "first" mode: structures and
// field order of c are preferred, so when c is a downstream filter its
// ordering wins.
func (c Caps) Intersect(o Caps) Caps {
	switch {
	case c.IsEmpty() || o.IsEmpty():
		return Empty()
	case c.any:
		return New(o.structures...)
	case o.any:
		return New(c.structures...)
	}

	var out Caps
	for _, s1 := range c.structures {
		for _, s2 := range o.structures {
			merged, ok := s1.intersect(s2)
			if !ok {
				continue
			}
			out.appendUnique(merged)
		}
	}
	return out
}

// CanIntersect reports whether c and o share at least one format.
func (c Caps) CanIntersect(o Caps) bool {
	return !c.Intersect(o).IsEmpty()
}

// Fixate keeps the first structure and narrows every field to one value.
// ANY and EMPTY are returned unchanged.
func (c Caps) Fixate() Caps {
	if c.any || len(c.structures) == 0 {
		return c
	}
	return Caps{structures: []Structure{c.structures[0].fixate()}}
}

func (c *Caps) appendUnique(s Structure) {
	for _, existing := range c.structures {
		if existing.Equal(s) {
			return
		}
	}
	c.structures = append(c.structures, s)
}

func (c Caps) String() string {
	if c.any {
		return "ANY"
	}
	if len(c.structures) == 0 {
		return "EMPTY"
	}
	parts := make([]string, len(c.structures))
	for i, s := range c.structures {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

// MarshalText encodes caps in their string form.
func (c Caps) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses the string form produced by String.
func (c *Caps) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
