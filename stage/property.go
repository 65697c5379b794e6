package stage

import (
	"fmt"
	"math"
	"strconv"

	"github.com/c360/zipstage/errors"
)

// PropertyKind is the value type of a property.
type PropertyKind string

const (
	PropertyString PropertyKind = "string"
	PropertyInt    PropertyKind = "int"
	PropertyFloat  PropertyKind = "float"
	PropertyBool   PropertyKind = "bool"
)

// PropertyFlags describe property access.
type PropertyFlags uint8

const (
	PropertyReadable PropertyFlags = 1 << iota
	PropertyWritable

	PropertyReadWrite = PropertyReadable | PropertyWritable
)

// PropertySpec declares one configurable property of a unit.
type PropertySpec struct {
	Name        string        `json:"name"`
	Nick        string        `json:"nick,omitempty"`
	Description string        `json:"description,omitempty"`
	Kind        PropertyKind  `json:"kind"`
	Flags       PropertyFlags `json:"flags"`
	Default     any           `json:"default,omitempty"`
	// Min and Max bound numeric kinds when Min < Max.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
}

// Readable reports whether the property can be read.
func (p PropertySpec) Readable() bool { return p.Flags&PropertyReadable != 0 }

// Writable reports whether the property can be written.
func (p PropertySpec) Writable() bool { return p.Flags&PropertyWritable != 0 }

// Coerce converts v to the property's kind. Strings are parsed, JSON numbers
// (float64) are accepted for int properties when integral.
func (p PropertySpec) Coerce(v any) (any, error) {
	out, err := p.convert(v)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s wants %s, got %T", errors.ErrPropertyType, p.Name, p.Kind, v),
			"PropertySpec", "Coerce", "convert value")
	}

	if p.Min < p.Max {
		var f float64
		switch n := out.(type) {
		case int:
			f = float64(n)
		case float64:
			f = n
		default:
			return out, nil
		}
		if f < p.Min || f > p.Max {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s=%v outside [%v, %v]", errors.ErrPropertyType, p.Name, out, p.Min, p.Max),
				"PropertySpec", "Coerce", "range check")
		}
	}
	return out, nil
}

func (p PropertySpec) convert(v any) (any, error) {
	switch p.Kind {
	case PropertyString:
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case PropertyBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
	case PropertyInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int32:
			return int(n), nil
		case int64:
			return int(n), nil
		case uint:
			return int(n), nil
		case float64:
			if n == math.Trunc(n) {
				return int(n), nil
			}
		case string:
			return strconv.Atoi(n)
		}
	case PropertyFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			return strconv.ParseFloat(n, 64)
		}
	}
	return nil, fmt.Errorf("unsupported value")
}
