// Package identity provides a pass-through processing unit.
package identity

import (
	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/component"
	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/stage"
)

// TypeName is the registered type name.
const TypeName = "identity"

// Unit copies input i to output i. With more inputs than outputs the extra
// inputs are ignored; extra outputs are pushed empty.
type Unit struct {
	inputs  []string
	outputs []string
}

// New returns the default one-in one-out unit.
func New() *Unit {
	return NewN([]string{"in_any"}, []string{"out_any"})
}

// NewN returns a unit with the given endpoint names, all accepting any format.
func NewN(inputs, outputs []string) *Unit {
	return &Unit{inputs: inputs, outputs: outputs}
}

// Endpoints declares every endpoint with the ANY format.
func (u *Unit) Endpoints() (inputs, outputs []endpoint.Template) {
	for _, n := range u.inputs {
		inputs = append(inputs, endpoint.Template{Name: n, Format: caps.Any()})
	}
	for _, n := range u.outputs {
		outputs = append(outputs, endpoint.Template{Name: n, Format: caps.Any()})
	}
	return inputs, outputs
}

// Process copies inputs to outputs by index.
func (u *Unit) Process(inputs, outputs []*media.Buffer) error {
	for i, buf := range inputs {
		if i < len(outputs) {
			outputs[i] = buf.Clone()
		}
	}
	return nil
}

// Metadata describes the unit.
func (u *Unit) Metadata() stage.Metadata {
	md := stage.DefaultMetadata()
	md.LongName = "Identity"
	md.Description = "Passes every input through to the output with the same index"
	return md
}

// Register registers the identity type with the registry.
func Register(registry *component.Registry) error {
	md := New().Metadata()
	_, err := registry.RegisterOnce(component.Registration{
		Name:           TypeName,
		Category:       "tchidentity",
		LongName:       md.LongName,
		Classification: md.Classification,
		Description:    md.Description,
		Version:        "0.1.0",
		Factory:        func() (stage.Unit, error) { return New(), nil },
	})
	return err
}
