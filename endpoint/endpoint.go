// Package endpoint holds the named input and output connection points of a
// stage and answers format queries against their declared formats.
package endpoint

import (
	"fmt"
	"sync"

	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/errors"
)

// Direction for data flow
type Direction string

// Direction constants for endpoint data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionInput || d == DirectionOutput
}

// Template is the static declaration of one endpoint, supplied by a
// processing unit type.
type Template struct {
	Name        string
	Format      caps.Caps
	Description string
}

// Endpoint is a declared endpoint with its dense per-direction index.
type Endpoint struct {
	Direction Direction
	Name      string
	Index     int
	Format    caps.Caps
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%s#%d", e.Direction, e.Name, e.Index)
}

// Registry is the set of endpoints of one stage. Indices within a direction
// are assigned 0..n-1 in declaration order and never change.
type Registry struct {
	mu      sync.RWMutex
	inputs  []Endpoint
	outputs []Endpoint
	names   map[Direction]map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: map[Direction]map[string]int{
			DirectionInput:  {},
			DirectionOutput: {},
		},
	}
}

// FromTemplates declares all inputs, then all outputs, in slice order.
func FromTemplates(inputs, outputs []Template) (*Registry, error) {
	r := NewRegistry()
	for _, t := range inputs {
		if _, err := r.Declare(DirectionInput, t.Name, t.Format); err != nil {
			return nil, err
		}
	}
	for _, t := range outputs {
		if _, err := r.Declare(DirectionOutput, t.Name, t.Format); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Declare adds an endpoint with the next free index for its direction.
// A duplicate name within a direction is a fatal construction error.
func (r *Registry) Declare(dir Direction, name string, format caps.Caps) (Endpoint, error) {
	if !dir.Valid() {
		return Endpoint{}, errors.WrapFatal(
			fmt.Errorf("%w: %q", errors.ErrNoDirection, dir), "Registry", "Declare", "direction check")
	}
	if name == "" {
		return Endpoint{}, errors.WrapInvalid(
			fmt.Errorf("empty endpoint name"), "Registry", "Declare", "name check")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[dir][name]; exists {
		return Endpoint{}, errors.WrapFatal(
			fmt.Errorf("%w: %s endpoint %q", errors.ErrDuplicateEndpoint, dir, name),
			"Registry", "Declare", "name uniqueness check")
	}

	list := r.list(dir)
	ep := Endpoint{Direction: dir, Name: name, Index: len(*list), Format: format}
	*list = append(*list, ep)
	r.names[dir][name] = ep.Index
	return ep, nil
}

func (r *Registry) list(dir Direction) *[]Endpoint {
	if dir == DirectionInput {
		return &r.inputs
	}
	return &r.outputs
}

// Lookup finds an endpoint by direction and name.
func (r *Registry) Lookup(dir Direction, name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.names[dir][name]
	if !ok {
		return Endpoint{}, false
	}
	return (*r.list(dir))[idx], true
}

// ByIndex finds an endpoint by direction and index.
func (r *Registry) ByIndex(dir Direction, index int) (Endpoint, bool) {
	if !dir.Valid() {
		return Endpoint{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	list := *r.list(dir)
	if index < 0 || index >= len(list) {
		return Endpoint{}, false
	}
	return list[index], true
}

// Inputs returns the input endpoints in index order.
func (r *Registry) Inputs() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Endpoint(nil), r.inputs...)
}

// Outputs returns the output endpoints in index order.
func (r *Registry) Outputs() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Endpoint(nil), r.outputs...)
}

// Count returns the number of endpoints in a direction.
func (r *Registry) Count(dir Direction) int {
	if !dir.Valid() {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(*r.list(dir))
}

// ResolveFormat answers a format query for ep. Without a filter the declared
// format is returned unchanged; with one, the filter is intersected with the
// declared format and the filter's ordering wins.
//
// An endpoint without a valid direction, or one this registry never declared,
// is a contract violation and panics.
func (r *Registry) ResolveFormat(ep Endpoint, filter *caps.Caps) caps.Caps {
	if !ep.Direction.Valid() {
		errors.Violate(errors.ErrNoDirection, "format query on %q", ep.Name)
	}

	declared, ok := r.Lookup(ep.Direction, ep.Name)
	if !ok {
		errors.Violate(errors.ErrUnknownEndpoint, "format query on %s", ep)
	}

	if filter == nil {
		return declared.Format
	}
	return filter.Intersect(declared.Format)
}
