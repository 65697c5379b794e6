// Package component keeps the set of known stage types and creates stage
// instances from them.
//
// A type is registered once per registry. RegisterOnce may be called from
// any number of goroutines for the same name; exactly one call performs the
// registration and every other call observes it as already done.
package component

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/stage"
)

// Factory creates a fresh processing unit.
type Factory func() (stage.Unit, error)

// Registration holds factory and metadata for a stage type
type Registration struct {
	Name           string  `json:"name"`           // Type name (e.g., "identity")
	Category       string  `json:"category"`       // Debug category used in log attributes
	LongName       string  `json:"long_name"`      // Human-readable name
	Classification string  `json:"classification"` // e.g. "Cata/Aggregator"
	Description    string  `json:"description"`
	Version        string  `json:"version"`
	Factory        Factory `json:"-"`
}

// Info holds metadata about an available stage type
type Info struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	LongName       string   `json:"long_name"`
	Classification string   `json:"classification"`
	Description    string   `json:"description"`
	Version        string   `json:"version"`
	Inputs         []string `json:"inputs"`
	Outputs        []string `json:"outputs"`
}

// Registry manages stage type factories and the stage instances created from them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Registration
	instances map[string]*stage.Stage
}

// NewRegistry creates a new empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]*stage.Stage),
	}
}

// RegisterOnce registers a stage type unless one with the same name exists.
// It reports whether this call performed the registration.
func (r *Registry) RegisterOnce(reg Registration) (bool, error) {
	if err := ValidateComponentName(reg.Name); err != nil {
		return false, errors.Wrap(err, "Registry", "RegisterOnce", "type name validation")
	}
	if reg.Factory == nil {
		return false, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterOnce", "factory function validation")
	}
	if reg.Category == "" {
		reg.Category = reg.Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Name]; exists {
		return false, nil
	}
	r.factories[reg.Name] = &reg
	return true, nil
}

// Register registers a stage type and fails if the name is taken.
func (r *Registry) Register(reg Registration) error {
	registered, err := r.RegisterOnce(reg)
	if err != nil {
		return err
	}
	if !registered {
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrAlreadyRegistered, reg.Name),
			"Registry", "Register", "duplicate type check")
	}
	return nil
}

// Lookup returns the registration for a type name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[name]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// ListTypes returns all registered type names, sorted
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListAvailable describes every registered type, including its endpoint
// names. Each type's factory is invoked once to read its declarations.
func (r *Registry) ListAvailable() (map[string]Info, error) {
	r.mu.RLock()
	regs := make([]Registration, 0, len(r.factories))
	for _, reg := range r.factories {
		regs = append(regs, *reg)
	}
	r.mu.RUnlock()

	out := make(map[string]Info, len(regs))
	for _, reg := range regs {
		unit, err := reg.Factory()
		if err != nil {
			return nil, errors.Wrap(err, "Registry", "ListAvailable", fmt.Sprintf("create %s", reg.Name))
		}
		info := Info{
			Name:           reg.Name,
			Category:       reg.Category,
			LongName:       reg.LongName,
			Classification: reg.Classification,
			Description:    reg.Description,
			Version:        reg.Version,
		}
		ins, outs := unit.Endpoints()
		for _, t := range ins {
			info.Inputs = append(info.Inputs, t.Name)
		}
		for _, t := range outs {
			info.Outputs = append(info.Outputs, t.Name)
		}
		out[reg.Name] = info
	}
	return out, nil
}

// CreateStage builds a stage of typeName under a unique instance name and
// keeps it in the registry. Factory functions do no I/O; the unit acquires
// resources when the stage is taken to Ready.
func (r *Registry) CreateStage(
	ctx context.Context, typeName, instanceName string, host stage.Host, deps Dependencies, opts ...stage.Option,
) (*stage.Stage, error) {
	if err := ValidateComponentName(instanceName); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateStage", "instance name validation")
	}

	reg, ok := r.Lookup(typeName)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownType, typeName),
			"Registry", "CreateStage", "type lookup")
	}

	r.mu.RLock()
	_, taken := r.instances[instanceName]
	r.mu.RUnlock()
	if taken {
		return nil, errors.WrapInvalid(fmt.Errorf("instance %q is already registered", instanceName),
			"Registry", "CreateStage", "duplicate instance check")
	}

	unit, err := reg.Factory()
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateStage", "factory execution")
	}

	all := append(deps.StageOptions(),
		stage.WithName(instanceName),
		stage.WithTypeName(reg.Name, reg.Category))
	all = append(all, opts...)

	st, err := stage.New(ctx, unit, host, all...)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateStage", "stage construction")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[instanceName]; exists {
		return nil, errors.WrapInvalid(fmt.Errorf("instance %q is already registered", instanceName),
			"Registry", "CreateStage", "duplicate instance check")
	}
	r.instances[instanceName] = st
	return st, nil
}

// Stage retrieves a stage instance by name. Returns nil if not found.
func (r *Registry) Stage(name string) *stage.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// ListStages returns a copy of all stage instances.
func (r *Registry) ListStages() map[string]*stage.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*stage.Stage, len(r.instances))
	for k, v := range r.instances {
		out[k] = v
	}
	return out
}

// RemoveStage forgets an instance. The caller is responsible for taking
// it to Null first.
func (r *Registry) RemoveStage(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, name)
}

// MaxNameLength bounds type and instance names.
const MaxNameLength = 256

// ValidateComponentName validates type and instance names. Names may use
// letters, digits, dash, underscore and dot.
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "name too long")
	}
	if strings.IndexFunc(name, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.')
	}) >= 0 {
		return errors.WrapInvalid(
			errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName",
			"invalid name characters")
	}
	return nil
}
