package stage

import (
	"fmt"
	"sort"

	"github.com/c360/zipstage/errors"
)

// Properties returns the unit's property declarations sorted by name.
func (s *Stage) Properties() []PropertySpec {
	specs := make([]PropertySpec, 0, len(s.props))
	for _, p := range s.props {
		specs = append(specs, p)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// SetProperty validates and applies a property value. The unit is updated
// under the processing lock, so a change never lands in the middle of a
// Process call.
func (s *Stage) SetProperty(name string, value any) (err error) {
	defer func() { s.metrics.RecordPropertyUpdate(s.name, name, err) }()

	spec, ok := s.props[name]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownProperty, name),
			"Stage", "SetProperty", "lookup property")
	}
	if !spec.Writable() {
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrPropertyNotWritable, name),
			"Stage", "SetProperty", "check access")
	}
	v, err := spec.Coerce(value)
	if err != nil {
		return err
	}

	s.procMu.Lock()
	err = s.unit.(Configurable).SetProperty(name, v)
	s.procMu.Unlock()
	if err != nil {
		return errors.WrapInvalid(err, "Stage", "SetProperty", "apply property")
	}

	s.logger.Info("Property updated", "property", name, "value", v)
	return nil
}

// Property reads a property value from the unit.
func (s *Stage) Property(name string) (any, error) {
	spec, ok := s.props[name]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownProperty, name),
			"Stage", "Property", "lookup property")
	}
	if !spec.Readable() {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrPropertyNotReadable, name),
			"Stage", "Property", "check access")
	}

	s.procMu.Lock()
	defer s.procMu.Unlock()
	return s.unit.(Configurable).Property(name)
}
