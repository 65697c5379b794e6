// Package componentregistry registers the built-in stage types.
package componentregistry

import (
	"errors"

	"github.com/c360/zipstage/component"
	pkgerrors "github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/processor/identity"
	"github.com/c360/zipstage/processor/overlay"
)

// Register registers every built-in stage type with the provided registry:
//   - identity (pass-through, one input to one output)
//   - overlay (two-input alpha blend)
//
// Registration is idempotent; calling Register again is a no-op.
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := identity.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "identity registration")
	}

	if err := overlay.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "overlay registration")
	}

	return nil
}
