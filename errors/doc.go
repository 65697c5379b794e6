// Package errors provides the error vocabulary shared by every zipstage package.
//
// # Classification
//
// Errors fall into three classes that drive how callers react:
//
//   - Transient: delivery rejected downstream, transport timeouts, lost connections (retry or ignore)
//   - Invalid: bad configuration, unknown property, wrong property type (do not retry)
//   - Fatal: prepare failures, duplicate endpoints, processing failures under the fatal policy
//
// Classification works through errors.Is and errors.As so wrapped chains keep their class.
//
// # Wrapping
//
// All wrapping follows one format:
//
//	"component.method: action failed: <cause>"
//
// For example:
//
//	return errors.WrapFatal(err, "Stage", "SetState", "prepare")
//
// # Contract violations
//
// Programming-contract violations (tuple arity mismatch, a caps query on an endpoint with no
// direction) are raised as panics carrying a *ContractViolation. Stage entry points recover them
// at their error boundary and convert them to the safe default for that entry point.
package errors
