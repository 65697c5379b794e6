package stage

import (
	"context"

	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/protocol"
)

// Unit is the processing contract every stage type implements. The engine
// knows nothing about what a unit computes, only its endpoint arity.
type Unit interface {
	// Endpoints declares the inputs and outputs. It must be pure and
	// deterministic; it is called once when the stage is constructed.
	Endpoints() (inputs, outputs []endpoint.Template)

	// Process receives exactly one buffer per input, in input index order, and
	// must leave exactly one buffer per output in outputs, in output index
	// order. outputs arrives pre-filled with empty buffers. Calls are
	// serialized by the stage.
	Process(inputs, outputs []*media.Buffer) error
}

// Configurable units expose properties. SetProperty receives values already
// checked and converted to the declared kind, and must not block.
type Configurable interface {
	Properties() []PropertySpec
	SetProperty(name string, value any) error
	Property(name string) (any, error)
}

// Preparer acquires format-independent resources on Null to Ready.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Unpreparer releases what Prepare acquired on Ready to Null.
type Unpreparer interface {
	Unprepare(ctx context.Context) error
}

// Starter arms the unit for data flow on Paused to Playing and flush-stop.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper quiesces the unit on Playing to Paused, flush-start and end-of-stream.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Describer supplies human-readable metadata for listings.
type Describer interface {
	Metadata() Metadata
}

// Metadata describes a stage type.
type Metadata struct {
	LongName       string `json:"long_name"`
	Classification string `json:"classification"`
	Description    string `json:"description"`
	Author         string `json:"author,omitempty"`
}

// DefaultMetadata is used for units that do not implement Describer.
func DefaultMetadata() Metadata {
	return Metadata{
		LongName:       "Catamorphism processor",
		Classification: "Cata/Aggregator",
		Description:    "Process n-to-n streams",
	}
}

// Host is the runtime a stage is embedded in.
type Host interface {
	// Push delivers a finished buffer downstream of an output endpoint. The
	// returned error is only logged. Push must not call back into the same
	// stage's Chain synchronously.
	Push(ctx context.Context, out endpoint.Endpoint, buf *media.Buffer) error

	// Announce sends an event downstream of an output endpoint.
	Announce(ctx context.Context, out endpoint.Endpoint, ev protocol.Event) error

	// PostError reports a stage-level error condition.
	PostError(err error)
}
