// Package host embeds a stage in a message transport. Input subjects feed
// arrivals, output pushes are published, and a control subject carries
// events, queries and state changes.
package host

import (
	"context"
	"fmt"
	"strings"
)

// Transport is the publish/subscribe surface a Binding needs. Both
// natsclient.Client and mqttclient.Client satisfy it.
//
// Handlers must not be invoked synchronously from Publish on the same
// goroutine when a stage's output is routed back to its own input.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// DefaultPrefix roots every default subject.
const DefaultPrefix = "zipstage"

// Subjects maps a stage's endpoints and control channels to transport
// subjects. Empty entries fall back to defaults derived from the prefix and
// stage name.
type Subjects struct {
	Prefix  string            `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	Inputs  map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty" toml:"inputs,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty" toml:"outputs,omitempty"`
	Control string            `json:"control,omitempty" yaml:"control,omitempty" toml:"control,omitempty"`
	Errors  string            `json:"errors,omitempty" yaml:"errors,omitempty" toml:"errors,omitempty"`
}

func (s Subjects) prefix(stage string) string {
	p := s.Prefix
	if p == "" {
		p = DefaultPrefix
	}
	return p + "." + stage
}

// Input returns the subject feeding the named input.
func (s Subjects) Input(stage, name string) string {
	if subj, ok := s.Inputs[name]; ok && subj != "" {
		return subj
	}
	return fmt.Sprintf("%s.in.%s", s.prefix(stage), name)
}

// Output returns the subject buffers of the named output are published on.
func (s Subjects) Output(stage, name string) string {
	if subj, ok := s.Outputs[name]; ok && subj != "" {
		return subj
	}
	return fmt.Sprintf("%s.out.%s", s.prefix(stage), name)
}

// OutputEvents returns the subject events announced on an output go to.
func (s Subjects) OutputEvents(stage, name string) string {
	return s.Output(stage, name) + ".events"
}

// ControlRoot returns the control subject root. Events, queries and state
// requests use the .event, .query and .state suffixes.
func (s Subjects) ControlRoot(stage string) string {
	if s.Control != "" {
		return strings.TrimSuffix(s.Control, ".")
	}
	return s.prefix(stage) + ".control"
}

// Event returns the subject accepting event envelopes.
func (s Subjects) Event(stage string) string { return s.ControlRoot(stage) + ".event" }

// Query returns the subject accepting query envelopes.
func (s Subjects) Query(stage string) string { return s.ControlRoot(stage) + ".query" }

// State returns the subject accepting state change requests.
func (s Subjects) State(stage string) string { return s.ControlRoot(stage) + ".state" }

// Error returns the subject stage errors are posted on.
func (s Subjects) Error(stage string) string {
	if s.Errors != "" {
		return s.Errors
	}
	return s.prefix(stage) + ".errors"
}
