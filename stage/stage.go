// Package stage runs one processing unit behind named input and output
// endpoints. It aligns arrivals into tuples, drives the unit through its
// lifecycle, answers host events and queries, and routes results to outputs.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/metric"
	"github.com/c360/zipstage/protocol"
	"github.com/c360/zipstage/zipper"
)

// ProcessErrorPolicy decides what a failed Process call does to the stage.
type ProcessErrorPolicy string

const (
	// PolicyFatal posts a fatal error to the host and fails every later
	// arrival until the stage is taken back to Null.
	PolicyFatal ProcessErrorPolicy = "fatal"
	// PolicyDrop logs the failure, drops the tuple and keeps going.
	PolicyDrop ProcessErrorPolicy = "drop"
)

// Valid reports whether p is a known policy.
func (p ProcessErrorPolicy) Valid() bool {
	return p == PolicyFatal || p == PolicyDrop
}

// Option configures a Stage.
type Option func(*Stage)

// WithName sets the instance name used in logs and metrics.
func WithName(name string) Option {
	return func(s *Stage) { s.name = name }
}

// WithTypeName records the registered type the stage was created from.
func WithTypeName(typeName, category string) Option {
	return func(s *Stage) {
		s.typeName = typeName
		s.category = category
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics. A nil registry disables them.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Stage) { s.registry = registry }
}

// WithSlotDepth bounds how many pending units each input slot keeps.
func WithSlotDepth(depth int) Option {
	return func(s *Stage) { s.slotDepth = depth }
}

// WithProcessErrorPolicy sets the failure policy. Defaults to PolicyFatal.
func WithProcessErrorPolicy(p ProcessErrorPolicy) Option {
	return func(s *Stage) { s.policy = p }
}

// Stage is one running instance of a processing unit.
//
// Lock order is zipMu before procMu. zipMu covers a whole arrival, from push
// through routing, so dispatch is serialized across inputs. procMu guards the
// unit itself: Process, property access and lifecycle hooks.
type Stage struct {
	id       string
	name     string
	typeName string
	category string
	unit     Unit
	host     Host
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	policy   ProcessErrorPolicy

	endpoints *endpoint.Registry
	inputs    []endpoint.Endpoint
	outputs   []endpoint.Endpoint
	props     map[string]PropertySpec

	slotDepth int
	zipMu     sync.Mutex
	zip       *zipper.Zipper[*media.Buffer]
	resets    atomic.Uint64 // bumped under zipMu on every slot reset

	procMu   sync.Mutex
	prepared bool
	started  bool

	changeMu   sync.Mutex
	stateMu    sync.RWMutex
	current    protocol.State
	pending    protocol.State
	hasPending bool

	flushing atomic.Bool
	failed   atomic.Bool
	lastErr  atomic.Value // error string

	created      time.Time
	arrivals     atomic.Int64
	tuples       atomic.Int64
	procFailures atomic.Int64
	delivFails   atomic.Int64
	lastActivity atomic.Int64 // unix nanos
}

// New builds a stage around unit. Endpoints are declared from the unit's
// templates; a duplicate name fails construction. Each output endpoint is
// announced to the host with its fixated format and a default time segment.
func New(ctx context.Context, unit Unit, host Host, opts ...Option) (*Stage, error) {
	if unit == nil {
		return nil, errors.WrapFatal(fmt.Errorf("nil unit"), "Stage", "New", "unit check")
	}
	if host == nil {
		return nil, errors.WrapFatal(fmt.Errorf("nil host"), "Stage", "New", "host check")
	}

	s := &Stage{
		id:        uuid.NewString(),
		unit:      unit,
		host:      host,
		logger:    slog.Default(),
		policy:    PolicyFatal,
		slotDepth: zipper.DefaultDepth,
		current:   protocol.StateNull,
		created:   time.Now(),
		props:     map[string]PropertySpec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = s.typeName
	}
	if s.name == "" {
		s.name = "stage-" + s.id[:8]
	}
	if !s.policy.Valid() {
		return nil, errors.WrapInvalid(fmt.Errorf("unknown policy %q", s.policy), "Stage", "New", "policy check")
	}
	s.metrics = s.registry.CoreMetrics()
	s.logger = s.logger.With("component", "stage", "stage", s.name, "type", s.typeName, "category", s.category)

	ins, outs := unit.Endpoints()
	reg, err := endpoint.FromTemplates(ins, outs)
	if err != nil {
		return nil, errors.Wrap(err, "Stage", "New", "declare endpoints")
	}
	s.endpoints = reg
	s.inputs = reg.Inputs()
	s.outputs = reg.Outputs()

	if c, ok := unit.(Configurable); ok {
		for _, p := range c.Properties() {
			s.props[p.Name] = p
		}
	}

	zipOpts := []zipper.Option{zipper.WithDepth(s.slotDepth), zipper.WithDropFunc(s.onDrop)}
	if s.registry != nil {
		zipOpts = append(zipOpts, zipper.WithSlotMetrics(s.registry, s.name+"_slot"))
	}
	zip, err := zipper.New[*media.Buffer](len(s.inputs), zipOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Stage", "New", "create synchronizer")
	}
	s.zip = zip

	s.announceOutputs(ctx)
	s.metrics.RecordState(s.name, int(protocol.StateNull))

	s.logger.Debug("Stage constructed",
		"id", s.id,
		"inputs", len(s.inputs),
		"outputs", len(s.outputs))
	return s, nil
}

func (s *Stage) announceOutputs(ctx context.Context) {
	for _, out := range s.outputs {
		fixed := out.Format.Fixate()
		for _, ev := range []protocol.Event{protocol.NewCaps(fixed), protocol.NewSegment(protocol.DefaultTimeSegment())} {
			if err := s.host.Announce(ctx, out, ev); err != nil {
				s.logger.Warn("Failed to announce output",
					"endpoint", out.Name,
					"event", ev.Type,
					"error", err)
			}
		}
	}
}

func (s *Stage) onDrop(slot, n int, reason zipper.DropReason) {
	name := ""
	if slot < len(s.inputs) {
		name = s.inputs[slot].Name
	}
	s.metrics.RecordDropped(s.name, name, n)
	s.logger.Debug("Discarded pending units",
		"endpoint", name,
		"count", n,
		"reason", reason)
}

// ID returns the unique instance id.
func (s *Stage) ID() string { return s.id }

// Name returns the instance name.
func (s *Stage) Name() string { return s.name }

// TypeName returns the registered type name, if any.
func (s *Stage) TypeName() string { return s.typeName }

// Unit returns the processing unit.
func (s *Stage) Unit() Unit { return s.unit }

// Endpoints returns the endpoint registry.
func (s *Stage) Endpoints() *endpoint.Registry { return s.endpoints }

// Input looks up an input endpoint by name.
func (s *Stage) Input(name string) (endpoint.Endpoint, bool) {
	return s.endpoints.Lookup(endpoint.DirectionInput, name)
}

// Output looks up an output endpoint by name.
func (s *Stage) Output(name string) (endpoint.Endpoint, bool) {
	return s.endpoints.Lookup(endpoint.DirectionOutput, name)
}

// Metadata returns the unit's metadata, or the defaults.
func (s *Stage) Metadata() Metadata {
	if d, ok := s.unit.(Describer); ok {
		return d.Metadata()
	}
	return DefaultMetadata()
}

// Failed reports whether a fatal error has put the stage out of service.
func (s *Stage) Failed() bool { return s.failed.Load() }

// fail marks the stage failed and posts err to the host.
func (s *Stage) fail(err error) {
	s.failed.Store(true)
	s.lastErr.Store(err.Error())
	s.host.PostError(err)
}

func (s *Stage) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}
