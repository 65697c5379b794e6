package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/health"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/protocol"
	"github.com/c360/zipstage/stage"
)

// postTimeout bounds error publication, which has no caller context.
const postTimeout = 2 * time.Second

// StateRequest asks the stage to move to a lifecycle state.
type StateRequest struct {
	State   protocol.State `json:"state"`
	ReplyTo string         `json:"reply_to,omitempty"`
}

// StateReply answers a StateRequest.
type StateReply struct {
	State  protocol.State `json:"state"`
	Result string         `json:"result"`
	Error  string         `json:"error,omitempty"`
}

// ErrorReport is published on the error subject by PostError.
type ErrorReport struct {
	Stage     string    `json:"stage"`
	Class     string    `json:"class"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Option configures a Binding.
type Option func(*Binding)

// WithSubjects overrides the subject layout.
func WithSubjects(s Subjects) Option {
	return func(b *Binding) { b.subjects = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Binding is the stage.Host of one stage running over a Transport. Create it
// first, pass it to stage.New, then Attach the stage.
type Binding struct {
	transport Transport
	name      string
	subjects  Subjects
	logger    *slog.Logger

	mu    sync.RWMutex
	stage *stage.Stage

	received   atomic.Int64
	published  atomic.Int64
	decodeErrs atomic.Int64
	errsPosted atomic.Int64
}

// NewBinding creates the host for the stage instance called name.
func NewBinding(transport Transport, name string, opts ...Option) (*Binding, error) {
	if transport == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "Binding", "NewBinding", "transport check")
	}
	if name == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: stage name", errors.ErrMissingConfig), "Binding", "NewBinding", "name check")
	}
	b := &Binding{transport: transport, name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "host", "stage", name)
	return b, nil
}

// Name returns the stage instance name.
func (b *Binding) Name() string { return b.name }

// Subjects returns the subject layout.
func (b *Binding) Subjects() Subjects { return b.subjects }

// Stage returns the attached stage, or nil.
func (b *Binding) Stage() *stage.Stage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stage
}

// Attach subscribes the stage's inputs and control subjects.
func (b *Binding) Attach(ctx context.Context, s *stage.Stage) error {
	if s == nil {
		return errors.WrapFatal(fmt.Errorf("nil stage"), "Binding", "Attach", "stage check")
	}
	b.mu.Lock()
	if b.stage != nil {
		b.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("stage %q already attached", b.name), "Binding", "Attach", "attach check")
	}
	b.stage = s
	b.mu.Unlock()

	for _, in := range s.Endpoints().Inputs() {
		subject := b.subjects.Input(b.name, in.Name)
		if err := b.transport.Subscribe(ctx, subject, b.inputHandler(in)); err != nil {
			return errors.WrapTransient(err, "Binding", "Attach", fmt.Sprintf("subscribe to %s", subject))
		}
		b.logger.Debug("Subscribed input", "endpoint", in.Name, "subject", subject)
	}

	control := map[string]func(context.Context, []byte){
		b.subjects.Event(b.name): b.handleEvent,
		b.subjects.Query(b.name): b.handleQuery,
		b.subjects.State(b.name): b.handleState,
	}
	for subject, handler := range control {
		if err := b.transport.Subscribe(ctx, subject, handler); err != nil {
			return errors.WrapTransient(err, "Binding", "Attach", fmt.Sprintf("subscribe to %s", subject))
		}
	}

	b.logger.Info("Stage attached to transport",
		"inputs", s.Endpoints().Count(endpoint.DirectionInput),
		"outputs", s.Endpoints().Count(endpoint.DirectionOutput),
		"control", b.subjects.ControlRoot(b.name))
	return nil
}

// Detach stops delivering to the stage. Subscriptions stay open until the
// transport is closed; messages arriving after Detach are ignored.
func (b *Binding) Detach() {
	b.mu.Lock()
	b.stage = nil
	b.mu.Unlock()
}

// Push publishes a finished buffer on the output's subject.
func (b *Binding) Push(ctx context.Context, out endpoint.Endpoint, buf *media.Buffer) error {
	data, err := media.Encode(b.name, out.Name, buf)
	if err != nil {
		return err
	}
	subject := b.subjects.Output(b.name, out.Name)
	if err := b.transport.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrDeliveryFailed, err), "Binding", "Push", subject)
	}
	b.published.Add(1)
	return nil
}

// Announce publishes an event for an output on its events subject.
func (b *Binding) Announce(ctx context.Context, out endpoint.Endpoint, ev protocol.Event) error {
	data, err := json.Marshal(protocol.EventEnvelope{Endpoint: out.Name, Output: true, Event: ev})
	if err != nil {
		return errors.WrapInvalid(err, "Binding", "Announce", "json marshal")
	}
	subject := b.subjects.OutputEvents(b.name, out.Name)
	if err := b.transport.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "Binding", "Announce", subject)
	}
	return nil
}

// PostError publishes a sanitized error report on the error subject.
func (b *Binding) PostError(err error) {
	if err == nil {
		return
	}
	b.errsPosted.Add(1)
	b.logger.Error("Stage error posted", "error", err, "class", errors.Classify(err).String())

	report := ErrorReport{
		Stage:     b.name,
		Class:     errors.Classify(err).String(),
		Error:     health.SanitizeErrorMessage(err.Error()),
		Timestamp: time.Now(),
	}
	data, mErr := json.Marshal(report)
	if mErr != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()
	if pErr := b.transport.Publish(ctx, b.subjects.Error(b.name), data); pErr != nil {
		b.logger.Warn("Publishing stage error failed", "error", pErr)
	}
}

func (b *Binding) inputHandler(in endpoint.Endpoint) func(context.Context, []byte) {
	return func(ctx context.Context, data []byte) {
		s := b.Stage()
		if s == nil {
			return
		}
		b.received.Add(1)

		env, err := media.Decode(data)
		if err != nil {
			b.decodeErrs.Add(1)
			b.logger.Warn("Dropping undecodable buffer", "endpoint", in.Name, "error", err)
			return
		}
		if ret := s.Chain(ctx, in, env.Buffer); ret != protocol.FlowOK {
			b.logger.Debug("Arrival not accepted", "endpoint", in.Name, "flow", ret.String())
		}
	}
}

// resolve maps an envelope's endpoint reference to a declared endpoint.
// Names arrive from the network, so an unknown one is the sender's mistake
// and never reaches the stage.
func (b *Binding) resolve(s *stage.Stage, name string, output bool) (endpoint.Endpoint, error) {
	var (
		ep endpoint.Endpoint
		ok bool
	)
	if output {
		ep, ok = s.Output(name)
	} else {
		ep, ok = s.Input(name)
	}
	if !ok {
		b.decodeErrs.Add(1)
		dir := endpoint.DirectionInput
		if output {
			dir = endpoint.DirectionOutput
		}
		return endpoint.Endpoint{}, fmt.Errorf("%w: %s %q", errors.ErrUnknownEndpoint, dir, name)
	}
	return ep, nil
}

func (b *Binding) handleEvent(ctx context.Context, data []byte) {
	s := b.Stage()
	if s == nil {
		return
	}
	var env protocol.EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.decodeErrs.Add(1)
		b.logger.Warn("Dropping malformed event", "error", err)
		return
	}

	ep, err := b.resolve(s, env.Endpoint, env.Output)
	if err != nil {
		b.logger.Warn("Dropping event", "event", env.Event.Type, "error", err)
		return
	}
	if s.HandleEvent(ctx, ep, env.Event) {
		return
	}
	// Default handling: events entering an input travel downstream.
	if ep.Direction != endpoint.DirectionInput {
		return
	}
	for _, out := range s.Endpoints().Outputs() {
		if err := b.Announce(ctx, out, env.Event); err != nil {
			b.logger.Warn("Forwarding event failed", "endpoint", out.Name, "event", env.Event.Type, "error", err)
		}
	}
}

func (b *Binding) handleQuery(ctx context.Context, data []byte) {
	s := b.Stage()
	if s == nil {
		return
	}
	var env protocol.QueryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.decodeErrs.Add(1)
		b.logger.Warn("Dropping malformed query", "error", err)
		return
	}
	replyTo := env.ReplyTo
	env.ReplyTo = ""

	q, err := env.DecodeQuery()
	var ep endpoint.Endpoint
	if err == nil {
		ep, err = b.resolve(s, env.Endpoint, env.Output)
	}
	if err != nil {
		b.logger.Warn("Rejecting query", "query", env.Type, "error", err)
		env.Handled = false
		env.Error = err.Error()
	} else {
		env.Handled = s.HandleQuery(ctx, ep, q)
		if err := env.EncodeQuery(q); err != nil {
			env.Error = err.Error()
		}
	}
	if replyTo == "" {
		return
	}
	b.reply(ctx, replyTo, env)
}

func (b *Binding) handleState(ctx context.Context, data []byte) {
	s := b.Stage()
	if s == nil {
		return
	}
	var req StateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		b.decodeErrs.Add(1)
		b.logger.Warn("Dropping malformed state request", "error", err)
		return
	}

	ret, err := s.SetState(ctx, req.State)
	reply := StateReply{State: s.State(), Result: ret.String()}
	if err != nil {
		reply.Error = err.Error()
		b.logger.Warn("State change failed", "target", req.State.String(), "error", err)
	}
	if req.ReplyTo != "" {
		b.reply(ctx, req.ReplyTo, reply)
	}
}

func (b *Binding) reply(ctx context.Context, subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Warn("Encoding reply failed", "subject", subject, "error", err)
		return
	}
	if err := b.transport.Publish(ctx, subject, data); err != nil {
		b.logger.Warn("Publishing reply failed", "subject", subject, "error", err)
	}
}

// Counters reports binding traffic.
type Counters struct {
	Received     int64 `json:"received"`
	Published    int64 `json:"published"`
	DecodeErrors int64 `json:"decode_errors"`
	ErrorsPosted int64 `json:"errors_posted"`
}

// Counters returns a snapshot of the traffic counters.
func (b *Binding) Counters() Counters {
	return Counters{
		Received:     b.received.Load(),
		Published:    b.published.Load(),
		DecodeErrors: b.decodeErrs.Load(),
		ErrorsPosted: b.errsPosted.Load(),
	}
}
