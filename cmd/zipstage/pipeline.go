package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/c360/zipstage/component"
	"github.com/c360/zipstage/config"
	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/health"
	"github.com/c360/zipstage/host"
	"github.com/c360/zipstage/protocol"
	"github.com/c360/zipstage/stage"
)

// pipeline is the set of stage instances run by one process, each bound to
// the shared transport.
type pipeline struct {
	registry *component.Registry
	monitor  *health.Monitor
	logger   *slog.Logger

	names    []string
	bindings map[string]*host.Binding
	targets  map[string]protocol.State
}

// buildPipeline creates every enabled stage from cfg, applies its initial
// properties and attaches it to transport. Stages stay in Null until start.
func buildPipeline(
	ctx context.Context,
	cfg *config.Config,
	registry *component.Registry,
	transport host.Transport,
	deps component.Dependencies,
	monitor *health.Monitor,
) (*pipeline, error) {
	p := &pipeline{
		registry: registry,
		monitor:  monitor,
		logger:   deps.GetLoggerWithComponent("pipeline"),
		bindings: make(map[string]*host.Binding),
		targets:  make(map[string]protocol.State),
	}

	for _, name := range cfg.EnabledStages() {
		sc := cfg.Stages[name]
		if err := p.add(ctx, name, sc, transport, deps); err != nil {
			p.teardown()
			return nil, errors.Wrap(err, "main", "buildPipeline", fmt.Sprintf("stage %s", name))
		}
	}
	return p, nil
}

func (p *pipeline) add(
	ctx context.Context, name string, sc config.StageConfig, transport host.Transport, deps component.Dependencies,
) error {
	target, err := sc.TargetState()
	if err != nil {
		return errors.WrapInvalid(err, "main", "add", "target state")
	}

	binding, err := host.NewBinding(transport, name,
		host.WithSubjects(sc.Subjects),
		host.WithLogger(deps.GetLogger()))
	if err != nil {
		return err
	}

	opts := []stage.Option{stage.WithProcessErrorPolicy(sc.Policy())}
	if sc.SlotDepth > 0 {
		opts = append(opts, stage.WithSlotDepth(sc.SlotDepth))
	}
	st, err := p.registry.CreateStage(ctx, sc.Type, name, binding, deps, opts...)
	if err != nil {
		return err
	}

	props := make([]string, 0, len(sc.Properties))
	for prop := range sc.Properties {
		props = append(props, prop)
	}
	sort.Strings(props)
	for _, prop := range props {
		if err := st.SetProperty(prop, sc.Properties[prop]); err != nil {
			p.registry.RemoveStage(name)
			return errors.Wrap(err, "main", "add", fmt.Sprintf("property %s", prop))
		}
	}

	if err := binding.Attach(ctx, st); err != nil {
		p.registry.RemoveStage(name)
		return err
	}

	p.names = append(p.names, name)
	p.bindings[name] = binding
	p.targets[name] = target
	if p.monitor != nil {
		p.monitor.Watch(name, st)
	}
	p.logger.Info("Stage created", "stage", name, "type", sc.Type, "target", target.String())
	return nil
}

// start drives every stage to its configured target state.
func (p *pipeline) start(ctx context.Context) error {
	for _, name := range p.names {
		st := p.bindings[name].Stage()
		ret, err := st.SetState(ctx, p.targets[name])
		if err != nil {
			return errors.Wrap(err, "main", "start", fmt.Sprintf("stage %s", name))
		}
		p.logger.Info("Stage started", "stage", name, "state", st.State().String(), "result", ret.String())
	}
	return nil
}

// stop takes every stage back to Null in reverse creation order. It keeps
// going past failures and returns the first one.
func (p *pipeline) stop(ctx context.Context) error {
	var first error
	for i := len(p.names) - 1; i >= 0; i-- {
		name := p.names[i]
		st := p.bindings[name].Stage()
		if st == nil {
			continue
		}
		if _, err := st.SetState(ctx, protocol.StateNull); err != nil {
			p.logger.Error("Stage stop failed", "stage", name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	p.teardown()
	return first
}

// teardown detaches and forgets every stage.
func (p *pipeline) teardown() {
	for _, name := range p.names {
		p.bindings[name].Detach()
		p.registry.RemoveStage(name)
		if p.monitor != nil {
			p.monitor.Remove(name)
		}
	}
	p.names = nil
}

// lookup resolves stage names for the property manager.
func (p *pipeline) lookup(name string) (config.PropertyTarget, bool) {
	st := p.registry.Stage(name)
	if st == nil {
		return nil, false
	}
	return st, true
}

// stages returns the instance names in creation order.
func (p *pipeline) stages() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}
