package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/protocol"
)

// Chain delivers a data unit arriving at input endpoint in. When the unit
// completes a tuple, the processing unit runs on the calling goroutine and
// its outputs are pushed to the host in output index order before Chain
// returns.
//
// Chain returns FlowFlushing between flush-start and flush-stop, FlowError
// once the stage has failed, and FlowError when a contract violation or
// panic is recovered during dispatch.
func (s *Stage) Chain(ctx context.Context, in endpoint.Endpoint, buf *media.Buffer) (ret protocol.FlowReturn) {
	defer func() {
		if r := recover(); r != nil {
			s.contractFailure("Chain", r)
			ret = protocol.FlowError
		}
	}()

	epoch := s.resets.Load()
	if s.failed.Load() {
		return protocol.FlowError
	}
	if s.flushing.Load() {
		return protocol.FlowFlushing
	}

	s.checkInput(in)
	s.arrivals.Add(1)
	s.touch()
	s.metrics.RecordArrival(s.name, in.Name)
	s.logger.Debug("Handling buffer", "endpoint", in.Name, "size", buf.Size(), "pts", buf.PTS)

	s.zipMu.Lock()
	defer s.zipMu.Unlock()

	// A reset or failure may have landed while this arrival waited for the
	// lock. Its unit predates the reset and must not enter a cleared slot.
	if s.failed.Load() {
		return protocol.FlowError
	}
	if s.flushing.Load() || s.resets.Load() != epoch {
		s.logger.Debug("Discarding buffer older than slot reset", "endpoint", in.Name)
		return protocol.FlowFlushing
	}

	s.zip.Push(buf, in.Index)
	tuple, ok := s.zip.TryZip()
	if !ok {
		return protocol.FlowOK
	}
	return s.dispatch(ctx, tuple)
}

// ChainByName is Chain for callers that only know the input name.
func (s *Stage) ChainByName(ctx context.Context, input string, buf *media.Buffer) protocol.FlowReturn {
	in, ok := s.Input(input)
	if !ok {
		s.logger.Warn("Buffer for unknown input", "endpoint", input)
		return protocol.FlowNotLinked
	}
	return s.Chain(ctx, in, buf)
}

func (s *Stage) checkInput(in endpoint.Endpoint) {
	if in.Direction != endpoint.DirectionInput {
		errors.Violate(errors.ErrUnknownEndpoint, "data arrived on %s", in)
	}
	if in.Index < 0 || in.Index >= len(s.inputs) || s.inputs[in.Index].Name != in.Name {
		errors.Violate(errors.ErrUnknownEndpoint, "data arrived on undeclared %s", in)
	}
}

// dispatch runs with zipMu held.
func (s *Stage) dispatch(ctx context.Context, tuple []*media.Buffer) protocol.FlowReturn {
	nIn, nOut := len(s.inputs), len(s.outputs)

	if len(tuple) != nIn {
		errors.Violate(errors.ErrArityMismatch, "tuple has %d units for %d inputs", len(tuple), nIn)
	}
	outputs := make([]*media.Buffer, nOut)
	for i := range outputs {
		outputs[i] = media.New()
	}

	s.logger.Debug("Processing tuple", "inputs", nIn, "outputs", nOut)

	start := time.Now()
	err := s.process(tuple, outputs)
	elapsed := time.Since(start)

	if err != nil {
		return s.processFailed(err, elapsed)
	}

	for i, out := range outputs {
		if out == nil {
			errors.Violate(errors.ErrArityMismatch, "output %d (%s) left empty by process", i, s.outputs[i].Name)
		}
	}

	s.tuples.Add(1)
	s.metrics.RecordTuple(s.name, "ok", elapsed)
	s.route(ctx, outputs)
	return protocol.FlowOK
}

func (s *Stage) process(inputs, outputs []*media.Buffer) error {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	return s.unit.Process(inputs, outputs)
}

func (s *Stage) processFailed(err error, elapsed time.Duration) protocol.FlowReturn {
	s.procFailures.Add(1)
	s.metrics.RecordTuple(s.name, "error", elapsed)
	s.metrics.RecordProcessingFailure(s.name, string(s.policy))

	wrapped := fmt.Errorf("%w: %w", errors.ErrProcessingFailed, err)
	if s.policy == PolicyDrop {
		s.logger.Warn("Processing failed, dropping tuple", "error", err)
		s.lastErr.Store(wrapped.Error())
		return protocol.FlowOK
	}

	s.logger.Error("Processing failed", "error", err)
	s.fail(errors.WrapFatal(wrapped, "Stage", "Chain", "process"))
	return protocol.FlowError
}

// route pushes outputs in index order. Delivery failures are logged and the
// remaining outputs are still delivered.
func (s *Stage) route(ctx context.Context, outputs []*media.Buffer) {
	for i, buf := range outputs {
		out := s.outputs[i]
		err := s.host.Push(ctx, out, buf)
		if err != nil {
			s.delivFails.Add(1)
			s.metrics.RecordDeliveryFailure(s.name, out.Name)
			s.logger.Warn("Pushing buffer failed",
				"endpoint", out.Name,
				"error", err)
			continue
		}
		s.logger.Debug("Pushed buffer", "endpoint", out.Name, "size", buf.Size())
	}
}
