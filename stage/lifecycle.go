package stage

import (
	"context"
	"fmt"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/protocol"
)

// State returns the current lifecycle state.
func (s *Stage) State() protocol.State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.current
}

// States returns the current state and, while a SetState walk is in
// progress, its target.
func (s *Stage) States() (current, pending protocol.State, hasPending bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.current, s.pending, s.hasPending
}

func (s *Stage) setCurrent(st protocol.State) {
	s.stateMu.Lock()
	s.current = st
	s.stateMu.Unlock()
	s.metrics.RecordState(s.name, int(st))
}

func (s *Stage) setPending(st protocol.State, ok bool) {
	s.stateMu.Lock()
	s.pending, s.hasPending = st, ok
	s.stateMu.Unlock()
}

// playingOrPending reports whether the stage is Playing or on its way there.
func (s *Stage) playingOrPending() bool {
	cur, pending, ok := s.States()
	return cur == protocol.StatePlaying || (ok && pending == protocol.StatePlaying)
}

// SetState walks one adjacent transition at a time to target. It returns the
// outcome of the last step; the walk stops at the first failure.
func (s *Stage) SetState(ctx context.Context, target protocol.State) (protocol.StateChangeReturn, error) {
	if !target.Valid() {
		return protocol.StateChangeFailure, errors.WrapInvalid(
			fmt.Errorf("%w: target %s", errors.ErrInvalidTransition, target), "Stage", "SetState", "target check")
	}

	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	s.setPending(target, true)
	defer s.setPending(protocol.StateNull, false)

	ret := protocol.StateChangeSuccess
	for _, step := range protocol.Path(s.State(), target) {
		var err error
		if ret, err = s.changeState(ctx, step); err != nil {
			return ret, err
		}
	}
	return ret, nil
}

// ChangeState performs one transition. The transition must start from the
// current state and move to an adjacent one.
func (s *Stage) ChangeState(ctx context.Context, t protocol.Transition) (protocol.StateChangeReturn, error) {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()
	return s.changeState(ctx, t)
}

func (s *Stage) changeState(ctx context.Context, t protocol.Transition) (protocol.StateChangeReturn, error) {
	if !t.Valid() || t.From != s.State() {
		return protocol.StateChangeFailure, errors.WrapInvalid(
			fmt.Errorf("%w: %s while %s", errors.ErrInvalidTransition, t, s.State()),
			"Stage", "ChangeState", "transition check")
	}

	s.logger.Debug("Changing state", "transition", t.String())

	ret := protocol.StateChangeSuccess
	switch t {
	case protocol.NullToReady:
		if err := s.prepare(ctx); err != nil {
			wrapped := errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrPrepareFailed, err), "Stage", "ChangeState", "prepare")
			s.host.PostError(wrapped)
			s.lastErr.Store(wrapped.Error())
			s.logger.Error("Prepare failed", "error", err)
			return protocol.StateChangeFailure, wrapped
		}
		s.failed.Store(false)
	case protocol.ReadyToPaused:
		// Live-source semantics: nothing is produced while paused.
		ret = protocol.StateChangeNoPreroll
	case protocol.PausedToPlaying:
		if err := s.start(ctx); err != nil {
			s.logger.Error("Start failed", "error", err)
			return protocol.StateChangeFailure, errors.WrapTransient(err, "Stage", "ChangeState", "start")
		}
	case protocol.PlayingToPaused:
		s.stop(ctx)
	case protocol.PausedToReady:
		s.flushing.Store(false)
	case protocol.ReadyToNull:
		s.unprepare(ctx)
	}

	s.setCurrent(t.To)
	s.logger.Debug("State changed", "state", t.To.String(), "result", ret.String())
	return ret, nil
}

func (s *Stage) prepare(ctx context.Context) error {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	if s.prepared {
		return nil
	}
	s.logger.Debug("Preparing")
	if p, ok := s.unit.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return err
		}
	}
	s.prepared = true
	s.logger.Debug("Prepared")
	return nil
}

// unprepare releases unit resources. Failures are logged and teardown continues.
func (s *Stage) unprepare(ctx context.Context) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	if !s.prepared {
		return
	}
	s.logger.Debug("Unpreparing")
	if u, ok := s.unit.(Unpreparer); ok {
		if err := u.Unprepare(ctx); err != nil {
			s.logger.Warn("Unprepare failed", "error", err)
		}
	}
	s.prepared = false
	s.logger.Debug("Unprepared")
}

// start arms the unit. It is a no-op when already started.
func (s *Stage) start(ctx context.Context) error {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Debug("Starting")
	if st, ok := s.unit.(Starter); ok {
		if err := st.Start(ctx); err != nil {
			return err
		}
	}
	s.started = true
	s.logger.Debug("Started")
	return nil
}

// stop quiesces the unit and clears every synchronizer slot. The slot reset
// happens under the synchronizer lock even when the unit is already stopped,
// so no pending unit survives. Hook failures are logged.
func (s *Stage) stop(ctx context.Context) {
	s.zipMu.Lock()
	defer s.zipMu.Unlock()

	s.zip.Reset()
	s.resets.Add(1)

	s.procMu.Lock()
	defer s.procMu.Unlock()

	if !s.started {
		return
	}
	s.logger.Debug("Stopping")
	if st, ok := s.unit.(Stopper); ok {
		if err := st.Stop(ctx); err != nil {
			s.logger.Warn("Stop failed", "error", err)
		}
	}
	s.started = false
	s.logger.Debug("Stopped")
}
