package stage_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/metric"
	"github.com/c360/zipstage/protocol"
	"github.com/c360/zipstage/stage"
	"github.com/c360/zipstage/testutil"
)

// joinUnit concatenates every input payload with "+" into output 0.
func joinUnit(inputs ...string) *testutil.MockUnit {
	u := testutil.NewMockUnit(inputs, []string{"out"})
	u.ProcessFunc = func(in, out []*media.Buffer) error {
		parts := make([]string, len(in))
		for i, b := range in {
			parts[i] = string(b.Data)
		}
		out[0].Data = []byte(strings.Join(parts, "+"))
		out[0].CopyMetadata(in[0])
		return nil
	}
	return u
}

func newStage(t *testing.T, unit stage.Unit, opts ...stage.Option) (*stage.Stage, *testutil.MockHost) {
	t.Helper()
	host := testutil.NewMockHost()
	s, err := stage.New(context.Background(), unit, host, opts...)
	require.NoError(t, err)
	return s, host
}

func playing(t *testing.T, s *stage.Stage) {
	t.Helper()
	_, err := s.SetState(context.Background(), protocol.StatePlaying)
	require.NoError(t, err)
	require.Equal(t, protocol.StatePlaying, s.State())
}

func input(t *testing.T, s *stage.Stage, name string) endpoint.Endpoint {
	t.Helper()
	ep, ok := s.Input(name)
	require.True(t, ok, "input %s", name)
	return ep
}

func TestNew_RejectsNilArguments(t *testing.T) {
	_, err := stage.New(context.Background(), nil, testutil.NewMockHost())
	assert.Error(t, err)

	_, err = stage.New(context.Background(), testutil.NewMockUnit([]string{"a"}, nil), nil)
	assert.Error(t, err)

	_, err = stage.New(context.Background(), testutil.NewMockUnit([]string{"a"}, nil), testutil.NewMockHost(),
		stage.WithProcessErrorPolicy("retry"))
	assert.Error(t, err)
}

func TestNew_DuplicateEndpointIsFatal(t *testing.T) {
	_, err := stage.New(context.Background(), testutil.NewMockUnit([]string{"a", "a"}, nil), testutil.NewMockHost())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateEndpoint)
	assert.True(t, errors.IsFatal(err))
}

func TestNew_DeclaresEndpointsInOrder(t *testing.T) {
	s, _ := newStage(t, testutil.NewMockUnit([]string{"a", "b", "c"}, []string{"x", "y"}))

	ins := s.Endpoints().Inputs()
	require.Len(t, ins, 3)
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, ins[i].Name)
		assert.Equal(t, i, ins[i].Index)
		assert.Equal(t, endpoint.DirectionInput, ins[i].Direction)
	}

	y, ok := s.Output("y")
	require.True(t, ok)
	assert.Equal(t, 1, y.Index)
	assert.Equal(t, protocol.StateNull, s.State())
	assert.NotEmpty(t, s.ID())
}

func TestNew_AnnouncesEveryOutput(t *testing.T) {
	_, host := newStage(t, testutil.NewMockUnit([]string{"a"}, []string{"x", "y"}))

	got := host.Announced()
	require.Len(t, got, 4)
	assert.Equal(t, "x", got[0].Output)
	assert.Equal(t, protocol.EventCaps, got[0].Event.Type)
	assert.Equal(t, "x", got[1].Output)
	assert.Equal(t, protocol.EventSegment, got[1].Event.Type)
	assert.Equal(t, protocol.FormatTime, got[1].Event.Segment.Format)
	assert.Equal(t, "y", got[2].Output)
	assert.Equal(t, "y", got[3].Output)
}

func TestNew_AnnounceFailureIsNotFatal(t *testing.T) {
	host := testutil.NewMockHost()
	host.AnnounceErr = fmt.Errorf("downstream gone")

	s, err := stage.New(context.Background(), testutil.NewMockUnit([]string{"a"}, []string{"x"}), host)
	require.NoError(t, err)
	assert.False(t, s.Failed())
	assert.Empty(t, host.Errors())
}

func TestChain_TwoInputsOneOutput(t *testing.T) {
	s, host := newStage(t, joinUnit("a", "b"))
	playing(t, s)
	ctx := context.Background()
	a, b := input(t, s, "a"), input(t, s, "b")

	assert.Equal(t, protocol.FlowOK, s.Chain(ctx, a, testutil.Buffer("u1", 10)))
	assert.Empty(t, host.Pushes(), "no tuple until every input has data")

	assert.Equal(t, protocol.FlowOK, s.Chain(ctx, b, testutil.Buffer("u2", 20)))
	out := host.PushesTo("out")
	require.Len(t, out, 1)
	assert.Equal(t, "u1+u2", string(out[0].Data))
	assert.Equal(t, media.ClockTime(10), out[0].PTS)

	// Latest wins: u3 and u4 are discarded once u6 completes the tuple.
	for _, p := range []string{"u3", "u4", "u5"} {
		assert.Equal(t, protocol.FlowOK, s.Chain(ctx, a, testutil.Buffer(p, 0)))
	}
	assert.Len(t, host.PushesTo("out"), 1)
	assert.Equal(t, protocol.FlowOK, s.Chain(ctx, b, testutil.Buffer("u6", 0)))

	out = host.PushesTo("out")
	require.Len(t, out, 2)
	assert.Equal(t, "u5+u6", string(out[1].Data))

	st := s.Stats()
	assert.Equal(t, int64(6), st.Arrivals)
	assert.Equal(t, int64(2), st.Tuples)
	assert.Equal(t, int64(2), st.UnitsDropped)
	assert.Equal(t, 0, st.Pending)
}

func TestChain_SingleInputProcessesEveryArrival(t *testing.T) {
	s, host := newStage(t, joinUnit("only"))
	in := input(t, s, "only")

	for i := 0; i < 3; i++ {
		assert.Equal(t, protocol.FlowOK, s.Chain(context.Background(), in, testutil.Buffer(fmt.Sprint(i), 0)))
	}
	assert.Equal(t, []string{"0", "1", "2"}, testutil.Payloads(host.PushesTo("out")))
}

func TestChain_RoutesOutputsInIndexOrder(t *testing.T) {
	unit := testutil.NewMockUnit([]string{"a"}, []string{"x", "y", "z"})
	unit.ProcessFunc = func(in, out []*media.Buffer) error {
		for i := range out {
			out[i].Data = []byte(fmt.Sprintf("%s-%d", in[0].Data, i))
		}
		return nil
	}
	s, host := newStage(t, unit)

	s.Chain(context.Background(), input(t, s, "a"), testutil.Buffer("t", 0))

	pushes := host.Pushes()
	require.Len(t, pushes, 3)
	assert.Equal(t, "x", pushes[0].Output)
	assert.Equal(t, "y", pushes[1].Output)
	assert.Equal(t, "z", pushes[2].Output)
	assert.Equal(t, "t-2", string(pushes[2].Buffer.Data))
}

func TestChain_OutputsArePreAllocated(t *testing.T) {
	unit := testutil.NewMockUnit([]string{"a"}, []string{"x", "y"})
	var seen []*media.Buffer
	unit.ProcessFunc = func(_, out []*media.Buffer) error {
		seen = append(seen, out...)
		return nil
	}
	s, host := newStage(t, unit)

	s.Chain(context.Background(), input(t, s, "a"), testutil.Buffer("t", 0))

	require.Len(t, seen, 2)
	for _, b := range seen {
		require.NotNil(t, b)
		assert.True(t, b.IsEmpty())
		assert.Equal(t, media.ClockTimeNone, b.PTS)
	}
	assert.Len(t, host.Pushes(), 2)
}

func TestChain_DeliveryFailureContinuesRouting(t *testing.T) {
	s, host := newStage(t, testutil.NewMockUnit([]string{"a", "b"}, []string{"x", "y"}))
	host.PushErr = func(out endpoint.Endpoint) error {
		if out.Name == "x" {
			return fmt.Errorf("not linked")
		}
		return nil
	}
	ctx := context.Background()

	s.Chain(ctx, input(t, s, "a"), testutil.Buffer("1", 0))
	ret := s.Chain(ctx, input(t, s, "b"), testutil.Buffer("2", 0))

	assert.Equal(t, protocol.FlowOK, ret)
	assert.Len(t, host.PushesTo("y"), 1)
	assert.Empty(t, host.PushesTo("x"))
	assert.Equal(t, int64(1), s.Stats().DeliveryFailures)
	assert.False(t, s.Failed())
}

func TestChain_ProcessFailureFatalPolicy(t *testing.T) {
	unit := testutil.NewMockUnit([]string{"a"}, []string{"x"})
	unit.ProcessFunc = func(_, _ []*media.Buffer) error { return fmt.Errorf("bad frame") }
	s, host := newStage(t, unit)
	playing(t, s)
	in := input(t, s, "a")

	assert.Equal(t, protocol.FlowError, s.Chain(context.Background(), in, testutil.Buffer("1", 0)))
	require.Len(t, host.Errors(), 1)
	assert.ErrorIs(t, host.Errors()[0], errors.ErrProcessingFailed)
	assert.True(t, errors.IsFatal(host.Errors()[0]))
	assert.True(t, s.Failed())
	assert.Empty(t, host.Pushes())

	// Failed stages reject data without calling the unit again.
	assert.Equal(t, protocol.FlowError, s.Chain(context.Background(), in, testutil.Buffer("2", 0)))
	_, _, _, _, processed := unit.Calls()
	assert.Equal(t, 1, processed)

	h := s.Health()
	assert.False(t, h.Healthy)
	assert.Contains(t, h.LastError, "bad frame")

	// Going back through Null recovers the stage.
	_, err := s.SetState(context.Background(), protocol.StateNull)
	require.NoError(t, err)
	_, err = s.SetState(context.Background(), protocol.StateReady)
	require.NoError(t, err)
	assert.False(t, s.Failed())
}

func TestChain_ProcessFailureDropPolicy(t *testing.T) {
	fail := true
	unit := testutil.NewMockUnit([]string{"a"}, []string{"x"})
	unit.ProcessFunc = func(in, out []*media.Buffer) error {
		if fail {
			return fmt.Errorf("bad frame")
		}
		out[0].Data = in[0].Data
		return nil
	}
	s, host := newStage(t, unit, stage.WithProcessErrorPolicy(stage.PolicyDrop))
	in := input(t, s, "a")

	assert.Equal(t, protocol.FlowOK, s.Chain(context.Background(), in, testutil.Buffer("1", 0)))
	assert.Empty(t, host.Errors())
	assert.Empty(t, host.Pushes())
	assert.False(t, s.Failed())

	fail = false
	assert.Equal(t, protocol.FlowOK, s.Chain(context.Background(), in, testutil.Buffer("2", 0)))
	assert.Equal(t, []string{"2"}, testutil.Payloads(host.PushesTo("x")))
	assert.Equal(t, int64(1), s.Stats().ProcessingFailures)
}

func TestChain_NilOutputIsContractViolation(t *testing.T) {
	unit := testutil.NewMockUnit([]string{"a"}, []string{"x"})
	unit.ProcessFunc = func(_, out []*media.Buffer) error {
		out[0] = nil
		return nil
	}
	s, host := newStage(t, unit)

	assert.Equal(t, protocol.FlowError, s.Chain(context.Background(), input(t, s, "a"), testutil.Buffer("1", 0)))
	require.Len(t, host.Errors(), 1)
	assert.ErrorIs(t, host.Errors()[0], errors.ErrArityMismatch)
	assert.True(t, errors.IsContractViolation(host.Errors()[0]))
	assert.True(t, s.Failed())
}

func TestChain_PanicInProcessIsRecovered(t *testing.T) {
	unit := testutil.NewMockUnit([]string{"a"}, []string{"x"})
	unit.ProcessFunc = func(_, _ []*media.Buffer) error { panic("boom") }
	s, host := newStage(t, unit)

	assert.NotPanics(t, func() {
		assert.Equal(t, protocol.FlowError, s.Chain(context.Background(), input(t, s, "a"), testutil.Buffer("1", 0)))
	})
	require.Len(t, host.Errors(), 1)
	assert.Contains(t, host.Errors()[0].Error(), "boom")

	// Locks were released on the way out.
	assert.NotPanics(t, func() { s.Stats() })
}

func TestChain_UndeclaredInput(t *testing.T) {
	s, host := newStage(t, joinUnit("a"))
	out, _ := s.Output("out")

	assert.Equal(t, protocol.FlowError, s.Chain(context.Background(), out, testutil.Buffer("1", 0)))
	assert.ErrorIs(t, host.Errors()[0], errors.ErrUnknownEndpoint)

	s2, _ := newStage(t, joinUnit("a"))
	assert.Equal(t, protocol.FlowNotLinked, s2.ChainByName(context.Background(), "missing", testutil.Buffer("1", 0)))
	assert.False(t, s2.Failed())
}

func TestChain_ConcurrentInputs(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	unit := testutil.NewMockUnit([]string{"a", "b"}, []string{"out"})
	unit.ProcessFunc = func(_, out []*media.Buffer) error {
		mu.Lock()
		inFlight++
		busy := inFlight
		mu.Unlock()
		if busy > 1 {
			return fmt.Errorf("process ran concurrently")
		}
		out[0].Data = []byte("ok")
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}
	s, host := newStage(t, unit)
	a, b := input(t, s, "a"), input(t, s, "b")

	const n = 200
	var wg sync.WaitGroup
	for _, ep := range []endpoint.Endpoint{a, b} {
		wg.Add(1)
		go func(ep endpoint.Endpoint) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				s.Chain(context.Background(), ep, testutil.Buffer("x", int64(i)))
			}
		}(ep)
	}
	wg.Wait()

	st := s.Stats()
	assert.Equal(t, int64(2*n), st.Arrivals)
	assert.Empty(t, host.Errors())
	assert.Equal(t, int(st.Tuples), len(host.PushesTo("out")))
	assert.Positive(t, st.Tuples)
}

func TestStage_MetricsRecorded(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s, _ := newStage(t, joinUnit("a"), stage.WithName("metered"), stage.WithMetrics(registry))
	playing(t, s)

	s.Chain(context.Background(), input(t, s, "a"), testutil.Buffer("1", 0))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["zipstage_stage_arrivals_total"])
	assert.True(t, names["zipstage_stage_tuples_total"])
	assert.True(t, names["zipstage_stage_state"])
}

func TestStage_Metadata(t *testing.T) {
	s, _ := newStage(t, joinUnit("a"))
	assert.Equal(t, stage.DefaultMetadata(), s.Metadata())
}

func TestHandleQuery_CapsOnUnknownDirection(t *testing.T) {
	s, host := newStage(t, joinUnit("a"))

	q := &protocol.CapsQuery{}
	assert.False(t, s.HandleQuery(context.Background(), endpoint.Endpoint{Name: "ghost"}, q))
	require.Len(t, host.Errors(), 1)
	assert.ErrorIs(t, host.Errors()[0], errors.ErrNoDirection)
	assert.True(t, s.Failed())
}

func TestHandleQuery_CapsFilter(t *testing.T) {
	unit := testutil.NewMockUnit(nil, nil)
	unit.Inputs = []endpoint.Template{{
		Name:   "video",
		Format: caps.MustParse("video/x-raw, format=(string){ RGBA, BGRA, GRAY8 }"),
	}}
	s, _ := newStage(t, unit)
	ep := input(t, s, "video")

	q := &protocol.CapsQuery{}
	require.True(t, s.HandleQuery(context.Background(), ep, q))
	assert.True(t, q.Result.Equal(ep.Format))

	filter := caps.MustParse("video/x-raw, format=(string){ GRAY8, RGBA }")
	q = &protocol.CapsQuery{Filter: &filter}
	require.True(t, s.HandleQuery(context.Background(), ep, q))
	require.Equal(t, 1, q.Result.Len())
	format, _ := q.Result.Structure(0).Get("format")
	assert.Equal(t, caps.List{caps.String("GRAY8"), caps.String("RGBA")}, format)
}

func TestHandleQuery_FixedAnswers(t *testing.T) {
	s, _ := newStage(t, joinUnit("a"))
	ep := input(t, s, "a")
	ctx := context.Background()

	lat := &protocol.LatencyQuery{Live: true}
	require.True(t, s.HandleQuery(ctx, ep, lat))
	assert.False(t, lat.Live)
	assert.Equal(t, media.ClockTime(1_000_000), lat.Min)
	assert.Equal(t, media.ClockTime(100_000_000), lat.Max)

	sched := &protocol.SchedulingQuery{}
	require.True(t, s.HandleQuery(ctx, ep, sched))
	assert.Equal(t, protocol.SchedulingSequential, sched.Flags)
	assert.Equal(t, 1, sched.MinSize)
	assert.Equal(t, -1, sched.MaxSize)
	assert.Equal(t, 0, sched.Align)
	assert.Equal(t, []protocol.PadMode{protocol.PadModePush}, sched.Modes)

	accept := &protocol.AcceptCapsQuery{Caps: caps.MustParse("audio/x-raw")}
	require.True(t, s.HandleQuery(ctx, ep, accept))
	assert.True(t, accept.Result)

	seek := &protocol.SeekingQuery{Seekable: true, Start: 5, End: 10}
	require.True(t, s.HandleQuery(ctx, ep, seek))
	assert.False(t, seek.Seekable)
	assert.Equal(t, protocol.FormatTime, seek.Format)
	assert.Zero(t, seek.Start)
	assert.Zero(t, seek.End)

	assert.False(t, s.HandleQuery(ctx, ep, &protocol.PositionQuery{}))
	assert.False(t, s.HandleQuery(ctx, ep, &protocol.DurationQuery{}))
	assert.False(t, s.Failed())
}

func TestStage_Properties(t *testing.T) {
	unit := testutil.NewMockUnit([]string{"a"}, []string{"x"})
	unit.Props = []stage.PropertySpec{
		{Name: "alpha", Kind: stage.PropertyFloat, Flags: stage.PropertyReadWrite, Default: 0.5, Min: 0, Max: 1},
		{Name: "label", Kind: stage.PropertyString, Flags: stage.PropertyReadable, Default: "fixed"},
	}
	s, _ := newStage(t, unit)

	props := s.Properties()
	require.Len(t, props, 2)
	assert.Equal(t, "alpha", props[0].Name)

	v, err := s.Property("alpha")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	require.NoError(t, s.SetProperty("alpha", 0.25))
	v, err = s.Property("alpha")
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	require.NoError(t, s.SetProperty("alpha", "0.75"))
	v, _ = s.Property("alpha")
	assert.Equal(t, 0.75, v)

	err = s.SetProperty("alpha", 2.0)
	assert.ErrorIs(t, err, errors.ErrPropertyType)
	assert.True(t, errors.IsInvalid(err))

	assert.ErrorIs(t, s.SetProperty("label", "x"), errors.ErrPropertyNotWritable)
	assert.ErrorIs(t, s.SetProperty("nope", 1), errors.ErrUnknownProperty)
	_, err = s.Property("nope")
	assert.ErrorIs(t, err, errors.ErrUnknownProperty)
}
