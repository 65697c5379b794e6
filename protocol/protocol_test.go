package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/media"
)

func TestPath(t *testing.T) {
	assert.Equal(t, []Transition{NullToReady, ReadyToPaused, PausedToPlaying}, Path(StateNull, StatePlaying))
	assert.Equal(t, []Transition{PlayingToPaused, PausedToReady, ReadyToNull}, Path(StatePlaying, StateNull))
	assert.Empty(t, Path(StatePaused, StatePaused))
}

func TestTransition_Valid(t *testing.T) {
	assert.True(t, NullToReady.Valid())
	assert.True(t, PlayingToPaused.Valid())
	assert.False(t, Transition{StateNull, StatePlaying}.Valid())
	assert.False(t, Transition{StatePlaying, State(9)}.Valid())
	assert.Equal(t, "paused->playing", PausedToPlaying.String())
}

func TestParseState(t *testing.T) {
	s, err := ParseState("PLAYING")
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, s)

	_, err = ParseState("running")
	assert.Error(t, err)

	var decoded struct {
		Target State `json:"target"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"target":"ready"}`), &decoded))
	assert.Equal(t, StateReady, decoded.Target)
	assert.Equal(t, "state(7)", State(7).String())
}

func TestFlowReturn(t *testing.T) {
	assert.True(t, FlowError.IsFatal())
	assert.True(t, FlowNotNegotiated.IsFatal())
	assert.False(t, FlowFlushing.IsFatal())
	assert.Equal(t, "flushing", FlowFlushing.String())
}

func TestQueryEnvelope_CapsQuery(t *testing.T) {
	filter := caps.MustParse("video/x-raw, format=(string)RGBA")
	env := QueryEnvelope{Endpoint: "src", Output: true}
	require.NoError(t, env.EncodeQuery(&CapsQuery{Filter: &filter}))

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var back QueryEnvelope
	require.NoError(t, json.Unmarshal(raw, &back))
	q, err := back.DecodeQuery()
	require.NoError(t, err)

	cq, ok := q.(*CapsQuery)
	require.True(t, ok)
	require.NotNil(t, cq.Filter)
	assert.True(t, cq.Filter.Equal(filter))
}

func TestQueryEnvelope_Errors(t *testing.T) {
	_, err := (&QueryEnvelope{Type: "bogus"}).DecodeQuery()
	assert.True(t, errors.IsInvalid(err))

	_, err = (&QueryEnvelope{Type: QueryLatency, Query: json.RawMessage(`{"live":"x"}`)}).DecodeQuery()
	assert.True(t, errors.IsInvalid(err))

	q, err := (&QueryEnvelope{Type: QuerySeeking}).DecodeQuery()
	require.NoError(t, err)
	assert.Equal(t, QuerySeeking, q.Type())
}

func TestEventConstructors(t *testing.T) {
	seg := DefaultTimeSegment()
	assert.Equal(t, FormatTime, seg.Format)
	assert.Equal(t, media.ClockTimeNone, seg.Stop)

	ev := NewSegment(seg)
	assert.Equal(t, EventSegment, ev.Type)
	assert.True(t, NewFlushStop(true).ResetTime)

	c := NewCaps(caps.MustParse("image/png"))
	raw, err := json.Marshal(EventEnvelope{Endpoint: "src", Event: c})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"caps":"image/png"`)
}
