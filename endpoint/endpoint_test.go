package endpoint

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/errors"
)

var rgba = caps.MustParse("video/x-raw, format=(string)RGBA, width=(int)[ 1, 4096 ]")

func TestDirection_Valid(t *testing.T) {
	assert.True(t, DirectionInput.Valid())
	assert.True(t, DirectionOutput.Valid())
	assert.False(t, Direction("").Valid())
	assert.False(t, Direction("sideways").Valid())
}

func TestRegistry_DenseIndices(t *testing.T) {
	r := NewRegistry()

	a, err := r.Declare(DirectionInput, "a", rgba)
	require.NoError(t, err)
	b, err := r.Declare(DirectionInput, "b", rgba)
	require.NoError(t, err)
	out, err := r.Declare(DirectionOutput, "out", caps.Any())
	require.NoError(t, err)

	assert.Equal(t, 0, a.Index)
	assert.Equal(t, 1, b.Index)
	assert.Equal(t, 0, out.Index)
	assert.Equal(t, 2, r.Count(DirectionInput))
	assert.Equal(t, 1, r.Count(DirectionOutput))
	assert.Equal(t, 0, r.Count(Direction("x")))
	assert.Equal(t, "input:b#1", b.String())
}

func TestRegistry_DuplicateNameIsFatal(t *testing.T) {
	r := NewRegistry()
	_, err := r.Declare(DirectionInput, "a", rgba)
	require.NoError(t, err)

	_, err = r.Declare(DirectionInput, "a", rgba)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateEndpoint)
	assert.True(t, errors.IsFatal(err))

	// The same name in the other direction is fine.
	_, err = r.Declare(DirectionOutput, "a", rgba)
	assert.NoError(t, err)
}

func TestRegistry_DeclareRejectsBadInput(t *testing.T) {
	r := NewRegistry()
	_, err := r.Declare(Direction(""), "a", rgba)
	assert.ErrorIs(t, err, errors.ErrNoDirection)

	_, err = r.Declare(DirectionInput, "", rgba)
	assert.True(t, errors.IsInvalid(err))
}

func TestFromTemplates(t *testing.T) {
	r, err := FromTemplates(
		[]Template{{Name: "rgb", Format: rgba}, {Name: "depth", Format: rgba}},
		[]Template{{Name: "composited", Format: rgba}},
	)
	require.NoError(t, err)

	ep, ok := r.Lookup(DirectionInput, "depth")
	require.True(t, ok)
	assert.Equal(t, 1, ep.Index)

	ep, ok = r.ByIndex(DirectionOutput, 0)
	require.True(t, ok)
	assert.Equal(t, "composited", ep.Name)

	_, ok = r.ByIndex(DirectionOutput, 1)
	assert.False(t, ok)
	_, ok = r.ByIndex(Direction(""), 0)
	assert.False(t, ok)
	_, ok = r.Lookup(DirectionOutput, "rgb")
	assert.False(t, ok)

	names := []string{}
	for _, in := range r.Inputs() {
		names = append(names, in.Name)
	}
	assert.Equal(t, []string{"rgb", "depth"}, names)
	assert.Len(t, r.Outputs(), 1)

	_, err = FromTemplates([]Template{{Name: "x"}, {Name: "x"}}, nil)
	assert.ErrorIs(t, err, errors.ErrDuplicateEndpoint)
}

func TestResolveFormat(t *testing.T) {
	r := NewRegistry()
	ep, err := r.Declare(DirectionOutput, "src", rgba)
	require.NoError(t, err)

	t.Run("no filter returns declared format", func(t *testing.T) {
		assert.True(t, r.ResolveFormat(ep, nil).Equal(rgba))
	})

	t.Run("filter intersects preferring filter order", func(t *testing.T) {
		filter := caps.MustParse("video/x-raw, width=(int)640, format=(string){ BGRA, RGBA }")
		got := r.ResolveFormat(ep, &filter)
		assert.Equal(t, "video/x-raw, width=(int)640, format=(string)RGBA", got.String())
	})

	t.Run("disjoint filter yields empty", func(t *testing.T) {
		filter := caps.MustParse("audio/x-raw")
		assert.True(t, r.ResolveFormat(ep, &filter).IsEmpty())
	})

	t.Run("unknown direction panics", func(t *testing.T) {
		assert.PanicsWithError(t, "contract violation: endpoint has no direction: format query on \"src\"", func() {
			r.ResolveFormat(Endpoint{Name: "src"}, nil)
		})
	})

	t.Run("undeclared endpoint panics", func(t *testing.T) {
		assert.Panics(t, func() {
			r.ResolveFormat(Endpoint{Direction: DirectionInput, Name: "nope"}, nil)
		})
	})
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r, err := FromTemplates([]Template{{Name: "a", Format: rgba}}, []Template{{Name: "o", Format: rgba}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep, ok := r.Lookup(DirectionInput, "a")
			assert.True(t, ok)
			assert.False(t, r.ResolveFormat(ep, nil).IsEmpty())
		}()
	}
	wg.Wait()
}
