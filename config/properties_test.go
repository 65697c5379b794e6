package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/natsclient"
)

type fakeTarget struct {
	mu     sync.Mutex
	values map[string]any
	reject string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{values: map[string]any{}}
}

func (f *fakeTarget) SetProperty(name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == f.reject {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, name), "fakeTarget", "SetProperty", "check")
	}
	f.values[name] = value
	return nil
}

func (f *fakeTarget) get(name string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[name]
	return v, ok
}

func lookupOf(targets map[string]*fakeTarget) TargetLookup {
	return func(name string) (PropertyTarget, bool) {
		t, ok := targets[name]
		return t, ok
	}
}

func TestPropertyKey(t *testing.T) {
	assert.Equal(t, "mix.alpha", PropertyKey("mix", "alpha"))
}

func TestPropertyManager_HandleUpdate(t *testing.T) {
	mix := newFakeTarget()
	mix.reject = "locked"
	pm := newPropertyManager(lookupOf(map[string]*fakeTarget{"mix": mix}), nil)

	require.NoError(t, pm.handleUpdate("mix.alpha", []byte("0.25")))
	v, ok := mix.get("alpha")
	require.True(t, ok)
	assert.Equal(t, 0.25, v)

	require.NoError(t, pm.handleUpdate("mix.label", []byte(`"front"`)))
	v, _ = mix.get("label")
	assert.Equal(t, "front", v)

	tests := []struct {
		name   string
		key    string
		value  string
		target error
	}{
		{"no property", "mix", "1", errors.ErrInvalidConfig},
		{"empty stage", ".alpha", "1", errors.ErrInvalidConfig},
		{"nested property", "mix.a.b", "1", errors.ErrInvalidConfig},
		{"bad json", "mix.alpha", "{", errors.ErrInvalidData},
		{"unknown stage", "tap.alpha", "1", errors.ErrConfigNotFound},
		{"rejected by stage", "mix.locked", "true", errors.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pm.handleUpdate(tt.key, []byte(tt.value))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	applied, rejected := pm.Counts()
	assert.Equal(t, int64(2), applied)
	assert.Equal(t, int64(len(tests)), rejected)
}

func TestPropertyManager_IgnoresUpdatesAfterStop(t *testing.T) {
	mix := newFakeTarget()
	pm := newPropertyManager(lookupOf(map[string]*fakeTarget{"mix": mix}), nil)

	require.NoError(t, pm.Stop(time.Second))
	require.NoError(t, pm.Stop(time.Second))

	require.NoError(t, pm.handleUpdate("mix.alpha", []byte("1")))
	_, ok := mix.get("alpha")
	assert.False(t, ok)
}

func TestNewPropertyManager_RequiresClient(t *testing.T) {
	_, err := NewPropertyManager(context.Background(), nil, PropertiesConfig{Bucket: "b"}, nil, nil)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsFatal(err))
}

func TestIntegration_PropertyManager(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mix := newFakeTarget()
	lookup := lookupOf(map[string]*fakeTarget{"mix": mix})
	pm, err := NewPropertyManager(ctx, tc.Client, PropertiesConfig{Enabled: true, Bucket: "props_test", History: 2}, lookup, nil)
	require.NoError(t, err)

	// Written before Start, delivered as an initial value.
	require.NoError(t, pm.Put(ctx, "mix", "alpha", 0.5))

	require.NoError(t, pm.Start(ctx))
	defer func() { _ = pm.Stop(5 * time.Second) }()

	require.Eventually(t, func() bool {
		v, ok := mix.get("alpha")
		return ok && v == 0.5
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, pm.Put(ctx, "mix", "alpha", 0.75))
	require.NoError(t, pm.Put(ctx, "ghost", "alpha", 1))

	require.Eventually(t, func() bool {
		v, _ := mix.get("alpha")
		_, rejected := pm.Counts()
		return v == 0.75 && rejected == 1
	}, 10*time.Second, 50*time.Millisecond)
}
