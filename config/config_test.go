package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/protocol"
	"github.com/c360/zipstage/stage"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Version = "1.0.0"
	cfg.Stages = map[string]StageConfig{
		"mix": {Type: "overlay", ErrorPolicy: "drop", State: "paused"},
		"tap": {Type: "identity"},
	}
	return cfg
}

func TestConfig_ValidateDefaults(t *testing.T) {
	require.NoError(t, Defaults().Validate())
	require.NoError(t, validConfig().Validate())
}

func TestConfig_ValidateNormalizesCase(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "DEBUG"
	cfg.Transport.Kind = "NATS"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, TransportNATS, cfg.Transport.Kind)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad version", func(c *Config) { c.Version = "1.0" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "kafka" }},
		{"nats without urls", func(c *Config) { c.Transport.NATS.URLs = nil }},
		{"mqtt without broker", func(c *Config) { c.Transport.Kind = TransportMQTT }},
		{"mqtt qos", func(c *Config) {
			c.Transport.Kind = TransportMQTT
			c.Transport.MQTT.Broker = "tcp://localhost:1883"
			c.Transport.MQTT.QoS = 3
		}},
		{"mqtt with properties", func(c *Config) {
			c.Transport.Kind = TransportMQTT
			c.Transport.MQTT.Broker = "tcp://localhost:1883"
			c.Properties.Enabled = true
		}},
		{"bad bucket", func(c *Config) { c.Properties.Enabled = true; c.Properties.Bucket = "has space" }},
		{"dotted stage name", func(c *Config) { c.Stages["a.b"] = StageConfig{Type: "identity"} }},
		{"missing type", func(c *Config) { c.Stages["x"] = StageConfig{} }},
		{"negative depth", func(c *Config) { c.Stages["x"] = StageConfig{Type: "identity", SlotDepth: -1} }},
		{"bad policy", func(c *Config) { c.Stages["x"] = StageConfig{Type: "identity", ErrorPolicy: "retry"} }},
		{"bad state", func(c *Config) { c.Stages["x"] = StageConfig{Type: "identity", State: "flying"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestStageConfig_Defaults(t *testing.T) {
	var sc StageConfig
	st, err := sc.TargetState()
	require.NoError(t, err)
	assert.Equal(t, protocol.StatePlaying, st)
	assert.Equal(t, stage.PolicyFatal, sc.Policy())

	sc = StageConfig{State: "Ready", ErrorPolicy: "drop"}
	st, err = sc.TargetState()
	require.NoError(t, err)
	assert.Equal(t, protocol.StateReady, st)
	assert.Equal(t, stage.PolicyDrop, sc.Policy())
}

func TestConfig_EnabledStages(t *testing.T) {
	cfg := validConfig()
	cfg.Stages["off"] = StageConfig{Type: "identity", Disabled: true}
	assert.Equal(t, []string{"mix", "tap"}, cfg.EnabledStages())
}

func TestConfig_CloneIsDeep(t *testing.T) {
	cfg := validConfig()
	cfg.Stages["mix"] = StageConfig{Type: "overlay", Properties: map[string]any{"alpha": 0.5}}

	clone := cfg.Clone()
	clone.Stages["mix"].Properties["alpha"] = 0.9
	clone.Transport.NATS.URLs[0] = "nats://elsewhere:4222"

	assert.Equal(t, 0.5, cfg.Stages["mix"].Properties["alpha"])
	assert.Equal(t, "nats://localhost:4222", cfg.Transport.NATS.URLs[0])
	assert.NotNil(t, (*Config)(nil).Clone())
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	assert.NotNil(t, sc.Get())

	assert.Error(t, sc.Update(nil))

	bad := validConfig()
	bad.Transport.Kind = "smoke"
	assert.Error(t, sc.Update(bad))

	good := validConfig()
	require.NoError(t, sc.Update(good))
	got := sc.Get()
	assert.Equal(t, "1.0.0", got.Version)

	got.Version = "9.9.9"
	assert.Equal(t, "1.0.0", sc.Get().Version)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"v1.2.0", "1.1.9", 1},
		{"1.2.3", "1.10.0", -1},
		{"2.0.0", "1.99.99", 1},
	}
	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}

	_, err := CompareVersions("1.0", "1.0.0")
	assert.Error(t, err)
	_, err = CompareVersions("1.0.0", "1.x.0")
	assert.Error(t, err)
}

func TestConfig_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.json")
	cfg := validConfig()
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Stages, loaded.Stages)
	assert.Equal(t, cfg.Transport.NATS.ReconnectWait, loaded.Transport.NATS.ReconnectWait)
	assert.Contains(t, cfg.String(), `"mix"`)
}
