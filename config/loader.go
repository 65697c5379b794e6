package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/c360/zipstage/errors"
)

// EnvPrefix prefixes environment overrides, e.g. ZIPSTAGE_NATS_URLS.
const EnvPrefix = "ZIPSTAGE"

// File formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// durationKeys are converted from strings like "2s" or "1d" to nanoseconds
// wherever they appear.
var durationKeys = map[string]bool{
	"reconnect_wait":  true,
	"request_timeout": true,
	"connect_timeout": true,
	"publish_timeout": true,
	"initial_delay":   true,
	"max_delay":       true,
}

// formatOf picks the decoder from the file extension.
func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported config format: %s (want .json, .yaml, .yml or .toml)", path)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix, lookupEnv: os.LookupEnv}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation turns on schema and semantic validation.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func LoadFile(path string) (*Config, error) {
	l := NewLoader()
	l.AddLayer(path)
	l.EnableValidation(true)
	return l.Load()
}

// Load merges defaults, every layer and environment overrides, in that order.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Defaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %s: %w", errors.ErrInvalidConfig, path, err),
				"Loader", "Load", "load layer")
		}
		merged = deepMergeMaps(merged, raw)
	}

	if l.validation {
		if err := ValidateSchema(merged); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "Loader", "Load", "decode config")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Defaults returns the configuration used before any layer is applied.
func Defaults() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090", Path: "/metrics"},
		Transport: TransportConfig{
			Kind: TransportNATS,
			NATS: NATSConfig{
				URLs:           []string{"nats://localhost:4222"},
				MaxReconnects:  -1,
				ReconnectWait:  2 * time.Second,
				RequestTimeout: 5 * time.Second,
			},
			MQTT:  MQTTConfig{QoS: 1},
			Retry: errors.DefaultRetryConfig(),
		},
		Properties: PropertiesConfig{Bucket: "zipstage_properties", History: 5},
	}
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// loadRaw reads one layer into a generic map.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	return decodeRaw(format, data)
}

func decodeRaw(format string, data []byte) (map[string]any, error) {
	raw := map[string]any{}
	switch format {
	case FormatJSON:
		if err := checkJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil && !stderrors.Is(err, io.EOF) {
			return nil, err
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	// Round trip through JSON so every decoder yields the same value types.
	normalized, err := toMap(raw)
	if err != nil {
		return nil, err
	}
	parseDurations(normalized)
	return normalized, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) {
	for k, v := range data {
		switch val := v.(type) {
		case map[string]any:
			parseDurations(val)
		case []any:
			for _, item := range val {
				if m, ok := item.(map[string]any); ok {
					parseDurations(m)
				}
			}
		case string:
			if durationKeys[k] {
				if d, err := parseDurationWithDays(val); err == nil {
					data[k] = d.Nanoseconds()
				}
			}
		}
	}
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		suffix string
		apply  func(string) error
	}{
		{"LOG_LEVEL", func(v string) error { cfg.Log.Level = v; return nil }},
		{"LOG_FORMAT", func(v string) error { cfg.Log.Format = v; return nil }},
		{"METRICS_ADDR", func(v string) error { cfg.Metrics.Addr = v; return nil }},
		{"TRANSPORT_KIND", func(v string) error { cfg.Transport.Kind = v; return nil }},
		{"NATS_URLS", func(v string) error { cfg.Transport.NATS.URLs = strings.Split(v, ","); return nil }},
		{"NATS_USERNAME", func(v string) error { cfg.Transport.NATS.Username = v; return nil }},
		{"NATS_PASSWORD", func(v string) error { cfg.Transport.NATS.Password = v; return nil }},
		{"NATS_TOKEN", func(v string) error { cfg.Transport.NATS.Token = v; return nil }},
		{"MQTT_BROKER", func(v string) error { cfg.Transport.MQTT.Broker = v; return nil }},
		{"MQTT_CLIENT_ID", func(v string) error { cfg.Transport.MQTT.ClientID = v; return nil }},
		{"MQTT_USERNAME", func(v string) error { cfg.Transport.MQTT.Username = v; return nil }},
		{"MQTT_PASSWORD", func(v string) error { cfg.Transport.MQTT.Password = v; return nil }},
		{"MQTT_QOS", func(v string) error {
			q, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return err
			}
			cfg.Transport.MQTT.QoS = byte(q)
			return nil
		}},
		{"PROPERTIES_BUCKET", func(v string) error { cfg.Properties.Bucket = v; return nil }},
	}

	for _, o := range overrides {
		key := l.envPrefix + "_" + o.suffix
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			continue
		}
		if err := checkEnvValue(key, val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", key)
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s: %w", errors.ErrInvalidConfig, key, err),
				"Loader", "applyEnvOverrides", key)
		}
	}
	return nil
}
