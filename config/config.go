package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/host"
	"github.com/c360/zipstage/protocol"
	"github.com/c360/zipstage/stage"
)

// Transport kinds
const (
	TransportNATS = "nats"
	TransportMQTT = "mqtt"
)

// Config is the complete zipstage configuration.
type Config struct {
	Version    string                 `json:"version,omitempty"` // Semantic version, e.g. "1.0.0"
	Log        LogConfig              `json:"log"`
	Metrics    MetricsConfig          `json:"metrics"`
	Transport  TransportConfig        `json:"transport"`
	Properties PropertiesConfig       `json:"properties"`
	Stages     map[string]StageConfig `json:"stages"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TransportConfig selects and configures the message transport.
type TransportConfig struct {
	Kind  string             `json:"kind"`
	NATS  NATSConfig         `json:"nats,omitempty"`
	MQTT  MQTTConfig         `json:"mqtt,omitempty"`
	Retry errors.RetryConfig `json:"retry,omitempty"`
}

// NATSConfig defines NATS connection settings.
type NATSConfig struct {
	URLs           []string      `json:"urls,omitempty"`
	MaxReconnects  int           `json:"max_reconnects,omitempty"`
	ReconnectWait  time.Duration `json:"reconnect_wait,omitempty"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`
	Username       string        `json:"username,omitempty"`
	Password       string        `json:"password,omitempty"`
	Token          string        `json:"token,omitempty"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker         string        `json:"broker,omitempty"`
	ClientID       string        `json:"client_id,omitempty"`
	Username       string        `json:"username,omitempty"`
	Password       string        `json:"password,omitempty"`
	QoS            byte          `json:"qos,omitempty"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty"`
	PublishTimeout time.Duration `json:"publish_timeout,omitempty"`
}

// PropertiesConfig enables live property updates from a NATS KV bucket.
type PropertiesConfig struct {
	Enabled bool   `json:"enabled"`
	Bucket  string `json:"bucket,omitempty"`
	History int    `json:"history,omitempty"`
}

// StageConfig describes one stage instance. The map key in Config.Stages is
// the instance name.
type StageConfig struct {
	Type        string         `json:"type"`
	Disabled    bool           `json:"disabled,omitempty"`
	Subjects    host.Subjects  `json:"subjects,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	SlotDepth   int            `json:"slot_depth,omitempty"`
	ErrorPolicy string         `json:"error_policy,omitempty"`
	State       string         `json:"state,omitempty"` // target state, default playing
}

// TargetState returns the state the stage is driven to after start.
func (s StageConfig) TargetState() (protocol.State, error) {
	if s.State == "" {
		return protocol.StatePlaying, nil
	}
	return protocol.ParseState(s.State)
}

// Policy returns the processing-error policy, defaulting to fatal.
func (s StageConfig) Policy() stage.ProcessErrorPolicy {
	if s.ErrorPolicy == "" {
		return stage.PolicyFatal
	}
	return stage.ProcessErrorPolicy(s.ErrorPolicy)
}

// EnabledStages returns the names of stages that are not disabled, sorted.
func (c *Config) EnabledStages() []string {
	names := make([]string, 0, len(c.Stages))
	for name, sc := range c.Stages {
		if !sc.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(stderrors.New("config cannot be nil"), "SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// JSON round trip for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "check")
}

// Validate checks the semantic rules the schema cannot express and
// normalizes case-insensitive fields.
func (c *Config) Validate() error {
	if c.Version != "" {
		if _, _, _, err := parseSemVer(c.Version); err != nil {
			return invalid("version: %v", err)
		}
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q", c.Log.Level)
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return invalid("log.format %q", c.Log.Format)
	}

	c.Transport.Kind = strings.ToLower(c.Transport.Kind)
	switch c.Transport.Kind {
	case TransportNATS:
		if len(c.Transport.NATS.URLs) == 0 {
			return invalid("transport.nats.urls is required")
		}
	case TransportMQTT:
		if c.Transport.MQTT.Broker == "" {
			return invalid("transport.mqtt.broker is required")
		}
		if c.Transport.MQTT.QoS > 2 {
			return invalid("transport.mqtt.qos %d", c.Transport.MQTT.QoS)
		}
		if c.Properties.Enabled {
			return invalid("properties require the nats transport")
		}
	default:
		return invalid("transport.kind %q", c.Transport.Kind)
	}

	if c.Properties.Enabled && !isValidNATSSubjectPart(c.Properties.Bucket) {
		return invalid("properties.bucket %q", c.Properties.Bucket)
	}

	for name, sc := range c.Stages {
		if !isValidStageName(name) {
			return invalid("stage name %q must be alphanumeric with dashes and underscores", name)
		}
		if sc.Type == "" {
			return invalid("stage %s: type is required", name)
		}
		if sc.SlotDepth < 0 {
			return invalid("stage %s: slot_depth %d", name, sc.SlotDepth)
		}
		if !sc.Policy().Valid() {
			return invalid("stage %s: error_policy %q", name, sc.ErrorPolicy)
		}
		if _, err := sc.TargetState(); err != nil {
			return invalid("stage %s: %v", name, err)
		}
	}
	return nil
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// Stage names become a single subject token and KV key segment, so dots are
// not allowed.
func isValidStageName(s string) bool {
	return isValidNATSSubjectPart(s) && !strings.Contains(s, ".")
}

// SaveToFile writes the configuration as JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return writeConfigFile(path, data)
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// CompareVersions compares two semver version strings
// Returns:
//
//	-1 if v1 < v2
//	 0 if v1 == v2
//	 1 if v1 > v2
//	error if either version is invalid
func CompareVersions(v1, v2 string) (int, error) {
	a1, b1, c1, err := parseSemVer(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v1, err)
	}
	a2, b2, c2, err := parseSemVer(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v2, err)
	}

	for _, pair := range [][2]int{{a1, a2}, {b1, b2}, {c1, c2}} {
		switch {
		case pair[0] > pair[1]:
			return 1, nil
		case pair[0] < pair[1]:
			return -1, nil
		}
	}
	return 0, nil
}

// parseSemVer parses a semantic version string (e.g., "1.2.3")
func parseSemVer(version string) (int, int, int, error) {
	if version == "" {
		return 0, 0, 0, stderrors.New("version cannot be empty")
	}
	version = strings.TrimPrefix(version, "v")

	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("version must be in format 'major.minor.patch', got '%s'", version)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid version part '%s': %w", p, err)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
