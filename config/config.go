// Package config provides configuration management for ocguard.
// It handles loading, validating, and saving application settings.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ocguard/ocguard/common"
)

// Duration is a time.Duration that round-trips through YAML in the
// human-readable "60s" / "5m" form.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Protocol values accepted by the VPN client's --protocol flag.
const (
	ProtocolF5         = "f5"
	ProtocolAnyConnect = "anyconnect"
	ProtocolGlobalProt = "gp"
)

// Config represents the application configuration.
// All settings are persisted to a YAML file in the user's config directory.
type Config struct {
	// Server is the VPN gateway address.
	Server string `yaml:"server"`
	// Username is the VPN account name.
	Username string `yaml:"username"`
	// Protocol selects the client protocol: "f5", "anyconnect", or "gp".
	Protocol string `yaml:"protocol"`
	// NoDTLS disables the DTLS transport in the client.
	NoDTLS bool `yaml:"no_dtls"`

	// Health holds liveness probe settings.
	Health HealthConfig `yaml:"health"`
	// Reconnect holds autonomous recovery settings.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// HealthConfig configures the periodic connectivity probe.
type HealthConfig struct {
	// Endpoint is the HTTP(S) URL probed for reachability.
	Endpoint string `yaml:"endpoint"`
	// Interval is how often a probe fires.
	Interval Duration `yaml:"interval"`
	// Timeout bounds a single probe.
	Timeout Duration `yaml:"timeout"`
}

// ReconnectConfig configures bounded exponential backoff recovery.
type ReconnectConfig struct {
	// Enabled turns autonomous reconnection on.
	Enabled bool `yaml:"enabled"`
	// MaxAttempts bounds consecutive failed attempts before giving up.
	MaxAttempts int `yaml:"max_attempts"`
	// BaseInterval is the first backoff delay.
	BaseInterval Duration `yaml:"base_interval"`
	// Multiplier grows the delay between attempts.
	Multiplier int `yaml:"multiplier"`
	// MaxInterval caps the backoff delay.
	MaxInterval Duration `yaml:"max_interval"`
	// FailureThreshold is the number of consecutive probe failures that
	// triggers a reconnection.
	FailureThreshold int `yaml:"failure_threshold"`
}

// DefaultConfig returns the default configuration.
// Server and username are left empty; `ocguard setup` fills them in.
func DefaultConfig() *Config {
	return &Config{
		Protocol: ProtocolF5,
		Health: HealthConfig{
			Endpoint: "https://www.gstatic.com/generate_204",
			Interval: Duration(common.ProbeInterval),
			Timeout:  Duration(common.ProbeTimeout),
		},
		Reconnect: ReconnectConfig{
			Enabled:          true,
			MaxAttempts:      common.DefaultMaxAttempts,
			BaseInterval:     Duration(common.DefaultBaseInterval),
			Multiplier:       common.DefaultBackoffMultiplier,
			MaxInterval:      Duration(common.DefaultMaxInterval),
			FailureThreshold: common.DefaultFailureThreshold,
		},
	}
}

// Load loads the configuration from the config file.
// If the file doesn't exist, it creates one with default values.
func Load() (*Config, error) {
	configPath, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from an explicit path.
func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.SaveTo(configPath); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, common.WrapError(err, "error opening configuration")
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	var config Config
	if err := decoder.Decode(&config); err != nil {
		return nil, common.WrapError(err, "error parsing configuration")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate verifies that configuration values are within accepted ranges.
// Zero-valued optional fields are replaced with defaults before checking.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.Protocol == "" {
		c.Protocol = def.Protocol
	}
	switch c.Protocol {
	case ProtocolF5, ProtocolAnyConnect, ProtocolGlobalProt:
	default:
		return fmt.Errorf("%w: unknown protocol %q", common.ErrInvalidConfig, c.Protocol)
	}

	if c.Health.Endpoint == "" {
		c.Health.Endpoint = def.Health.Endpoint
	}
	u, err := url.Parse(c.Health.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: health endpoint must be an http(s) URL", common.ErrInvalidConfig)
	}

	if c.Health.Interval == 0 {
		c.Health.Interval = def.Health.Interval
	}
	if c.Health.Interval.Std() < 10*time.Second || c.Health.Interval.Std() > time.Hour {
		return fmt.Errorf("%w: health interval must be between 10s and 1h, got %v",
			common.ErrInvalidConfig, c.Health.Interval.Std())
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = def.Health.Timeout
	}
	if c.Health.Timeout.Std() < time.Second || c.Health.Timeout > c.Health.Interval {
		return fmt.Errorf("%w: health timeout must be between 1s and the probe interval, got %v",
			common.ErrInvalidConfig, c.Health.Timeout.Std())
	}

	r := &c.Reconnect
	if r.MaxAttempts == 0 {
		r.MaxAttempts = def.Reconnect.MaxAttempts
	}
	if r.MaxAttempts < 1 || r.MaxAttempts > 20 {
		return fmt.Errorf("%w: max_attempts must be between 1 and 20, got %d",
			common.ErrInvalidConfig, r.MaxAttempts)
	}
	if r.BaseInterval == 0 {
		r.BaseInterval = def.Reconnect.BaseInterval
	}
	if r.BaseInterval.Std() < time.Second || r.BaseInterval.Std() > 300*time.Second {
		return fmt.Errorf("%w: base_interval must be between 1s and 300s, got %v",
			common.ErrInvalidConfig, r.BaseInterval.Std())
	}
	if r.Multiplier == 0 {
		r.Multiplier = def.Reconnect.Multiplier
	}
	if r.Multiplier < 1 || r.Multiplier > 10 {
		return fmt.Errorf("%w: multiplier must be between 1 and 10, got %d",
			common.ErrInvalidConfig, r.Multiplier)
	}
	if r.MaxInterval == 0 {
		r.MaxInterval = def.Reconnect.MaxInterval
	}
	if r.MaxInterval < r.BaseInterval {
		return fmt.Errorf("%w: max_interval (%v) must be >= base_interval (%v)",
			common.ErrInvalidConfig, r.MaxInterval.Std(), r.BaseInterval.Std())
	}
	if r.FailureThreshold == 0 {
		r.FailureThreshold = def.Reconnect.FailureThreshold
	}
	if r.FailureThreshold < 1 || r.FailureThreshold > 10 {
		return fmt.Errorf("%w: failure_threshold must be between 1 and 10, got %d",
			common.ErrInvalidConfig, r.FailureThreshold)
	}

	return nil
}

// Save saves the configuration to the default config file path.
func (c *Config) Save() error {
	configPath, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo saves the configuration to an explicit path.
func (c *Config) SaveTo(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return common.WrapError(err, "error creating config directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return common.WrapError(err, "error serializing configuration")
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return common.WrapError(err, "error saving configuration")
	}

	return nil
}

// Path returns the configuration file path.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", common.WrapError(err, "error getting home directory")
	}
	return filepath.Join(homeDir, ".config", common.ConfigDirName, common.ConfigFileName), nil
}
