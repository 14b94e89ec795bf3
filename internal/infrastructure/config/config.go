package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Signal K MQTT bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	SignalK  SignalKConfig  `yaml:"signalk"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains the bridge engine settings.
type BridgeConfig struct {
	// KeepaliveTTL is how long (seconds) a keepalive lease stays live
	// without renewal. Non-positive values fall back to the default (60).
	KeepaliveTTL int `yaml:"keepalive_ttl"`

	// SweepInterval is how often (seconds) expired leases are evicted.
	SweepInterval int `yaml:"sweep_interval"`

	// BusMarker is the literal second topic segment, e.g. "signalk" in
	// R/signalk/{systemId}/keepalive.
	BusMarker string `yaml:"bus_marker"`

	// HealthInterval is how often (seconds) status and stats are reported.
	HealthInterval int `yaml:"health_interval"`

	// CommandRate limits inbound write and put commands per second.
	// Zero disables the limit.
	CommandRate float64 `yaml:"command_rate"`

	// CommandBurst is the burst allowance for CommandRate.
	CommandBurst int `yaml:"command_burst"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// BrokerAddress is the broker URI.
	// Format: mqtt://user:pass@ip_or_host:1883
	BrokerAddress string `yaml:"broker_address"`

	// RejectUnauthorized rejects self signed and invalid server certificates.
	RejectUnauthorized bool `yaml:"reject_unauthorized"`

	// ClientID overrides the derived "signalk/{systemId}" client identifier.
	ClientID string `yaml:"client_id"`

	QoS int `yaml:"qos"`

	// ReconnectPeriod is the fixed delay (seconds) between reconnection attempts.
	ReconnectPeriod int `yaml:"reconnect_period"`
}

// SignalKConfig contains the Signal K server connection settings.
type SignalKConfig struct {
	// URL is the server base URL, e.g. http://localhost:3000.
	// Empty means discover the server via mDNS.
	URL string `yaml:"url"`

	// Token is an optional bearer token (JWT) used for REST, stream and PUT.
	// WARNING: Never log this value.
	Token string `yaml:"token"`

	// DebounceMS is the per-path coalescing window for the delta stream.
	DebounceMS int `yaml:"debounce_ms"`

	// PutTimeout is how long (seconds) to wait for a PUT result.
	PutTimeout int `yaml:"put_timeout"`

	// DiscoveryTimeout bounds the mDNS browse (seconds).
	DiscoveryTimeout int `yaml:"discovery_timeout"`

	// ReconnectInterval is the delay (seconds) between stream reconnects.
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// APIConfig contains the HTTP status server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite settings for the command journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultKeepaliveTTL is the lease TTL in seconds used when none is configured.
const DefaultKeepaliveTTL = 60

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SKMQTT_SECTION_KEY
// For example: SKMQTT_MQTT_BROKER_ADDRESS, SKMQTT_SIGNALK_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	// The keepalive TTL is forgiving: anything unusable means the default.
	if cfg.Bridge.KeepaliveTTL <= 0 {
		cfg.Bridge.KeepaliveTTL = DefaultKeepaliveTTL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			KeepaliveTTL:   DefaultKeepaliveTTL,
			SweepInterval:  1,
			BusMarker:      "signalk",
			HealthInterval: 30,
			CommandBurst:   10,
		},
		MQTT: MQTTConfig{
			RejectUnauthorized: true,
			QoS:                0,
			ReconnectPeriod:    5,
		},
		SignalK: SignalKConfig{
			URL:               "http://localhost:3000",
			DebounceMS:        500,
			PutTimeout:        30,
			DiscoveryTimeout:  10,
			ReconnectInterval: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8088,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SKMQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("SKMQTT_MQTT_BROKER_ADDRESS"); v != "" {
		cfg.MQTT.BrokerAddress = v
	}

	// Signal K
	if v := os.Getenv("SKMQTT_SIGNALK_URL"); v != "" {
		cfg.SignalK.URL = v
	}
	if v := os.Getenv("SKMQTT_SIGNALK_TOKEN"); v != "" {
		cfg.SignalK.Token = v
	}

	// Database
	if v := os.Getenv("SKMQTT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("SKMQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SKMQTT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.BrokerAddress == "" {
		errs = append(errs, "mqtt.broker_address is required")
	} else if u, err := url.Parse(c.MQTT.BrokerAddress); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "mqtt.broker_address must be a URI such as mqtt://host:1883")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ReconnectPeriod <= 0 {
		errs = append(errs, "mqtt.reconnect_period must be positive")
	}

	// Bridge validation
	if c.Bridge.BusMarker == "" || strings.ContainsAny(c.Bridge.BusMarker, "/+#") {
		errs = append(errs, "bridge.bus_marker must be a single topic segment")
	}
	if c.Bridge.SweepInterval <= 0 {
		errs = append(errs, "bridge.sweep_interval must be positive")
	}
	if c.Bridge.CommandRate < 0 {
		errs = append(errs, "bridge.command_rate cannot be negative")
	}

	// Signal K validation (empty URL means mDNS discovery)
	if c.SignalK.URL != "" {
		if u, err := url.Parse(c.SignalK.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, "signalk.url must be an http or https URL")
		}
	}
	if c.SignalK.DebounceMS < 0 {
		errs = append(errs, "signalk.debounce_ms cannot be negative")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the command journal is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetKeepaliveTTL returns the keepalive lease TTL as a Duration.
func (c *Config) GetKeepaliveTTL() time.Duration {
	return time.Duration(c.Bridge.KeepaliveTTL) * time.Second
}

// GetSweepInterval returns the lease sweep interval as a Duration.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Bridge.SweepInterval) * time.Second
}

// GetHealthInterval returns the status reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetReconnectPeriod returns the MQTT reconnect period as a Duration.
func (c *Config) GetReconnectPeriod() time.Duration {
	return time.Duration(c.MQTT.ReconnectPeriod) * time.Second
}

// GetDebounce returns the delta coalescing window as a Duration.
func (c *Config) GetDebounce() time.Duration {
	return time.Duration(c.SignalK.DebounceMS) * time.Millisecond
}

// GetPutTimeout returns the PUT result timeout as a Duration.
func (c *Config) GetPutTimeout() time.Duration {
	return time.Duration(c.SignalK.PutTimeout) * time.Second
}

// GetDiscoveryTimeout returns the mDNS browse limit as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.SignalK.DiscoveryTimeout) * time.Second
}

// GetStreamReconnect returns the Signal K stream reconnect delay as a Duration.
func (c *Config) GetStreamReconnect() time.Duration {
	return time.Duration(c.SignalK.ReconnectInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
