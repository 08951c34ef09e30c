package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic actuator.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	State       StateConfig       `yaml:"state"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	MDNS        MDNSConfig        `yaml:"mdns"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DeviceConfig describes the actuator's own network identity and capabilities.
type DeviceConfig struct {
	// IPAddress is the address the CoAP server binds to and reports to the
	// coordinator. Empty means discover the primary local address.
	IPAddress string `yaml:"ip_address"`

	// Port is the CoAP command port. Default: 5684
	Port int `yaml:"port"`

	// CommandPath is the CoAP path of the command endpoint. Default: "/"
	CommandPath string `yaml:"command_path"`

	// PulseMarker is a file whose presence marks the actuator as pulse capable.
	// It is checked once at startup. Default: ".is_pulse"
	PulseMarker string `yaml:"pulse_marker"`

	// PulseDuration is how long ON-PULSE holds before reverting to OFF.
	// Default: 750ms
	PulseDuration time.Duration `yaml:"pulse_duration"`
}

// CoordinatorConfig contains the coordinator registration endpoint.
type CoordinatorConfig struct {
	// RegisterURL is the coordinator registration resource.
	// Format: coap://host:port/path
	RegisterURL string `yaml:"register_url"`

	// RequestTimeout bounds each registration call. Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LivenessConfig tunes the heartbeat monitor.
type LivenessConfig struct {
	// TickInterval is the period of the monitor loop. Default: 1s
	TickInterval time.Duration `yaml:"tick_interval"`

	// TimeoutTicks is the number of ticks without inbound traffic after which
	// the actuator re-registers. Default: 60
	TimeoutTicks int `yaml:"timeout_ticks"`

	// RetryBackoff is the wait after a failed re-registration.
	// Default: (TimeoutTicks - 1) * TickInterval
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// StateConfig selects the persistence backend for the device state.
type StateConfig struct {
	// Backend is "sqlite" or "file". Default: "sqlite"
	Backend string `yaml:"backend"`

	// FilePath is the plain-text status file used by the "file" backend.
	// Default: ".status"
	FilePath string `yaml:"file_path"`

	// PulseLastWriterWins disables stale pulse invalidation, so every pulse
	// timer writes OFF when it fires even if a newer command arrived.
	PulseLastWriterWins bool `yaml:"pulse_last_writer_wins"`

	// HistoryRetentionDays prunes state history older than this at startup.
	// 0 disables pruning. Default: 30
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// APIConfig contains the diagnostics HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket settings for the state stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MDNSConfig controls DNS-SD advertisement of the command endpoint.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`

	// Interface restricts advertisement to one network interface.
	// Empty means all interfaces.
	Interface string `yaml:"interface"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// State backends.
const (
	StateBackendSQLite = "sqlite"
	StateBackendFile   = "file"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ACTUATOR_SECTION_KEY
// For example: ACTUATOR_DEVICE_PORT, ACTUATOR_COORDINATOR_URL
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the default actuator timings.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Port:          5684,
			CommandPath:   "/",
			PulseMarker:   ".is_pulse",
			PulseDuration: 750 * time.Millisecond,
		},
		Coordinator: CoordinatorConfig{
			RegisterURL:    "coap://127.0.0.1:5683/actuator/register",
			RequestTimeout: 5 * time.Second,
		},
		Liveness: LivenessConfig{
			TickInterval: time.Second,
			TimeoutTicks: 60,
		},
		State: StateConfig{
			Backend:              StateBackendSQLite,
			FilePath:             ".status",
			HistoryRetentionDays: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/actuator.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-actuator",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MDNS: MDNSConfig{
			Instance: "graylogic-actuator",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ACTUATOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("ACTUATOR_DEVICE_IP"); v != "" {
		cfg.Device.IPAddress = v
	}
	if v := os.Getenv("ACTUATOR_DEVICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Device.Port = port
		}
	}

	// Coordinator
	if v := os.Getenv("ACTUATOR_COORDINATOR_URL"); v != "" {
		cfg.Coordinator.RegisterURL = v
	}

	// State and database
	if v := os.Getenv("ACTUATOR_STATE_BACKEND"); v != "" {
		cfg.State.Backend = v
	}
	if v := os.Getenv("ACTUATOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ACTUATOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ACTUATOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ACTUATOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ACTUATOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Port < 1 || c.Device.Port > 65535 {
		errs = append(errs, "device.port must be between 1 and 65535")
	}
	if c.Device.PulseDuration <= 0 {
		errs = append(errs, "device.pulse_duration must be positive")
	}
	if !strings.HasPrefix(c.Device.CommandPath, "/") {
		errs = append(errs, "device.command_path must start with /")
	}

	if u, err := url.Parse(c.Coordinator.RegisterURL); err != nil || u.Scheme != "coap" || u.Host == "" {
		errs = append(errs, "coordinator.register_url must be a coap:// URL")
	}
	if c.Coordinator.RequestTimeout <= 0 {
		errs = append(errs, "coordinator.request_timeout must be positive")
	}

	if c.Liveness.TickInterval <= 0 {
		errs = append(errs, "liveness.tick_interval must be positive")
	}
	if c.Liveness.TimeoutTicks < 1 {
		errs = append(errs, "liveness.timeout_ticks must be at least 1")
	}
	if c.Liveness.RetryBackoff < 0 {
		errs = append(errs, "liveness.retry_backoff must not be negative")
	}

	switch c.State.Backend {
	case StateBackendSQLite:
	case StateBackendFile:
		if c.State.FilePath == "" {
			errs = append(errs, "state.file_path is required for the file backend")
		}
	default:
		errs = append(errs, `state.backend must be "sqlite" or "file"`)
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0) {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRetryBackoff returns the wait after a failed re-registration.
// When unset it is one tick short of the timeout window.
func (c *Config) GetRetryBackoff() time.Duration {
	if c.Liveness.RetryBackoff > 0 {
		return c.Liveness.RetryBackoff
	}
	ticks := c.Liveness.TimeoutTicks - 1
	if ticks < 1 {
		ticks = 1
	}
	return time.Duration(ticks) * c.Liveness.TickInterval
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
