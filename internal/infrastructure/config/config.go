package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for GridPulse Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// SiteConfig contains deployment-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings for the durable
// device catalog and alert log.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig contains connection settings for the Redis instance backing
// the live device state store and the pub/sub event bus.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// telemetry history store.
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

// MonitorConfig contains the tunables of the telemetry monitoring core.
type MonitorConfig struct {
	// PowerMinThreshold is the wattage floor distinguishing a device that is
	// drawing load from one that is idle.
	PowerMinThreshold float64 `yaml:"power_min_threshold"`

	// DeviceTTL is how long a cached device record survives without any
	// write, in seconds. Absence from the cache means "unknown to the live
	// system", not "does not exist".
	DeviceTTL int `yaml:"device_ttl"`

	// IdleTimeout is the maximum gap since last telemetry before a device is
	// presumed disconnected, in seconds.
	IdleTimeout int `yaml:"idle_timeout"`

	// SweepInterval is the cadence of the idle sweep, in seconds.
	SweepInterval int `yaml:"sweep_interval"`

	// BusRetryBackoff is the fixed delay before the event bus re-subscribes
	// after a transport failure, in seconds.
	BusRetryBackoff int `yaml:"bus_retry_backoff"`

	// UnknownDeviceTTL is how long an unregistered MAC stays in the
	// unknown-devices marker set, in seconds.
	UnknownDeviceTTL int `yaml:"unknown_device_ttl"`
}

// DeviceTTLDuration returns the device cache TTL as a time.Duration.
func (m MonitorConfig) DeviceTTLDuration() time.Duration {
	return time.Duration(m.DeviceTTL) * time.Second
}

// IdleTimeoutDuration returns the idle timeout as a time.Duration.
func (m MonitorConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(m.IdleTimeout) * time.Second
}

// SweepIntervalDuration returns the sweep cadence as a time.Duration.
func (m MonitorConfig) SweepIntervalDuration() time.Duration {
	return time.Duration(m.SweepInterval) * time.Second
}

// BusRetryBackoffDuration returns the event bus retry backoff as a time.Duration.
func (m MonitorConfig) BusRetryBackoffDuration() time.Duration {
	return time.Duration(m.BusRetryBackoff) * time.Second
}

// Load reads, parses, and validates the configuration file at path.
//
// Precedence (lowest to highest): built-in defaults, YAML file contents,
// environment variable overrides. Environment variables follow the pattern
// GRIDPULSE_SECTION_KEY, for example GRIDPULSE_REDIS_ADDR or
// GRIDPULSE_MQTT_PASSWORD.
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "GridPulse",
			Timezone: "Asia/Ho_Chi_Minh",
		},
		Database: DatabaseConfig{
			Path:        "./data/gridpulse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gridpulse-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			PowerMinThreshold: 40,
			DeviceTTL:         24 * 60 * 60,
			IdleTimeout:       300,
			SweepInterval:     25,
			BusRetryBackoff:   5,
			UnknownDeviceTTL:  60,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRIDPULSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRIDPULSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Redis
	if v := os.Getenv("GRIDPULSE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GRIDPULSE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GRIDPULSE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	// MQTT
	if v := os.Getenv("GRIDPULSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRIDPULSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRIDPULSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRIDPULSE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRIDPULSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA timezone", c.Site.Timezone))
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// Redis validation
	if c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}
	if c.Redis.DB < 0 {
		errs = append(errs, "redis.db must not be negative")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Monitor validation
	if c.Monitor.PowerMinThreshold < 0 {
		errs = append(errs, "monitor.power_min_threshold must not be negative")
	}
	if c.Monitor.DeviceTTL <= 0 {
		errs = append(errs, "monitor.device_ttl must be positive")
	}
	if c.Monitor.IdleTimeout <= 0 {
		errs = append(errs, "monitor.idle_timeout must be positive")
	}
	if c.Monitor.SweepInterval <= 0 {
		errs = append(errs, "monitor.sweep_interval must be positive")
	}
	if c.Monitor.BusRetryBackoff <= 0 {
		errs = append(errs, "monitor.bus_retry_backoff must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Location resolves the configured site timezone.
// Falls back to UTC if the timezone is empty or invalid (Validate catches
// invalid values at load time; this guard covers hand-built configs in tests).
func (c *Config) Location() *time.Location {
	if c.Site.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
