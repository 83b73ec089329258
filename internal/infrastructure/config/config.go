package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minJWTSecretLength is the shortest accepted HS256 signing secret.
const minJWTSecretLength = 32

// Config is the root configuration structure for the list sync service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Sync          SyncConfig          `yaml:"sync"`
	Instances     []InstanceConfig    `yaml:"instances"`
}

// HomeAssistantConfig contains Home Assistant WebSocket API settings.
type HomeAssistantConfig struct {
	// URL is the base URL of the Home Assistant instance, e.g. "http://homeassistant.local:8123".
	// The WebSocket endpoint /api/websocket is derived from it.
	URL string `yaml:"url"`

	// Token is a long-lived access token.
	Token string `yaml:"token"`

	// RequestTimeout bounds a single request/response exchange (in seconds).
	RequestTimeout int `yaml:"request_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings (in seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings and the
// Home Assistant discovery layout used to materialise entities.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Reconnect ReconnectConfig  `yaml:"reconnect"`

	// DiscoveryPrefix must match the prefix configured in Home Assistant's
	// MQTT integration. Default: "homeassistant"
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// BaseTopic prefixes state, attribute and availability topics.
	BaseTopic string `yaml:"base_topic"`

	// NodeID groups the discovery topics of this service.
	NodeID string `yaml:"node_id"`
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

// APIConfig contains operator HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Auth      APIAuthConfig    `yaml:"auth"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// APIAuthConfig contains operator token settings. Tokens are HS256 JWTs
// signed with JWTSecret; an empty secret disables authentication.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  int    `yaml:"token_ttl"` // days, for tokens minted with "listsync token"
}

// WebSocketConfig contains settings of the live pass event feed.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"` // seconds
	PongTimeout    int `yaml:"pong_timeout"`  // seconds
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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

// SyncConfig contains the list synchronisation timing (in milliseconds).
type SyncConfig struct {
	// PreInvocationDelay is added in front of the settle delay when the
	// change signal is a todo service call rather than a state change.
	PreInvocationDelay int `yaml:"pre_invocation_delay"`

	// SettleDelay is the wait between a change signal and the fetch.
	SettleDelay int `yaml:"settle_delay"`

	// ServicePollInterval is how often setup checks whether todo.get_items exists.
	ServicePollInterval int `yaml:"service_poll_interval"`
}

// InstanceConfig seeds a configured instance at startup.
type InstanceConfig struct {
	EntityID string `yaml:"entity_id"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LISTSYNC_SECTION_KEY
// For example: LISTSYNC_HA_TOKEN, LISTSYNC_DATABASE_PATH
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
		HomeAssistant: HomeAssistantConfig{
			URL:            "http://localhost:8123",
			RequestTimeout: 10,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/listsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "list-to-entities",
			},
			QoS: 1,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			DiscoveryPrefix: "homeassistant",
			BaseTopic:       "list_to_entities",
			NodeID:          "list_to_entities",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Auth: APIAuthConfig{
				TokenTTL: 365,
			},
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
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
		Sync: SyncConfig{
			PreInvocationDelay:  500,
			SettleDelay:         1000,
			ServicePollInterval: 1000,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Home Assistant
	if v := os.Getenv("LISTSYNC_HA_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("LISTSYNC_HA_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}

	// Database
	if v := os.Getenv("LISTSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LISTSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LISTSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LISTSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LISTSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("LISTSYNC_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Home Assistant validation
	if c.HomeAssistant.URL == "" {
		errs = append(errs, "homeassistant.url is required")
	} else if u, err := url.Parse(c.HomeAssistant.URL); err != nil || u.Host == "" {
		errs = append(errs, "homeassistant.url must be an absolute URL")
	} else {
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			errs = append(errs, "homeassistant.url scheme must be http, https, ws or wss")
		}
	}
	if c.HomeAssistant.Token == "" {
		errs = append(errs, "homeassistant.token is required (set LISTSYNC_HA_TOKEN environment variable)")
	}
	if c.HomeAssistant.RequestTimeout <= 0 {
		errs = append(errs, "homeassistant.request_timeout must be positive")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.DiscoveryPrefix == "" {
		errs = append(errs, "mqtt.discovery_prefix is required")
	}
	if c.MQTT.BaseTopic == "" {
		errs = append(errs, "mqtt.base_topic is required")
	}
	if c.MQTT.NodeID == "" {
		errs = append(errs, "mqtt.node_id is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Auth.JWTSecret != "" && len(c.API.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "api.auth.jwt_secret must be at least 32 characters")
	}
	if c.API.Auth.TokenTTL <= 0 {
		errs = append(errs, "api.auth.token_ttl must be positive")
	}
	if c.API.WebSocket.PingInterval <= 0 || c.API.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "api.websocket ping_interval and pong_timeout must be positive")
	}

	// Sync validation
	if c.Sync.PreInvocationDelay < 0 {
		errs = append(errs, "sync.pre_invocation_delay must not be negative")
	}
	if c.Sync.SettleDelay < 0 {
		errs = append(errs, "sync.settle_delay must not be negative")
	}
	if c.Sync.ServicePollInterval <= 0 {
		errs = append(errs, "sync.service_poll_interval must be positive")
	}

	// Seeded instances must watch todo entities
	for i, inst := range c.Instances {
		object, ok := strings.CutPrefix(inst.EntityID, "todo.")
		if !ok || object == "" {
			errs = append(errs, fmt.Sprintf("instances[%d].entity_id %q is not a todo entity", i, inst.EntityID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetRequestTimeout returns the Home Assistant request timeout as a Duration.
func (c *HomeAssistantConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// PreInvocation returns the service-call pre-invocation delay as a Duration.
func (s SyncConfig) PreInvocation() time.Duration {
	return time.Duration(s.PreInvocationDelay) * time.Millisecond
}

// Settle returns the settle delay as a Duration.
func (s SyncConfig) Settle() time.Duration {
	return time.Duration(s.SettleDelay) * time.Millisecond
}

// PollInterval returns the service poll interval as a Duration.
func (s SyncConfig) PollInterval() time.Duration {
	return time.Duration(s.ServicePollInterval) * time.Millisecond
}
