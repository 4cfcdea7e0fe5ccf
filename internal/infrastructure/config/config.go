package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "IRRIGATION_"

// Config is the root configuration for the irrigation service.
// Values come from defaults, then the YAML file, then IRRIGATION_* variables.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Irrigation IrrigationConfig `yaml:"irrigation"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains dashboard WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// AdminPassword is used for the admin account seeded on first boot.
	// When empty a random password is generated and logged once.
	AdminPassword string `yaml:"admin_password"`
}

// JWTConfig contains JWT token settings. AccessTokenTTL is in minutes.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// IrrigationConfig tunes the auto-control decider and the status views.
type IrrigationConfig struct {
	// DefaultMoisture seeds a CurrentStatus that has no readings yet.
	DefaultMoisture float64 `yaml:"default_moisture"`

	// LowThreshold and HighThreshold bound the hysteresis band. Auto mode
	// switches the pump on strictly below Low and off strictly above High.
	LowThreshold  float64 `yaml:"low_threshold"`
	HighThreshold float64 `yaml:"high_threshold"`

	PendingLimit int `yaml:"pending_limit"`
	HistoryLimit int `yaml:"history_limit"`
	ActionsLimit int `yaml:"actions_limit"`

	// MaxConflictRetries bounds how often an ingestion is replayed after a
	// concurrent CurrentStatus write was detected.
	MaxConflictRetries int `yaml:"max_conflict_retries"`
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set win. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values
//  3. IRRIGATION_* environment variables
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
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

// Default returns the built-in configuration with environment overrides
// applied. It is used by tooling that can run without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/irrigation.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "irrigation-core",
			},
			QoS:         1,
			TopicPrefix: "irrigation",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "irrigation",
			Bucket:        "soil",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Irrigation: IrrigationConfig{
			DefaultMoisture:    50.0,
			LowThreshold:       30.0,
			HighThreshold:      60.0,
			PendingLimit:       5,
			HistoryLimit:       10,
			ActionsLimit:       10,
			MaxConflictRetries: 3,
		},
	}
}

// applyEnvOverrides applies IRRIGATION_* overrides. Unparseable numeric
// values are ignored and left to Validate.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("DATABASE_PATH", &cfg.Database.Path)

	setBool("MQTT_ENABLED", &cfg.MQTT.Enabled)
	setString("MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	setString("API_HOST", &cfg.API.Host)
	setInt("API_PORT", &cfg.API.Port)

	setBool("INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	setString("INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	setString("LOG_LEVEL", &cfg.Logging.Level)

	// Always override the JWT secret in production.
	setString("JWT_SECRET", &cfg.Security.JWT.Secret)
	setString("ADMIN_PASSWORD", &cfg.Security.AdminPassword)
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set IRRIGATION_JWT_SECRET)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	errs = append(errs, c.Irrigation.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (ic IrrigationConfig) validate() []string {
	var errs []string
	if ic.DefaultMoisture < 0 || ic.DefaultMoisture > 100 {
		errs = append(errs, "irrigation.default_moisture must be within 0-100")
	}
	if ic.LowThreshold < 0 || ic.HighThreshold > 100 || ic.LowThreshold >= ic.HighThreshold {
		errs = append(errs, "irrigation thresholds must satisfy 0 <= low_threshold < high_threshold <= 100")
	}
	if ic.PendingLimit < 1 {
		errs = append(errs, "irrigation.pending_limit must be positive")
	}
	if ic.HistoryLimit < 1 || ic.ActionsLimit < 1 {
		errs = append(errs, "irrigation.history_limit and irrigation.actions_limit must be positive")
	}
	if ic.MaxConflictRetries < 0 {
		errs = append(errs, "irrigation.max_conflict_retries cannot be negative")
	}
	return errs
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
