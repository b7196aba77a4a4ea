package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all agent configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Location  LocationConfig  `mapstructure:"location"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// BackendConfig selects how booking actions reach the backend.
type BackendConfig struct {
	Driver  string        `mapstructure:"driver"` // postgres or rest
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL      string `mapstructure:"url"`
	DeviceID string `mapstructure:"device_id"`
}

type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// QueueConfig tunes offline delivery.
type QueueConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Connectivity   string        `mapstructure:"connectivity"` // nats or probe
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
}

type LocationConfig struct {
	Accuracy      string        `mapstructure:"accuracy"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
	WatchDistance float64       `mapstructure:"watch_distance"`
	SampleTimeout time.Duration `mapstructure:"sample_timeout"`
	SearchRadius  float64       `mapstructure:"search_radius"` // meters; 0 searches every library
}

// RelayConfig tunes the seat change relay.
type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: STUDYSPOT_VALKEY_ADDR → valkey.addr
	v.SetEnvPrefix("STUDYSPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("backend.driver", "postgres")
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "studyspot")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "studyspot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.device_id", "local")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.key_prefix", "studyspot")
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.initial_backoff", 2*time.Second)
	v.SetDefault("queue.max_backoff", 5*time.Minute)
	v.SetDefault("queue.connectivity", "nats")
	v.SetDefault("queue.probe_interval", 15*time.Second)
	v.SetDefault("location.accuracy", "high")
	v.SetDefault("location.watch_interval", 10*time.Second)
	v.SetDefault("location.watch_distance", 10.0)
	v.SetDefault("location.sample_timeout", 15*time.Second)
	v.SetDefault("location.search_radius", 20000.0)
	v.SetDefault("relay.poll_interval", 5*time.Second)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Backend.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "rest":
		if c.Backend.BaseURL == "" {
			errs = append(errs, "backend.base_url is required for the rest driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("backend.driver must be postgres or rest, got %q", c.Backend.Driver))
	}

	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.NATS.DeviceID == "" || strings.ContainsAny(c.NATS.DeviceID, ".*> ") {
		errs = append(errs, "nats.device_id must be a single subject token")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, "queue.max_attempts must be positive")
	}
	if c.Queue.InitialBackoff <= 0 {
		errs = append(errs, "queue.initial_backoff must be positive")
	}
	if c.Queue.MaxBackoff < c.Queue.InitialBackoff {
		errs = append(errs, "queue.max_backoff must be >= queue.initial_backoff")
	}
	if c.Queue.Connectivity != "nats" && c.Queue.Connectivity != "probe" {
		errs = append(errs, fmt.Sprintf("queue.connectivity must be nats or probe, got %q", c.Queue.Connectivity))
	}

	switch c.Location.Accuracy {
	case "low", "balanced", "high":
	default:
		errs = append(errs, fmt.Sprintf("location.accuracy must be low, balanced or high, got %q", c.Location.Accuracy))
	}
	if c.Location.WatchInterval < 0 || c.Location.WatchDistance < 0 {
		errs = append(errs, "location watch thresholds must not be negative")
	}
	if c.Location.SearchRadius < 0 {
		errs = append(errs, "location.search_radius must not be negative")
	}

	if c.Relay.PollInterval <= 0 {
		errs = append(errs, "relay.poll_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
