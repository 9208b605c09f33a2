package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultURIEnv         = "FEEDRELAY_MONGO_URI"
	DefaultQueueCapacity  = 256
	DefaultGracePeriod    = 10 * time.Second
	DefaultFailureBurst   = 5
	DefaultFailureWindow  = time.Minute
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
	DefaultDegradedAfter  = 10
	DefaultCursorPath     = "feedrelay.db"
	DefaultHTTPPort       = 8080
	DefaultLogLevel       = "info"
)

// Config is the top-level configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Feed   FeedConfig   `yaml:"feed"`
	Relay  RelayConfig  `yaml:"relay"`
	Cursor CursorConfig `yaml:"cursor"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// FeedConfig identifies the upstream change feed.
type FeedConfig struct {
	// URIEnv is the name of the environment variable holding the Mongo
	// connection string. The URI carries credentials, so it never lives
	// in the config file itself.
	URIEnv string `yaml:"uri_env"`

	// Database and Collection select the watched namespace.
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// URI returns the connection string resolved from the environment.
// Returns empty string when the variable is unset.
func (f FeedConfig) URI() string {
	if f.URIEnv == "" {
		return ""
	}
	return os.Getenv(f.URIEnv)
}

// RelayConfig tunes the pipeline and its failure handling.
type RelayConfig struct {
	// QueueCapacity is the per-session outbound queue depth.
	QueueCapacity int `yaml:"queue_capacity"`

	// GracePeriod bounds the Starting state on an idle upstream.
	GracePeriod time.Duration `yaml:"grace_period"`

	// FailureBurst transient failures within FailureWindow rebuild the
	// reader.
	FailureBurst  int           `yaml:"failure_burst"`
	FailureWindow time.Duration `yaml:"failure_window"`

	// BackoffInitial and BackoffMax bound the reader's retry wait.
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`

	// DegradedAfter is the consecutive-failure count that logs a
	// degraded-health warning. 0 disables.
	DegradedAfter int `yaml:"degraded_after"`

	// StartFromNowOnInvalidToken accepts data loss to recover from a
	// resume token the upstream no longer knows. Off by default: the
	// relay fails instead and leaves the decision to the operator.
	StartFromNowOnInvalidToken bool `yaml:"start_from_now_on_invalid_token"`
}

// CursorConfig locates the resume token store.
type CursorConfig struct {
	// Path is the filesystem path of the bbolt file.
	Path string `yaml:"path"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort serves the WebSocket endpoint, the status API and
	// /metrics.
	HTTPPort int `yaml:"http_port"`
}

// LogConfig controls logging. Level is the only hot-reloadable setting.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Feed: FeedConfig{
			URIEnv: DefaultURIEnv,
		},
		Relay: RelayConfig{
			QueueCapacity:  DefaultQueueCapacity,
			GracePeriod:    DefaultGracePeriod,
			FailureBurst:   DefaultFailureBurst,
			FailureWindow:  DefaultFailureWindow,
			BackoffInitial: DefaultBackoffInitial,
			BackoffMax:     DefaultBackoffMax,
			DegradedAfter:  DefaultDegradedAfter,
		},
		Cursor: CursorConfig{
			Path: DefaultCursorPath,
		},
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Feed.Database == "" {
		return fmt.Errorf("feed.database is required")
	}
	if cfg.Feed.Collection == "" {
		return fmt.Errorf("feed.collection is required")
	}
	if cfg.Relay.QueueCapacity <= 0 {
		return fmt.Errorf("relay.queue_capacity must be positive")
	}
	if cfg.Relay.FailureBurst <= 0 {
		return fmt.Errorf("relay.failure_burst must be positive")
	}
	if cfg.Relay.FailureWindow <= 0 {
		return fmt.Errorf("relay.failure_window must be positive")
	}
	if cfg.Relay.BackoffInitial <= 0 || cfg.Relay.BackoffMax < cfg.Relay.BackoffInitial {
		return fmt.Errorf("relay backoff bounds must satisfy 0 < backoff_initial <= backoff_max")
	}
	if cfg.Cursor.Path == "" {
		return fmt.Errorf("cursor.path is required")
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be a valid port")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	return nil
}
