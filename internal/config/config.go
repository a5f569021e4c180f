package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	Retry      RetryConfig      `yaml:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Storage    StorageConfig    `yaml:"storage"`
	Journal    JournalConfig    `yaml:"journal"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Preview    PreviewConfig    `yaml:"preview"`
}

// ServerConfig controls the HTTP listener and stream framing.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// StreamKeepAlive is the interval between SSE keep-alive comments.
	StreamKeepAlive time.Duration `yaml:"stream_keepalive"`
}

// GenerationConfig selects and parameterizes the generation service.
type GenerationConfig struct {
	Provider       ProviderType  `yaml:"provider"`
	APIKey         string        `yaml:"api_key,omitempty"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	Model          string        `yaml:"model"`
	PlanningModel  string        `yaml:"planning_model,omitempty"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Budgets        StageBudgets  `yaml:"budgets"`
}

// StageBudgets are the per-stage token caps of the four-stage pipeline.
type StageBudgets struct {
	Needs        int `yaml:"needs"`
	Architecture int `yaml:"architecture"`
	Component    int `yaml:"component"`
	Assembly     int `yaml:"assembly"`
}

// RetryConfig configures transient-failure retries around generation calls.
type RetryConfig struct {
	Mode        RetryBackoffMode `yaml:"mode"`
	Initial     time.Duration    `yaml:"initial"`
	Max         time.Duration    `yaml:"max"`
	MaxAttempts int              `yaml:"max_attempts"`
}

// BreakerConfig configures the circuit breaker in front of the provider.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Driver        StorageDriver `yaml:"driver"`
	Path          string        `yaml:"path,omitempty"`
	MongoURI      string        `yaml:"mongo_uri,omitempty"`
	MongoDatabase string        `yaml:"mongo_database,omitempty"`
}

// JournalConfig configures the generation event journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// PromptsConfig points at optional prompt template overrides.
type PromptsConfig struct {
	Dir   string `yaml:"dir,omitempty"`
	Watch bool   `yaml:"watch"`
}

// NotifyConfig configures page-saved notifications over NATS JetStream.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PreviewConfig configures the preview and rewrite behavior.
type PreviewConfig struct {
	AssetPrefix string `yaml:"asset_prefix"`
	// ContentPolicy overrides the Content-Security-Policy sent with previews.
	ContentPolicy string `yaml:"content_policy,omitempty"`
}

// Load loads configuration from the specified file. A missing file is an
// error; missing fields are filled from defaults.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").WithContext("path", configPath).Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").Fatal().WithContext("path", configPath).Build()
	}
	return Parse(data)
}

// Parse decodes YAML (after ${VAR} expansion), applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.Generation.APIKey = "${ANTHROPIC_API_KEY}"
	example.Notify.NATSURL = "nats://127.0.0.1:4222"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
