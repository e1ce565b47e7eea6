// Package config loads toolloop configuration from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. TOOLLOOP_AGENT_MAX_TURNS.
const EnvPrefix = "TOOLLOOP"

// Providers lists the supported model provider names.
var Providers = []string{"gemini", "claude", "openai", "ollama"}

// Config holds all toolloop configuration.
type Config struct {
	Provider   ProviderConfig   `mapstructure:"provider" yaml:"provider"`
	Vision     VisionConfig     `mapstructure:"vision" yaml:"vision"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Drawing    DrawingConfig    `mapstructure:"drawing" yaml:"drawing"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// ProviderConfig selects and tunes the conversational model.
type ProviderConfig struct {
	Name        string        `mapstructure:"name" yaml:"name"` // gemini, claude, openai, ollama
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"` // per model call
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// VisionConfig configures the model used to locate objects. Empty provider
// fields fall back to the conversational provider.
type VisionConfig struct {
	Provider      string  `mapstructure:"provider" yaml:"provider,omitempty"`
	Model         string  `mapstructure:"model" yaml:"model,omitempty"`
	Coordinates   string  `mapstructure:"coordinates" yaml:"coordinates"` // normalized or pixel
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxTurns             int           `mapstructure:"max_turns" yaml:"max_turns"`
	MaxRetries           int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" yaml:"retry_max_interval"`
	RunTimeout           time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	SystemPromptPath     string        `mapstructure:"system_prompt_path" yaml:"system_prompt_path,omitempty"`
	CorrectivePrompt     string        `mapstructure:"corrective_prompt" yaml:"corrective_prompt,omitempty"`
	HistoryMessages      int           `mapstructure:"history_messages" yaml:"history_messages"`
}

// DrawingConfig controls annotated image output.
type DrawingConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir,omitempty"` // empty: next to the source image
	Color     string `mapstructure:"color" yaml:"color"`
	LineWidth int    `mapstructure:"line_width" yaml:"line_width"`
}

// TranscriptConfig controls the optional per-run transcript file.
type TranscriptConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Format  string `mapstructure:"format" yaml:"format"` // json or yaml
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"` // empty disables the endpoint
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "gemini")
	v.SetDefault("provider.model", "gemini-2.5-flash")
	v.SetDefault("provider.timeout", 60*time.Second)
	v.SetDefault("provider.temperature", 0.2)
	v.SetDefault("provider.max_tokens", 2048)
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")

	v.SetDefault("vision.provider", "")
	v.SetDefault("vision.model", "")
	v.SetDefault("vision.coordinates", "normalized")
	v.SetDefault("vision.min_confidence", 0.0)

	v.SetDefault("agent.max_turns", 8)
	v.SetDefault("agent.max_retries", 3)
	v.SetDefault("agent.retry_initial_interval", 500*time.Millisecond)
	v.SetDefault("agent.retry_max_interval", 8*time.Second)
	v.SetDefault("agent.run_timeout", 5*time.Minute)
	v.SetDefault("agent.history_messages", 20)
	v.SetDefault("agent.system_prompt_path", "")
	v.SetDefault("agent.corrective_prompt", "")

	v.SetDefault("drawing.output_dir", "")
	v.SetDefault("drawing.color", "red")
	v.SetDefault("drawing.line_width", 3)

	v.SetDefault("transcript.enabled", false)
	v.SetDefault("transcript.dir", "conversation_history")
	v.SetDefault("transcript.format", "json")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.addr", "")
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".toolloop"), nil
}

// ConfigPath returns the per-user configuration file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads configuration from path, or searches ./toolloop.yaml,
// ./config.yaml and ~/.toolloop/config.yaml when path is empty. A missing
// file is not an error when searching. .env files in the working directory
// are loaded first; environment variables override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigType("yaml")
		v.SetConfigName("toolloop")
		v.AddConfigPath(".")
		if dir, err := ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate performs sanity checks on configuration values and reports every
// problem found.
func (c *Config) Validate() error {
	var errs error

	if !lo.Contains(Providers, c.Provider.Name) {
		errs = multierr.Append(errs, fmt.Errorf("provider.name %q must be one of %v", c.Provider.Name, Providers))
	}
	if c.Vision.Provider != "" && !lo.Contains(Providers, c.Vision.Provider) {
		errs = multierr.Append(errs, fmt.Errorf("vision.provider %q must be one of %v", c.Vision.Provider, Providers))
	}
	if c.Provider.Timeout <= 0 {
		errs = multierr.Append(errs, errors.New("provider.timeout must be positive"))
	}
	if c.Vision.Coordinates != "normalized" && c.Vision.Coordinates != "pixel" {
		errs = multierr.Append(errs, fmt.Errorf("vision.coordinates %q must be normalized or pixel", c.Vision.Coordinates))
	}
	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		errs = multierr.Append(errs, errors.New("vision.min_confidence must be within [0,1]"))
	}
	if c.Agent.MaxTurns < 1 {
		errs = multierr.Append(errs, errors.New("agent.max_turns must be at least 1"))
	}
	if c.Agent.MaxRetries < 0 {
		errs = multierr.Append(errs, errors.New("agent.max_retries must not be negative"))
	}
	if c.Drawing.LineWidth < 1 {
		errs = multierr.Append(errs, errors.New("drawing.line_width must be at least 1"))
	}
	if c.Transcript.Format != "json" && c.Transcript.Format != "yaml" {
		errs = multierr.Append(errs, fmt.Errorf("transcript.format %q must be json or yaml", c.Transcript.Format))
	}
	if !lo.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		errs = multierr.Append(errs, fmt.Errorf("logging.level %q is not supported", c.Logging.Level))
	}

	return errs
}

// VisionProvider returns the provider settings used by the locator.
func (c *Config) VisionProvider() ProviderConfig {
	p := c.Provider
	if c.Vision.Provider != "" && c.Vision.Provider != p.Name {
		p = ProviderConfig{
			Name:        c.Vision.Provider,
			Timeout:     c.Provider.Timeout,
			Temperature: 0,
			MaxTokens:   c.Provider.MaxTokens,
		}
	}
	if c.Vision.Model != "" {
		p.Model = c.Vision.Model
	}
	return p
}

// Save writes the configuration as YAML to path, or to ConfigPath when
// path is empty. API keys are never written.
func (c Config) Save(path string) error {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	c.Provider.APIKey = ""
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
