// Package config loads agent settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/memory-agent/internal/checkpoint"
	"gopkg.in/yaml.v3"
)

// ErrMissingBaseURL is returned by Validate when no upstream URL is configured.
var ErrMissingBaseURL = errors.New("missing upstream base URL (set --base-url or CONVEX_SITE_URL)")

// Provider identifies a text-generation backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// Upstream record store
	BaseURL        string        `yaml:"base_url"`
	PollInterval   time.Duration `yaml:"-"`
	RequestTimeout time.Duration `yaml:"-"`
	PageSize       int           `yaml:"page_size"`

	// Checkpoint
	StateFile string               `yaml:"state_file"`
	StartMode checkpoint.StartMode `yaml:"start_mode"`

	// Calendar action
	ICSDir      string `yaml:"ics_dir"`
	OpenBrowser bool   `yaml:"open_browser"`

	// Goal coaching generation
	LLMProvider     Provider `yaml:"llm_provider"`
	LLMModel        string   `yaml:"llm_model"`
	OpenAIAPIKey    string   `yaml:"-"`
	OpenAIBaseURL   string   `yaml:"openai_base_url"`
	AnthropicAPIKey string   `yaml:"-"`
	OllamaHost      string   `yaml:"ollama_host"`
	AWSRegion       string   `yaml:"aws_region"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// fileConfig mirrors Config for YAML, with durations in seconds.
type fileConfig struct {
	Config                `yaml:",inline"`
	PollIntervalSeconds   *float64 `yaml:"poll_interval"`
	RequestTimeoutSeconds *float64 `yaml:"request_timeout"`
	LogLevel              string   `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		PollInterval:   3 * time.Second,
		RequestTimeout: 30 * time.Second,
		PageSize:       100,
		StateFile:      ".memory_agent_state.json",
		StartMode:      checkpoint.StartSkipHistory,
		ICSDir:         "generated_invites",
		OpenBrowser:    true,
		LLMProvider:    ProviderOpenAI,
		LLMModel:       "gpt-4o-mini",
		OllamaHost:     "http://localhost:11434",
		LogFile:        "/tmp/memory-agent.log",
		LogLevel:       slog.LevelInfo,
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// AGENT_CONFIG (if any), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := getEnv("AGENT_CONFIG", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	// Secrets are only read from the environment.
	if fc.PollIntervalSeconds != nil {
		fc.Config.PollInterval = seconds(*fc.PollIntervalSeconds)
	}
	if fc.RequestTimeoutSeconds != nil {
		fc.Config.RequestTimeout = seconds(*fc.RequestTimeoutSeconds)
	}
	if fc.LogLevel != "" {
		fc.Config.LogLevel = parseLogLevel(fc.LogLevel)
	}
	*c = fc.Config
	return nil
}

func (c *Config) applyEnv() {
	c.BaseURL = getEnv("CONVEX_SITE_URL", getEnv("NEXT_PUBLIC_CONVEX_SITE_URL", c.BaseURL))
	c.PollInterval = secondsEnv("AGENT_POLL_INTERVAL", c.PollInterval)
	c.RequestTimeout = secondsEnv("AGENT_REQUEST_TIMEOUT", c.RequestTimeout)
	c.PageSize = intEnv("AGENT_PAGE_SIZE", c.PageSize)
	c.StateFile = getEnv("AGENT_STATE_FILE", c.StateFile)
	c.StartMode = checkpoint.StartMode(getEnv("AGENT_START_MODE", string(c.StartMode)))
	c.ICSDir = getEnv("AGENT_ICS_DIR", c.ICSDir)
	c.OpenBrowser = boolEnv("AGENT_OPEN_BROWSER", c.OpenBrowser)

	c.LLMProvider = Provider(strings.ToLower(getEnv("AGENT_LLM_PROVIDER", string(c.LLMProvider))))
	c.LLMModel = getEnv("AGENT_LLM_MODEL", c.LLMModel)
	c.OpenAIAPIKey = strings.TrimSpace(getEnv("OPENAI_API_KEY", c.OpenAIAPIKey))
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.AnthropicAPIKey = strings.TrimSpace(getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey))
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	c.LogFile = getEnv("AGENT_LOG_FILE", c.LogFile)
	if lvl := getEnv("AGENT_LOG_LEVEL", ""); lvl != "" {
		c.LogLevel = parseLogLevel(lvl)
	}
}

// Normalize trims the base URL and clamps non-positive values to defaults.
func (c *Config) Normalize() {
	d := Defaults()
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.StartMode == "" {
		c.StartMode = d.StartMode
	}
}

// Validate reports configuration that prevents the agent from starting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	if _, err := checkpoint.ParseStartMode(string(c.StartMode)); err != nil {
		return err
	}
	return nil
}

// LogValue implements slog.LogValuer. Credentials are reported only as set/unset.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", c.BaseURL),
		slog.Duration("poll_interval", c.PollInterval),
		slog.Duration("request_timeout", c.RequestTimeout),
		slog.Int("page_size", c.PageSize),
		slog.String("state_file", c.StateFile),
		slog.String("start_mode", string(c.StartMode)),
		slog.String("ics_dir", c.ICSDir),
		slog.Bool("open_browser", c.OpenBrowser),
		slog.String("llm_provider", string(c.LLMProvider)),
		slog.String("llm_model", c.LLMModel),
		slog.Bool("openai_key_set", c.OpenAIAPIKey != ""),
		slog.Bool("anthropic_key_set", c.AnthropicAPIKey != ""),
	)
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func secondsEnv(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		slog.Warn("invalid duration setting, using default", "key", key, "value", raw, "default", defaultVal)
		return defaultVal
	}
	return seconds(v)
}

func intEnv(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer setting, using default", "key", key, "value", raw, "default", defaultVal)
		return defaultVal
	}
	return v
}

// boolEnv treats 0/false/no (any case) as false and anything else as true.
func boolEnv(key string, defaultVal bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	switch strings.ToLower(raw) {
	case "0", "false", "no":
		return false
	default:
		return true
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
