package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
)

// DefaultInferenceURL is the hosted text-to-image model used when INFERENCE_URL is unset
const DefaultInferenceURL = "https://api-inference.huggingface.co/models/black-forest-labs/FLUX.1-schnell"

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// UpstreamConfig holds inference endpoint configuration
type UpstreamConfig struct {
	URL            string
	APIKey         string
	RequestTimeout time.Duration
	MaxImageBytes  int64
}

// RetryConfig controls how rate limited requests are retried
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64
	Jitter     bool
}

// Config holds all configuration for the application
type Config struct {
	Server          ServerConfig
	Upstream        UpstreamConfig
	Retry           RetryConfig
	LogLevel        string
	MaxPromptLength int
}

// fileConfig mirrors Config in the optional TOML file
type fileConfig struct {
	Server struct {
		Host                   string   `toml:"host"`
		Port                   int      `toml:"port"`
		ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
		AllowedOrigins         []string `toml:"allowed_origins"`
	} `toml:"server"`

	Upstream struct {
		URL                   string `toml:"url"`
		APIKey                string `toml:"api_key"`
		RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
		MaxImageBytes         int64  `toml:"max_image_bytes"`
	} `toml:"upstream"`

	Retry struct {
		MaxRetries       *int    `toml:"max_retries"`
		BaseDelaySeconds int     `toml:"base_delay_seconds"`
		MaxDelaySeconds  int     `toml:"max_delay_seconds"`
		Factor           float64 `toml:"factor"`
		Jitter           *bool   `toml:"jitter"`
	} `toml:"retry"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`

	Prompt struct {
		MaxLength int `toml:"max_length"`
	} `toml:"prompt"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Upstream: UpstreamConfig{
			URL:            DefaultInferenceURL,
			RequestTimeout: 2 * time.Minute,
			MaxImageBytes:  20 << 20,
		},
		Retry: RetryConfig{
			MaxRetries: 4,
			BaseDelay:  30 * time.Second,
			MaxDelay:   2 * time.Minute,
			Factor:     2,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the optional TOML file at configPath,
// the optional .env file at envPath and finally the process environment.
func Load(envPath, configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		if err := config.applyFile(configPath); err != nil {
			return nil, err
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s file: %w", envPath, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	c.Server.Host = lo.Ternary(fc.Server.Host != "", fc.Server.Host, c.Server.Host)
	c.Server.Port = lo.Ternary(fc.Server.Port != 0, fc.Server.Port, c.Server.Port)
	if fc.Server.ShutdownTimeoutSeconds != 0 {
		c.Server.ShutdownTimeout = time.Duration(fc.Server.ShutdownTimeoutSeconds) * time.Second
	}
	if len(fc.Server.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = fc.Server.AllowedOrigins
	}

	c.Upstream.URL = lo.Ternary(fc.Upstream.URL != "", fc.Upstream.URL, c.Upstream.URL)
	c.Upstream.APIKey = lo.Ternary(fc.Upstream.APIKey != "", fc.Upstream.APIKey, c.Upstream.APIKey)
	if fc.Upstream.RequestTimeoutSeconds != 0 {
		c.Upstream.RequestTimeout = time.Duration(fc.Upstream.RequestTimeoutSeconds) * time.Second
	}
	c.Upstream.MaxImageBytes = lo.Ternary(fc.Upstream.MaxImageBytes != 0, fc.Upstream.MaxImageBytes, c.Upstream.MaxImageBytes)

	if fc.Retry.MaxRetries != nil {
		c.Retry.MaxRetries = *fc.Retry.MaxRetries
	}
	if fc.Retry.BaseDelaySeconds != 0 {
		c.Retry.BaseDelay = time.Duration(fc.Retry.BaseDelaySeconds) * time.Second
	}
	if fc.Retry.MaxDelaySeconds != 0 {
		c.Retry.MaxDelay = time.Duration(fc.Retry.MaxDelaySeconds) * time.Second
	}
	c.Retry.Factor = lo.Ternary(fc.Retry.Factor != 0, fc.Retry.Factor, c.Retry.Factor)
	if fc.Retry.Jitter != nil {
		c.Retry.Jitter = *fc.Retry.Jitter
	}

	c.LogLevel = lo.Ternary(fc.Log.Level != "", fc.Log.Level, c.LogLevel)
	c.MaxPromptLength = lo.Ternary(fc.Prompt.MaxLength != 0, fc.Prompt.MaxLength, c.MaxPromptLength)

	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv("INFERENCE_URL"); v != "" {
		c.Upstream.URL = v
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := lo.Map(strings.Split(v, ","), func(s string, _ int) string {
			return strings.TrimSpace(s)
		})
		c.Server.AllowedOrigins = lo.Filter(origins, func(s string, _ int) bool {
			return s != ""
		})
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Server.Port},
		{"MAX_RETRIES", &c.Retry.MaxRetries},
		{"MAX_PROMPT_LENGTH", &c.MaxPromptLength},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"UPSTREAM_TIMEOUT_SECONDS", &c.Upstream.RequestTimeout},
		{"RETRY_BASE_DELAY_SECONDS", &c.Retry.BaseDelay},
		{"RETRY_MAX_DELAY_SECONDS", &c.Retry.MaxDelay},
		{"SHUTDOWN_TIMEOUT_SECONDS", &c.Server.ShutdownTimeout},
	}
	for _, e := range durations {
		var seconds int
		if err := envInt(e.key, &seconds); err != nil {
			return err
		}
		if os.Getenv(e.key) != "" {
			*e.dst = time.Duration(seconds) * time.Second
		}
	}

	if v := os.Getenv("UPSTREAM_MAX_IMAGE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("UPSTREAM_MAX_IMAGE_BYTES must be an integer: %w", err)
		}
		c.Upstream.MaxImageBytes = n
	}

	if v := os.Getenv("RETRY_JITTER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RETRY_JITTER must be a boolean: %w", err)
		}
		c.Retry.Jitter = b
	}

	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Upstream.URL == "" {
		return fmt.Errorf("INFERENCE_URL is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("upstream request timeout must be positive")
	}
	if c.Upstream.MaxImageBytes <= 0 {
		return fmt.Errorf("upstream max image bytes must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry base delay %s exceeds max delay %s", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("retry factor must be at least 1, got %g", c.Retry.Factor)
	}
	if c.MaxPromptLength < 0 {
		return fmt.Errorf("MAX_PROMPT_LENGTH must not be negative")
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("CORS origin %q must be * or start with http:// or https://", origin)
		}
	}
	return nil
}

// GetAddr returns the listen address for the HTTP server
func (c *Config) GetAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
