// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port                string  `mapstructure:"PORT"`
	APIBaseURL          string  `mapstructure:"API_BASE_URL"`
	APITimeoutSeconds   int     `mapstructure:"API_TIMEOUT_SECONDS"`
	APIRateLimit        float64 `mapstructure:"API_RATE_LIMIT"`
	APIPageSize         int     `mapstructure:"API_PAGE_SIZE"`
	RedisURL            string  `mapstructure:"REDIS_URL"`
	SessionCookieName   string  `mapstructure:"SESSION_COOKIE_NAME"`
	SessionCookieSecure bool    `mapstructure:"SESSION_COOKIE_SECURE"`
	SessionIdleMinutes  int     `mapstructure:"SESSION_IDLE_MINUTES"`
	TokenTTLHours       int     `mapstructure:"TOKEN_TTL_HOURS"`
	AuthRateLimit       int     `mapstructure:"AUTH_RATE_LIMIT"`
	FeatureFlags        string  `mapstructure:"FEATURE_FLAGS"`
	Env                 string  `mapstructure:"APP_ENV"`
	LogLevel            string  `mapstructure:"LOG_LEVEL"`
	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio  float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		slog.Info("loaded profile-specific configuration", slog.String("file", "config."+env+".yml"))
	}

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("API_BASE_URL", "http://localhost:5000/api")
	viper.SetDefault("API_TIMEOUT_SECONDS", 15)
	viper.SetDefault("API_RATE_LIMIT", 0)
	viper.SetDefault("API_PAGE_SIZE", 0)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("SESSION_COOKIE_NAME", "armp_sid")
	viper.SetDefault("SESSION_COOKIE_SECURE", false)
	viper.SetDefault("SESSION_IDLE_MINUTES", 60)
	viper.SetDefault("TOKEN_TTL_HOURS", 24)
	viper.SetDefault("AUTH_RATE_LIMIT", 10)
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.APIBaseURL = strings.TrimRight(strings.TrimSpace(config.APIBaseURL), "/")
	config.Env = strings.ToLower(strings.TrimSpace(config.Env))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// IsProduction reports whether the stricter production rules apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// APITimeout is the per-call timeout for the remote API.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// SessionIdle is how long an unused browser session is kept in memory.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// TokenTTL is the retention of tokens without a usable exp claim.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API_BASE_URL %q must be an absolute http(s) URL", c.APIBaseURL)
	}
	if c.APITimeoutSeconds <= 0 {
		return errors.New("API_TIMEOUT_SECONDS must be positive")
	}
	if c.APIRateLimit < 0 {
		return errors.New("API_RATE_LIMIT must not be negative")
	}
	if c.SessionCookieName == "" {
		return errors.New("SESSION_COOKIE_NAME is required")
	}
	if c.SessionIdleMinutes <= 0 {
		return errors.New("SESSION_IDLE_MINUTES must be positive")
	}
	if c.TokenTTLHours <= 0 {
		return errors.New("TOKEN_TTL_HOURS must be positive")
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}

	if c.IsProduction() {
		if !c.SessionCookieSecure {
			return errors.New("SESSION_COOKIE_SECURE must be enabled in production")
		}
		if u.Scheme != "https" {
			return errors.New("API_BASE_URL must use https in production")
		}
		if c.RedisURL == "" {
			slog.Warn("REDIS_URL is empty in production; tokens will not survive a restart")
		}
	}

	return nil
}
