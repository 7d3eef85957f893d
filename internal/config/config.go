// Package config loads server configuration from an optional YAML file
// with environment variable overrides. Environment always wins, so
// deployments can ship one file and tune per-instance settings via env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Fx       FxConfig       `yaml:"fx"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Environment is "production" or anything else. Non-production
	// deployments never touch real payment providers.
	Environment string `yaml:"environment"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret     string   `yaml:"jwt_secret"`
	TokenDuration Duration `yaml:"token_duration"`
}

type GatewayConfig struct {
	// Mode is "auto", "mock", or "live".
	Mode string `yaml:"mode"`
	// AllowRealPayments permits live providers outside production when a
	// caller explicitly opts in.
	AllowRealPayments bool     `yaml:"allow_real_payments"`
	Timeout           Duration `yaml:"timeout"`
	StripeSecretKey   string   `yaml:"stripe_secret_key"`
	RazorpayKeyID     string   `yaml:"razorpay_key_id"`
	RazorpayKeySecret string   `yaml:"razorpay_key_secret"`
}

type FxConfig struct {
	// EodURL is the base URL of the end-of-day rate provider.
	EodURL string `yaml:"eod_url"`
}

// Load reads path (if non-empty and present) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Environment: "development",
		},
		Database: DatabaseConfig{Path: "data/splitex.db"},
		Auth: AuthConfig{
			JWTSecret:     "dev-secret-change-me",
			TokenDuration: Duration(24 * time.Hour),
		},
		Gateway: GatewayConfig{
			Mode:    "auto",
			Timeout: Duration(30 * time.Second),
		},
		Fx: FxConfig{EodURL: "https://api.frankfurter.dev/v1"},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenDuration = getEnvDuration("JWT_TOKEN_DURATION", c.Auth.TokenDuration)
	c.Gateway.Mode = getEnv("GATEWAY_MODE", c.Gateway.Mode)
	c.Gateway.AllowRealPayments = getEnvBool("GATEWAY_ALLOW_REAL", c.Gateway.AllowRealPayments)
	c.Gateway.Timeout = getEnvDuration("GATEWAY_TIMEOUT", c.Gateway.Timeout)
	c.Gateway.StripeSecretKey = getEnv("STRIPE_SECRET_KEY", c.Gateway.StripeSecretKey)
	c.Gateway.RazorpayKeyID = getEnv("RAZORPAY_KEY_ID", c.Gateway.RazorpayKeyID)
	c.Gateway.RazorpayKeySecret = getEnv("RAZORPAY_KEY_SECRET", c.Gateway.RazorpayKeySecret)
	c.Fx.EodURL = getEnv("FX_EOD_URL", c.Fx.EodURL)
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Production reports whether this is a production deployment.
func (c *Config) Production() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}
