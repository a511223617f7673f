package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ApplySchema     bool          `yaml:"apply_schema"`
}

type AuthConfig struct {
	JWTSecret           string        `yaml:"jwt_secret"`
	TokenTTL            time.Duration `yaml:"token_ttl"`
	BcryptCost          int           `yaml:"bcrypt_cost"`
	ResetCodeTTL        time.Duration `yaml:"reset_code_ttl"`
	RevokeTokensOnReset bool          `yaml:"revoke_tokens_on_reset"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

// Enabled reports whether an SMTP relay is configured.
func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != ""
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MaintenanceConfig struct {
	PurgeSchedule string `yaml:"purge_schedule"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Email       EmailConfig       `yaml:"email"`
	Redis       RedisConfig       `yaml:"redis"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Log         LogConfig         `yaml:"log"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file is not an error when
// the environment supplies the required settings.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		c.Email.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.Email.SMTPPassword = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		c.Email.FromEmail = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.Email.SMTPPort = port
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}
	if c.Auth.ResetCodeTTL == 0 {
		c.Auth.ResetCodeTTL = time.Hour
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 10
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Maintenance.PurgeSchedule == "" {
		c.Maintenance.PurgeSchedule = "@every 1h"
	}
}

// Validate checks that the settings the server cannot run without are present.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.url (or DATABASE_URL) is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		problems = append(problems, "auth.jwt_secret (or JWT_SECRET) must be at least 32 bytes")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		problems = append(problems, "auth.bcrypt_cost must be between 4 and 31")
	}
	if c.Auth.TokenTTL < 0 || c.Auth.ResetCodeTTL < 0 {
		problems = append(problems, "auth ttl values must not be negative")
	}
	if c.Email.Enabled() && c.Email.FromEmail == "" {
		problems = append(problems, "email.from_email is required when smtp_host is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
