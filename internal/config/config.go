// Package config loads the service configuration.
//
// Sources are layered, later ones win:
//
//  1. built-in defaults (defaultConfig)
//  2. an optional YAML file (CONFIG_PATH, then config.yaml / config.yml)
//  3. environment variables (see envMappings)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Whoop    WhoopConfig    `koanf:"whoop"`
	Sync     SyncConfig     `koanf:"sync"`
	Auth     AuthConfig     `koanf:"auth"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// SyncRequestsPerMinute limits inbound sync triggers per client IP.
	SyncRequestsPerMinute int `koanf:"sync_requests_per_minute" validate:"min=1"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type WhoopConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURI  string `koanf:"redirect_uri" validate:"required,url"`
	AuthURL      string `koanf:"auth_url" validate:"required,url"`
	TokenURL     string `koanf:"token_url" validate:"required,url"`
	APIBaseURL   string `koanf:"api_base_url" validate:"required,url"`
}

// Configured reports whether OAuth client credentials are present.
func (w WhoopConfig) Configured() bool {
	return w.ClientID != "" && w.ClientSecret != ""
}

type SyncConfig struct {
	MaxPerMinute int `koanf:"max_per_minute" validate:"min=1"`
	MaxPerDay    int `koanf:"max_per_day" validate:"min=1"`
	MaxAttempts  int `koanf:"max_attempts" validate:"min=1"`
	// Interval between background syncs. Zero disables the scheduler.
	Interval time.Duration `koanf:"interval" validate:"gte=0"`
}

type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret" validate:"omitempty,min=16"`
	SessionTTL time.Duration `koanf:"session_ttl" validate:"gt=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                  8080,
			ShutdownTimeout:       10 * time.Second,
			SyncRequestsPerMinute: 10,
		},
		Database: DatabaseConfig{
			Path: "data/healthos.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Whoop: WhoopConfig{
			RedirectURI: "http://localhost:8080/auth/callback",
			AuthURL:     "https://api.prod.whoop.com/oauth/oauth2/auth",
			TokenURL:    "https://api.prod.whoop.com/oauth/oauth2/token",
			APIBaseURL:  "https://api.prod.whoop.com/developer",
		},
		Sync: SyncConfig{
			MaxPerMinute: 90,
			MaxPerDay:    9500,
			MaxAttempts:  100,
			Interval:     0,
		},
		Auth: AuthConfig{
			SessionTTL: 7 * 24 * time.Hour,
		},
	}
}

// envMappings maps environment variables (lowercased) to config paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"port":                     "server.port",
	"shutdown_timeout":         "server.shutdown_timeout",
	"sync_requests_per_minute": "server.sync_requests_per_minute",
	"db_path":                  "database.path",
	"log_level":                "log.level",
	"log_format":               "log.format",
	"whoop_client_id":          "whoop.client_id",
	"whoop_client_secret":      "whoop.client_secret",
	"whoop_redirect_uri":       "whoop.redirect_uri",
	"whoop_auth_url":           "whoop.auth_url",
	"whoop_token_url":          "whoop.token_url",
	"whoop_api_base_url":       "whoop.api_base_url",
	"sync_max_per_minute":      "sync.max_per_minute",
	"sync_max_per_day":         "sync.max_per_day",
	"sync_max_attempts":        "sync.max_attempts",
	"sync_interval":            "sync.interval",
	"jwt_secret":               "auth.jwt_secret",
	"session_ttl":              "auth.session_ttl",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load reads defaults, the config file found by findConfigFile and the
// environment, then validates the result.
func Load() (*Config, error) {
	return load(findConfigFile())
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
}
