// Package config loads crmapp settings from an optional YAML file, then
// applies CRM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"crmapp/internal/board"
	"crmapp/internal/util"
)

// Config holds all crmapp configuration.
type Config struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`

	Backend  BackendConfig  `yaml:"backend"`
	Telegram TelegramConfig `yaml:"telegram"`
	Session  SessionConfig  `yaml:"session"`
	State    StateConfig    `yaml:"state"`
	View     ViewConfig     `yaml:"view"`
	CORS     CORSConfig     `yaml:"cors"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig points at the remote task API.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout of zero leaves requests bounded only by their context.
	Timeout time.Duration `yaml:"timeout"`
}

// TelegramConfig verifies the init-data injected by the chat platform.
type TelegramConfig struct {
	BotToken       string        `yaml:"bot_token"`
	InitDataMaxAge time.Duration `yaml:"init_data_max_age"`
}

// SessionConfig signs the session cookie issued after authentication.
type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	TTL        time.Duration `yaml:"ttl"`
	CookieName string        `yaml:"cookie_name"`
}

// StateConfig selects where per-user page state is persisted.
type StateConfig struct {
	Driver     string        `yaml:"driver"` // sqlite, redis, memory
	SQLitePath string        `yaml:"sqlite_path"`
	RedisURL   string        `yaml:"redis_url"`
	RedisTTL   time.Duration `yaml:"redis_ttl"`
}

// ViewConfig tunes the projections of the view layer.
type ViewConfig struct {
	DayKey              string `yaml:"day_key"` // due, created
	BucketLimit         int    `yaml:"bucket_limit"`
	ReloadAfterMutation bool   `yaml:"reload_after_mutation"`
	FallbackUserID      int64  `yaml:"fallback_user_id"`
	FallbackName        string `yaml:"fallback_name"`
	Timezone            string `yaml:"timezone"`
}

// CORSConfig lists origins allowed to call the JSON endpoints.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:    ":8080",
		Backend: BackendConfig{BaseURL: "http://localhost:8000"},
		Telegram: TelegramConfig{
			InitDataMaxAge: 24 * time.Hour,
		},
		Session: SessionConfig{
			TTL:        7 * 24 * time.Hour,
			CookieName: "crm_session",
		},
		State: StateConfig{
			Driver:     "sqlite",
			SQLitePath: "data/crmapp.db",
			RedisTTL:   30 * 24 * time.Hour,
		},
		View: ViewConfig{
			DayKey:       string(board.DueDateKey),
			BucketLimit:  board.DefaultLimit,
			FallbackName: "Friend",
			Timezone:     "Local",
		},
		CORS:    CORSConfig{AllowedOrigins: []string{"*"}},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Addr = util.EnvOrDefault("CRM_ADDR", c.Addr)
	c.StaticDir = util.EnvOrDefault("CRM_STATIC_DIR", c.StaticDir)

	c.Backend.BaseURL = util.EnvOrDefault("CRM_BACKEND_URL", c.Backend.BaseURL)
	c.Backend.Timeout = util.EnvDurationOrDefault("CRM_BACKEND_TIMEOUT", c.Backend.Timeout)

	c.Telegram.BotToken = util.EnvOrDefault("CRM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.InitDataMaxAge = util.EnvDurationOrDefault("CRM_INIT_DATA_MAX_AGE", c.Telegram.InitDataMaxAge)

	c.Session.Secret = util.EnvOrDefault("CRM_SESSION_SECRET", c.Session.Secret)
	c.Session.TTL = util.EnvDurationOrDefault("CRM_SESSION_TTL", c.Session.TTL)

	c.State.Driver = util.EnvOrDefault("CRM_STATE_DRIVER", c.State.Driver)
	c.State.SQLitePath = util.EnvOrDefault("CRM_STATE_DB", c.State.SQLitePath)
	c.State.RedisURL = util.EnvOrDefault("CRM_REDIS_URL", c.State.RedisURL)

	c.View.DayKey = util.EnvOrDefault("CRM_DAY_KEY", c.View.DayKey)
	c.View.ReloadAfterMutation = util.EnvBoolOrDefault("CRM_RELOAD_AFTER_MUTATION", c.View.ReloadAfterMutation)
	c.View.FallbackUserID = util.EnvInt64OrDefault("CRM_FALLBACK_USER_ID", c.View.FallbackUserID)
	c.View.Timezone = util.EnvOrDefault("CRM_TIMEZONE", c.View.Timezone)

	c.CORS.AllowedOrigins = util.EnvListOrDefault("CRM_CORS_ORIGINS", c.CORS.AllowedOrigins)

	c.Logging.Level = util.EnvOrDefault("CRM_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = util.EnvOrDefault("CRM_LOG_FORMAT", c.Logging.Format)
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	switch c.State.Driver {
	case "sqlite":
		if c.State.SQLitePath == "" {
			errs = append(errs, errors.New("state.sqlite_path is required for the sqlite driver"))
		}
	case "redis":
		if c.State.RedisURL == "" {
			errs = append(errs, errors.New("state.redis_url is required for the redis driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown state.driver %q", c.State.Driver))
	}
	if _, err := board.ParseDayKey(c.View.DayKey); err != nil {
		errs = append(errs, err)
	}
	if c.View.BucketLimit < 0 {
		errs = append(errs, errors.New("view.bucket_limit must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves the configured timezone used for "today".
func (c *Config) Location() (*time.Location, error) {
	if c.View.Timezone == "" || c.View.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.View.Timezone)
	if err != nil {
		return nil, fmt.Errorf("view.timezone: %w", err)
	}
	return loc, nil
}

// NewLogger builds the slog logger described by the logging section.
func (c *Config) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
