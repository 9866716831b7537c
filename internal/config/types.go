package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the whole file. Durations are Go duration strings, optionally
// led by whole days ("5s", "30d").
type Config struct {
	Server    ServerConfig    `json:"server"`
	Auth      AuthConfig      `json:"auth"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Planner   PlannerConfig   `json:"planner"`
	Telegram  TelegramConfig  `json:"telegram"`
}

type ServerConfig struct {
	Addr            string `json:"addr"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	CookieSecure    bool   `json:"cookie_secure"`
	// TrustedProxies lists IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `json:"trusted_proxies,omitempty"`
}

type AuthConfig struct {
	SessionTTL        string `json:"session_ttl,omitempty"`
	AllowRegistration bool   `json:"allow_registration"`
	// LoginRatePerMin limits login attempts per client. 0 disables it.
	LoginRatePerMin int `json:"login_rate_per_min"`
	LoginBurst      int `json:"login_burst,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig gates the background jobs. Schedules are 5-field cron
// specs or "@every <duration>"; an empty schedule disables that job.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
	Promote  string `json:"promote,omitempty"`
	Habits   string `json:"habits,omitempty"`
	Digest   string `json:"digest,omitempty"`
}

type PlannerConfig struct {
	// MonthlyStep is "30d" (default) or "calendar".
	MonthlyStep string `json:"monthly_step,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	APIURL  string `json:"api_url,omitempty"`
}

// Default returns the values used for keys the file leaves out.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			IdleTimeout:     "60s",
			ShutdownTimeout: "10s",
		},
		Auth: AuthConfig{
			SessionTTL:        "30d",
			AllowRegistration: true,
			LoginRatePerMin:   10,
			LoginBurst:        5,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "sqlite", Path: "dayboard.db", BusyTimeout: "5s"},
		Scheduler: SchedulerConfig{
			Promote: "5 0 * * *",
			Habits:  "10 0 * * *",
			Digest:  "0 7 * * *",
		},
		Planner:  PlannerConfig{MonthlyStep: "30d"},
		Telegram: TelegramConfig{Timeout: "10s"},
	}
}

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks values that can be judged without other packages.
// Schedule syntax is checked by the scheduler's validator hook.
func (c *Config) Validate() error {
	var errs []error
	durations := map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.session_ttl":        c.Auth.SessionTTL,
		"storage.busy_timeout":    c.Storage.BusyTimeout,
		"telegram.timeout":        c.Telegram.Timeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if !validLevels[strings.ToLower(strings.TrimSpace(c.Logging.Level))] {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when logging.file.enabled"))
	}
	if c.Auth.LoginRatePerMin < 0 || c.Auth.LoginBurst < 0 {
		errs = append(errs, errors.New("auth: login rate and burst must be >= 0"))
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Planner.MonthlyStep)) {
	case "", "30d", "fixed", "calendar":
	default:
		errs = append(errs, fmt.Errorf("planner.monthly_step: unknown value %q", c.Planner.MonthlyStep))
	}
	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram.enabled"))
	}
	return errors.Join(errs...)
}

// Location resolves scheduler.timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
