package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dayboard/internal/auth"
	"dayboard/internal/config"
	"dayboard/internal/httpapi"
	"dayboard/internal/notifier"
	"dayboard/internal/planner"
	"dayboard/internal/storage"
	"dayboard/internal/task/scheduler"
	logx "dayboard/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "none":
		return storage.Config{}, errors.New("storage.driver is required; dayboard keeps all state in storage")
	case "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapServerConfig(cfg *config.Config) (httpapi.Config, error) {
	sc := cfg.Server
	var errs []error
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := config.ParseDurationOrDefault(path, raw, def)
		errs = append(errs, err)
		return d
	}
	out := httpapi.Config{
		Addr:            strings.TrimSpace(sc.Addr),
		ReadTimeout:     dur("server.read_timeout", sc.ReadTimeout, 15*time.Second),
		WriteTimeout:    dur("server.write_timeout", sc.WriteTimeout, 30*time.Second),
		IdleTimeout:     dur("server.idle_timeout", sc.IdleTimeout, 60*time.Second),
		ShutdownTimeout: dur("server.shutdown_timeout", sc.ShutdownTimeout, 10*time.Second),
	}
	proxies, err := httpapi.ParseTrustedProxies(sc.TrustedProxies)
	errs = append(errs, err)
	out.TrustedProxies = proxies
	return out, errors.Join(errs...)
}

func mapAuthConfig(cfg *config.Config) (auth.Config, error) {
	ttl, err := config.ParseDurationOrDefault("auth.session_ttl", cfg.Auth.SessionTTL, auth.DefaultSessionTTL)
	if err != nil {
		return auth.Config{}, err
	}
	return auth.Config{
		SessionTTL:        ttl,
		AllowRegistration: cfg.Auth.AllowRegistration,
		CookieSecure:      cfg.Server.CookieSecure,
		LoginRatePerMin:   cfg.Auth.LoginRatePerMin,
		LoginBurst:        cfg.Auth.LoginBurst,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

func mapJobsConfig(cfg *config.Config) scheduler.JobsConfig {
	return scheduler.JobsConfig{
		Promote: cfg.Scheduler.Promote,
		Habits:  cfg.Scheduler.Habits,
		Digest:  cfg.Scheduler.Digest,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{Enabled: cfg.Telegram.Enabled, RetryMax: 2}
}

func mapTelegramConfig(cfg *config.Config) (notifier.TelegramConfig, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 10*time.Second)
	if err != nil {
		return notifier.TelegramConfig{}, err
	}
	return notifier.TelegramConfig{
		Token:   strings.TrimSpace(cfg.Telegram.Token),
		Timeout: timeout,
		APIURL:  cfg.Telegram.APIURL,
	}, nil
}

// validateConfig checks what config.Validate cannot: values owned by other
// packages. It runs on every hot reload before the config is committed.
func validateConfig(_ context.Context, cfg *config.Config) error {
	var errs []error
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapServerConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapAuthConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := planner.ParseMonthlyStep(cfg.Planner.MonthlyStep); err != nil {
		errs = append(errs, fmt.Errorf("planner.monthly_step: %w", err))
	}
	for path, raw := range map[string]string{
		"scheduler.promote": cfg.Scheduler.Promote,
		"scheduler.habits":  cfg.Scheduler.Habits,
		"scheduler.digest":  cfg.Scheduler.Digest,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := scheduler.ParseSchedule(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
