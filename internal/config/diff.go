package config

import (
	"slices"
	"strings"

	logx "dayboard/pkg/logx"
)

// Change summarises what differs between two configs.
type Change struct {
	// Sections lists changed top-level sections.
	Sections []string
	// Fields are safe log attributes describing the new values. Secrets
	// are reported only as set/unset.
	Fields []logx.Field
	// RestartRequired names changed sections that are only read at start.
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	if !serverEqual(oldCfg.Server, newCfg.Server) {
		mark("server", true, logx.String("server.addr", newCfg.Server.Addr))
	}
	if oldCfg.Auth != newCfg.Auth {
		mark("auth", false,
			logx.Bool("auth.allow_registration", newCfg.Auth.AllowRegistration),
			logx.Int("auth.login_rate_per_min", newCfg.Auth.LoginRatePerMin),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler", false,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if oldCfg.Planner != newCfg.Planner {
		mark("planner", false, logx.String("planner.monthly_step", newCfg.Planner.MonthlyStep))
	}
	if oldCfg.Telegram != newCfg.Telegram {
		mark("telegram", true,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}
	return ch
}

func serverEqual(a, b ServerConfig) bool {
	return a.Addr == b.Addr &&
		a.ReadTimeout == b.ReadTimeout &&
		a.WriteTimeout == b.WriteTimeout &&
		a.IdleTimeout == b.IdleTimeout &&
		a.ShutdownTimeout == b.ShutdownTimeout &&
		a.CookieSecure == b.CookieSecure &&
		slices.Equal(a.TrustedProxies, b.TrustedProxies)
}
