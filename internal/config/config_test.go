package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const jsonCfg = `{
  "server": {"addr": ":9090", "cookie_secure": true},
  "logging": {"level": "debug", "console": false},
  "scheduler": {"enabled": true, "timezone": "UTC", "digest": ""},
  "planner": {"monthly_step": "calendar"}
}`

const yamlCfg = `
server:
  addr: ":9090"
  cookie_secure: true
logging:
  level: debug
  console: false
scheduler:
  enabled: true
  timezone: UTC
  digest: ""
planner:
  monthly_step: calendar
`

const tomlCfg = `
[server]
addr = ":9090"
cookie_secure = true

[logging]
level = "debug"
console = false

[scheduler]
enabled = true
timezone = "UTC"
digest = ""

[planner]
monthly_step = "calendar"
`

func TestParseFormats(t *testing.T) {
	t.Parallel()
	for name, body := range map[string]string{"c.json": jsonCfg, "c.yaml": yamlCfg, "c.toml": tomlCfg} {
		cfg, err := ParseBytes(name, []byte(body))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cfg.Server.Addr != ":9090" || !cfg.Server.CookieSecure {
			t.Fatalf("%s: server %+v", name, cfg.Server)
		}
		if cfg.Logging.Level != "debug" || cfg.Logging.Console {
			t.Fatalf("%s: logging %+v", name, cfg.Logging)
		}
		if !cfg.Scheduler.Enabled || cfg.Scheduler.Digest != "" || cfg.Scheduler.Promote != "5 0 * * *" {
			t.Fatalf("%s: scheduler %+v", name, cfg.Scheduler)
		}
		if cfg.Planner.MonthlyStep != "calendar" {
			t.Fatalf("%s: planner %+v", name, cfg.Planner)
		}
		// Untouched sections keep defaults.
		if cfg.Storage.Driver != "sqlite" || cfg.Auth.SessionTTL != "30d" {
			t.Fatalf("%s: defaults lost: %+v %+v", name, cfg.Storage, cfg.Auth)
		}
		if cfg.Location() != time.UTC {
			t.Fatalf("%s: location %v", name, cfg.Location())
		}
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown key":    `{"server": {"port": 1}}`,
		"trailing data":  `{} {}`,
		"bad duration":   `{"auth": {"session_ttl": "forever"}}`,
		"neg duration":   `{"server": {"read_timeout": "-1s"}}`,
		"bad level":      `{"logging": {"level": "loud"}}`,
		"bad step":       `{"planner": {"monthly_step": "weekly"}}`,
		"bad tz":         `{"scheduler": {"timezone": "Mars/Base"}}`,
		"token required": `{"telegram": {"enabled": true}}`,
		"file path":      `{"logging": {"file": {"enabled": true}}}`,
	}
	for name, body := range cases {
		if _, err := ParseBytes("c.json", []byte(body)); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}

func TestParseEmptyYAML(t *testing.T) {
	t.Parallel()
	cfg, err := ParseBytes("c.yml", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("addr %q", cfg.Server.Addr)
	}
}

func TestDurationFields(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
	if d, err := ParseDurationField("x", " 2m "); err != nil || d != 2*time.Minute {
		t.Fatalf("parse: %v %v", d, err)
	}
	if _, err := ParseDurationField("x.y", "soon"); err == nil || !strings.Contains(err.Error(), "x.y") {
		t.Fatalf("err %v", err)
	}

	days := []struct {
		raw  string
		want time.Duration
	}{
		{"30d", 30 * 24 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{"0d", 0},
	}
	for _, tt := range days {
		if d, err := ParseDurationField("auth.session_ttl", tt.raw); err != nil || d != tt.want {
			t.Fatalf("%s: %v %v", tt.raw, d, err)
		}
	}
	for _, raw := range []string{"-1d", "xd", "2d-1h", "1d2"} {
		if _, err := ParseDurationField("auth.session_ttl", raw); err == nil {
			t.Fatalf("%s: want error", raw)
		}
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dayboard.json")
	writeFile(t, path, `{"logging": {"level": "info"}}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)
	ctx := context.Background()

	if ok, err := m.Reload(ctx); err != nil || ok {
		t.Fatalf("unchanged reload: ok=%v err=%v", ok, err)
	}

	writeFile(t, path, `{"logging": {"level": "debug"}}`)
	if ok, err := m.Reload(ctx); err != nil || !ok {
		t.Fatalf("changed reload: ok=%v err=%v", ok, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published %+v", cfg.Logging)
		}
	default:
		t.Fatal("nothing published")
	}

	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Logging.Level == "error" {
			return errors.New("no")
		}
		return nil
	})
	writeFile(t, path, `{"logging": {"level": "error"}}`)
	if ok, err := m.Reload(ctx); err == nil || ok {
		t.Fatalf("validator bypassed: ok=%v err=%v", ok, err)
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("rejected config committed")
	}

	writeFile(t, path, `{not json`)
	if _, err := m.Reload(ctx); err == nil {
		t.Fatal("want parse error")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel still open")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatal("want newest config")
	}
}

func TestWatchPublishes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dayboard.yaml")
	writeFile(t, path, "logging:\n  level: info\n")
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "warn" {
				t.Fatalf("level %q", cfg.Logging.Level)
			}
			return
		case <-tick.C:
			// Rewrite until the watcher has picked it up.
			writeFile(t, path, "logging:\n  level: warn\n")
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a, b := Default(), Default()
	if ch := SummarizeConfigChange(&a, &b); !ch.Empty() {
		t.Fatalf("want empty, got %v", ch.Sections)
	}
	b.Logging.Level = "debug"
	b.Server.Addr = ":1"
	b.Telegram.Token = "secret"
	ch := SummarizeConfigChange(&a, &b)
	if !ch.Has("logging") || !ch.Has("server") || !ch.Has("telegram") || ch.Has("planner") {
		t.Fatalf("sections %v", ch.Sections)
	}
	if len(ch.RestartRequired) != 2 {
		t.Fatalf("restart %v", ch.RestartRequired)
	}
}

func TestSummarizeTrustedProxies(t *testing.T) {
	t.Parallel()
	a, b := Default(), Default()
	b.Server.TrustedProxies = []string{"10.0.0.0/8"}
	ch := SummarizeConfigChange(&a, &b)
	if !ch.Has("server") || len(ch.RestartRequired) != 1 {
		t.Fatalf("sections %v restart %v", ch.Sections, ch.RestartRequired)
	}
	a.Server.TrustedProxies = []string{"10.0.0.0/8"}
	if ch := SummarizeConfigChange(&a, &b); !ch.Empty() {
		t.Fatalf("want empty, got %v", ch.Sections)
	}
}
