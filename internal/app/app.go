// Package app wires configuration, storage, the planner, the HTTP API and the
// background jobs into one process and owns their start and stop order.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dayboard/internal/auth"
	"dayboard/internal/config"
	"dayboard/internal/eventbus"
	"dayboard/internal/httpapi"
	"dayboard/internal/notifier"
	"dayboard/internal/planner"
	"dayboard/internal/runtime/supervisor"
	"dayboard/internal/storage"
	"dayboard/internal/task/scheduler"
	logx "dayboard/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.DB
	planner *planner.Planner
	auth    *auth.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	http    *httpapi.Server

	jobDeps scheduler.JobDeps
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a, err := build(cfg, cfgm, logSvc, log, bus, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, cfgm *config.ConfigManager, logSvc *logx.Service, log logx.Logger, bus eventbus.Bus, store *storage.DB) (*App, error) {
	step, _ := planner.ParseMonthlyStep(cfg.Planner.MonthlyStep)
	p, err := planner.New(store, planner.Options{
		Location:    cfg.Location(),
		MonthlyStep: step,
		Bus:         bus,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	ac, err := mapAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	authSvc := auth.NewService(store, ac, log.With(logx.String("comp", "auth")))

	var sender notifier.Sender
	if cfg.Telegram.Enabled {
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := notifier.NewTelegram(tc)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}
	notif := notifier.New(mapNotifierConfig(cfg), sender, store, p, bus, log.With(logx.String("comp", "notifier")))

	sched := scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler")))
	deps := scheduler.JobDeps{Store: store, Planner: p, Logger: log.With(logx.String("comp", "jobs"))}
	if sender != nil {
		deps.Digester = notif
	}
	if err := scheduler.RegisterJobs(sched, mapJobsConfig(cfg), deps); err != nil {
		return nil, err
	}

	hc, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		planner: p,
		auth:    authSvc,
		sched:   sched,
		notif:   notif,
		jobDeps: deps,
	}
	handler := httpapi.NewHandler(httpapi.Deps{
		Store:   store,
		Planner: p,
		Auth:    authSvc,
		Logger:  log.With(logx.String("comp", "http")),
		Health:  a.health,

		TrustedProxies: hc.TrustedProxies,
	})
	a.http = httpapi.NewServer(hc, handler, log.With(logx.String("comp", "http")))
	return a, nil
}

// Addr is the bound HTTP address once started.
func (a *App) Addr() string { return a.http.Addr() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() any {
	out := map[string]any{
		"scheduler": a.sched.Snapshot(),
		"today":     a.planner.Today(),
	}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if hs := a.http.Supervisor(); hs != nil {
		out["http"] = hs.Snapshot()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig)

	if err := a.http.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("http: %w", err)
	}
	hsup := a.http.Supervisor()
	a.sup.Go("http.monitor", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case <-hsup.Context().Done():
			return hsup.Err()
		}
	})

	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	}, supervisor.WithRestartBackoff(time.Second, time.Minute))
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return watchdogLoop(c, a.log)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("addr", a.http.Addr()), logx.Bool("scheduler", a.sched.Enabled()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	var errs []error
	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", 10*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
