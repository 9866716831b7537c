package app

import (
	"context"
	"strings"
	"time"

	"dayboard/internal/config"
	"dayboard/internal/eventbus"
	"dayboard/internal/planner"
	"dayboard/internal/task/scheduler"
	logx "dayboard/pkg/logx"
)

// reloadLoop applies published configs until ctx ends.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the hot-reloadable parts of newCfg into the running
// components. Server, storage and telegram changes only take effect after a
// restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)...)
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}

	if ch.Has("logging") {
		a.logs.Apply(mapLogConfig(newCfg))
	}

	if ch.Has("auth") || ch.Has("server") {
		if ac, err := mapAuthConfig(newCfg); err != nil {
			a.log.Warn("invalid auth config; keeping previous", logx.Err(err))
		} else {
			a.auth.Apply(ac)
		}
	}

	if ch.Has("planner") || ch.Has("scheduler") {
		a.planner.SetLocation(newCfg.Location())
		if step, err := planner.ParseMonthlyStep(newCfg.Planner.MonthlyStep); err != nil {
			a.log.Warn("invalid planner.monthly_step; keeping previous", logx.Err(err))
		} else {
			a.planner.SetMonthlyStep(step)
		}
	}

	if ch.Has("scheduler") {
		a.applyScheduler(ctx, newCfg)
	}

	if ch.Has("telegram") {
		a.notif.Apply(mapNotifierConfig(newCfg))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: ch.Sections})
	a.log.Info("config reloaded", logx.String("changed", strings.Join(ch.Sections, ",")))
}

func (a *App) applyScheduler(ctx context.Context, cfg *config.Config) {
	if err := scheduler.RegisterJobs(a.sched, mapJobsConfig(cfg), a.jobDeps); err != nil {
		a.log.Warn("job schedule update failed", logx.Err(err))
	}

	prevEnabled := a.sched.Enabled()
	sc := mapSchedulerConfig(cfg)
	a.sched.Apply(sc)

	switch {
	case prevEnabled && !sc.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prevEnabled && sc.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}
}
