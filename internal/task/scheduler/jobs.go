package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dayboard/internal/model"
	"dayboard/internal/notifier"
	"dayboard/internal/planner"
	logx "dayboard/pkg/logx"
)

// Names of the built-in jobs.
const (
	JobPromote = "promote"
	JobHabits  = "habits"
	JobDigest  = "digest"
)

type Promoter interface {
	Today() model.Date
	Promote(ctx context.Context, owner int64, today model.Date, opt planner.PromoteOptions) (planner.PromoteResult, error)
}

type UserStore interface {
	Users(ctx context.Context) ([]model.User, error)
	BackfillHabits(ctx context.Context, owner int64, today model.Date) (int, error)
}

type Digester interface {
	Enabled() bool
	SendDigests(ctx context.Context) (notifier.Report, error)
}

// JobsConfig holds one schedule string per job; an empty string disables it.
type JobsConfig struct {
	Promote string
	Habits  string
	Digest  string
	Timeout time.Duration
}

type JobDeps struct {
	Store    UserStore
	Planner  Promoter
	Digester Digester // optional
	Logger   logx.Logger
}

// RegisterJobs upserts the built-in jobs on s. Calling it again with a new
// config reschedules them.
func RegisterJobs(s *Service, cfg JobsConfig, d JobDeps) error {
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	type namedJob struct {
		name     string
		schedule string
		fn       Job
	}
	jobs := []namedJob{
		{JobPromote, cfg.Promote, func(ctx context.Context) error { return PromoteAll(ctx, d.Store, d.Planner, log) }},
		{JobHabits, cfg.Habits, func(ctx context.Context) error { return BackfillAll(ctx, d.Store, d.Planner.Today(), log) }},
	}
	if d.Digester != nil {
		jobs = append(jobs, namedJob{JobDigest, cfg.Digest, func(ctx context.Context) error {
			if !d.Digester.Enabled() {
				return nil
			}
			_, err := d.Digester.SendDigests(ctx)
			return err
		}})
	} else {
		s.Remove(JobDigest)
	}

	var errs []error
	for _, j := range jobs {
		if strings.TrimSpace(j.schedule) == "" {
			s.Remove(j.name)
			continue
		}
		if err := s.Add(j.name, j.schedule, timeout, j.fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PromoteAll runs the promoter for every user. One user's failure does not
// stop the rest.
func PromoteAll(ctx context.Context, store UserStore, p Promoter, log logx.Logger) error {
	users, err := store.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	day := p.Today()
	var (
		errs     []error
		inserted int
	)
	for _, u := range users {
		res, err := p.Promote(ctx, u.ID, day, planner.PromoteOptions{Trigger: "cron"})
		if err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
			continue
		}
		inserted += res.Inserted()
	}
	log.Info("nightly promotion done",
		logx.String("day", day.String()),
		logx.Int("users", len(users)),
		logx.Int("inserted", inserted),
		logx.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// BackfillAll creates missing habit rows up to today for every user.
func BackfillAll(ctx context.Context, store UserStore, today model.Date, log logx.Logger) error {
	users, err := store.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var (
		errs  []error
		added int
	)
	for _, u := range users {
		n, err := store.BackfillHabits(ctx, u.ID, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
			continue
		}
		added += n
	}
	log.Debug("habit backfill done", logx.Int("users", len(users)), logx.Int("added", added))
	return errors.Join(errs...)
}
