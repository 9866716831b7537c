package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "dayboard/pkg/logx"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrBusy       = errors.New("job already running")
)

type Config struct {
	Enabled  bool
	Timezone string
}

// Job is one unit of background work.
type Job func(ctx context.Context) error

// JobInfo is a point-in-time view of one registered job.
type JobInfo struct {
	Name     string        `json:"name"`
	Schedule string        `json:"schedule"`
	Timeout  time.Duration `json:"timeout"`
	Next     time.Time     `json:"next,omitzero"`
	LastRun  time.Time     `json:"last_run,omitzero"`
	LastErr  string        `json:"last_err,omitempty"`
	Runs     uint64        `json:"runs"`
	Skipped  uint64        `json:"skipped"`
	Running  bool          `json:"running"`
}

type Snapshot struct {
	Enabled  bool      `json:"enabled"`
	Running  bool      `json:"running"`
	Timezone string    `json:"timezone"`
	Jobs     []JobInfo `json:"jobs"`
}

type jobDef struct {
	name    string
	spec    ParsedSpec
	timeout time.Duration
	fn      Job
	entry   cron.EntryID

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64

	mu      sync.Mutex
	lastRun time.Time
	lastErr string
}

// Service owns a cron runner and a set of named jobs.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	log  logx.Logger
	c    *cron.Cron
	loc  *time.Location
	base context.Context
	stop context.CancelFunc
	jobs map[string]*jobDef
	wg   sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, jobs: map[string]*jobDef{}}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Running reports whether the cron runner is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Add registers or replaces the job called name. A running service picks the
// new schedule up immediately.
func (s *Service) Add(name, schedule string, timeout time.Duration, fn Job) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return fmt.Errorf("job name and func required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[name]; ok && s.c != nil {
		s.c.Remove(old.entry)
	}
	d := &jobDef{name: name, spec: spec, timeout: timeout, fn: fn}
	s.jobs[name] = d
	if s.c != nil {
		if err := s.addCronLocked(d); err != nil {
			return err
		}
	}
	s.log.Debug("job registered", logx.String("job", name), logx.String("schedule", spec.Spec()))
	return nil
}

// Remove drops a job. It reports whether the job existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.c != nil {
		s.c.Remove(d.entry)
	}
	delete(s.jobs, name)
	return true
}

// Start launches the cron runner in the configured timezone.
// Jobs derive their contexts from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.base, s.stop = context.WithCancel(context.WithoutCancel(ctx))
	s.startLocked()
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
	for _, d := range s.jobs {
		_ = s.addCronLocked(d)
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop halts triggering, cancels in-flight jobs and waits for them to return
// or for ctx to expire.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.stop
	s.c, s.stop = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out with jobs in flight")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Apply swaps the config. A timezone change restarts a running cron so
// schedules fire in the new zone.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || oldTZ == strings.TrimSpace(cfg.Timezone) {
		return
	}
	<-s.c.Stop().Done()
	s.startLocked()
}

// RunNow runs a job synchronously outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	d, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, d)
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: s.loadLocationLocked().String()}
	for _, d := range s.jobs {
		ji := JobInfo{
			Name:     d.name,
			Schedule: d.spec.Spec(),
			Timeout:  d.timeout,
			Runs:     d.runs.Load(),
			Skipped:  d.skipped.Load(),
			Running:  d.running.Load(),
		}
		d.mu.Lock()
		ji.LastRun, ji.LastErr = d.lastRun, d.lastErr
		d.mu.Unlock()
		if s.c != nil && d.entry != 0 {
			ji.Next = s.c.Entry(d.entry).Next
		}
		out.Jobs = append(out.Jobs, ji)
	}
	slices.SortFunc(out.Jobs, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Service) addCronLocked(d *jobDef) error {
	base := s.base
	id, err := s.c.AddFunc(d.spec.Spec(), func() {
		if err := s.run(base, d); err != nil && !errors.Is(err, ErrBusy) {
			s.log.Warn("job failed", logx.String("job", d.name), logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", d.name, err)
	}
	d.entry = id
	return nil
}

// run executes d unless it is already running.
func (s *Service) run(ctx context.Context, d *jobDef) (err error) {
	if !d.running.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		s.log.Debug("job still running; skipped", logx.String("job", d.name))
		return fmt.Errorf("%w: %s", ErrBusy, d.name)
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer d.running.Store(false)

	if ctx == nil {
		ctx = context.Background()
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panic: %v", d.name, r)
		}
		d.runs.Add(1)
		d.mu.Lock()
		d.lastRun = start
		d.lastErr = ""
		if err != nil {
			d.lastErr = err.Error()
		}
		d.mu.Unlock()
		s.log.Debug("job done", logx.String("job", d.name), logx.Duration("took", time.Since(start)), logx.Err(err))
	}()
	return d.fn(ctx)
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("bad timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
