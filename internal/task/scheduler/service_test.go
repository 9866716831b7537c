package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"dayboard/internal/model"
	"dayboard/internal/planner"
	"dayboard/internal/storage"
	logx "dayboard/pkg/logx"
)

func TestAddRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.Add("x", "nope", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Add("", "1m", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for empty name")
	}
	if len(s.Snapshot().Jobs) != 0 {
		t.Fatal("rejected jobs must not be registered")
	}
}

func TestRunNowAndSkipWhileRunning(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	err := s.Add("slow", "1h", 0, func(ctx context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	if err := s.RunNow(context.Background(), "slow"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second run err = %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if len(snap.Jobs) != 1 {
		t.Fatalf("jobs = %d", len(snap.Jobs))
	}
	j := snap.Jobs[0]
	if j.Runs != 1 || j.Skipped != 1 || j.Running || j.LastRun.IsZero() {
		t.Fatalf("unexpected job info %+v", j)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("err = %v, want ErrUnknownJob", err)
	}
}

func TestRunRecordsErrorsAndPanics(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	_ = s.Add("boom", "1h", 0, func(context.Context) error { panic("kaboom") })
	_ = s.Add("fail", "1h", 0, func(context.Context) error { return errors.New("db down") })

	if err := s.RunNow(context.Background(), "boom"); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if err := s.RunNow(context.Background(), "fail"); err == nil {
		t.Fatal("expected error")
	}
	for _, j := range s.Snapshot().Jobs {
		if j.LastErr == "" {
			t.Fatalf("%s: LastErr not recorded", j.Name)
		}
	}
}

func TestRunAppliesTimeout(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	_ = s.Add("bounded", "1h", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.RunNow(context.Background(), "bounded"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestCronFiresAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	fired := make(chan struct{}, 4)
	_ = s.Add("tick", "@every 1s", 0, func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	s.Start(context.Background())
	if !s.Running() {
		t.Fatal("not running after Start")
	}
	if next := s.Snapshot().Jobs[0].Next; next.IsZero() {
		t.Fatal("next run not scheduled")
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}

	s.Apply(Config{Enabled: true, Timezone: "Asia/Jakarta"})
	if got := s.Snapshot().Timezone; got != "Asia/Jakarta" {
		t.Fatalf("timezone = %s", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Running() {
		t.Fatal("still running after Stop")
	}
}

func TestRegisterJobs(t *testing.T) {
	t.Parallel()
	db, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "jobs.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	p, err := planner.New(db, planner.Options{Clock: planner.FixedDay(model.MustDate("2024-06-10")), Location: time.UTC})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	u, err := db.CreateUser(ctx, "ann", "x")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := db.AddCalendarTask(ctx, model.CalendarTask{OwnerID: u.ID, Title: "Dentist", Date: model.MustDate("2024-06-10")}); err != nil {
		t.Fatal(err)
	}

	s := New(Config{}, logx.Nop())
	deps := JobDeps{Store: db, Planner: p}
	if err := RegisterJobs(s, JobsConfig{Promote: "5 0 * * *", Habits: "10 0 * * *", Digest: "0 7 * * *"}, deps); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Snapshot().Jobs); n != 2 {
		t.Fatalf("jobs = %d, want 2 without a digester", n)
	}

	if err := s.RunNow(ctx, JobPromote); err != nil {
		t.Fatal(err)
	}
	inc, _, err := db.ListTasks(ctx, u.ID, model.ListToday)
	if err != nil {
		t.Fatal(err)
	}
	if len(inc) != 1 || inc[0].Title != "Dentist" {
		t.Fatalf("Today list = %+v", inc)
	}
	// Second run is a no-op thanks to the day markers.
	if err := s.RunNow(ctx, JobPromote); err != nil {
		t.Fatal(err)
	}
	if inc, _, _ = db.ListTasks(ctx, u.ID, model.ListToday); len(inc) != 1 {
		t.Fatalf("promotion repeated: %d rows", len(inc))
	}

	if err := s.RunNow(ctx, JobHabits); err != nil {
		t.Fatal(err)
	}
	hs, err := db.Habits(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != 1 {
		t.Fatalf("habit rows = %d, want 1", len(hs))
	}

	if err := RegisterJobs(s, JobsConfig{Promote: "5 0 * * *"}, deps); err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); len(snap.Jobs) != 1 || snap.Jobs[0].Name != JobPromote {
		t.Fatalf("jobs after disabling habits = %+v", snap.Jobs)
	}
}
