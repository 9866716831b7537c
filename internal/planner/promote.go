package planner

import (
	"context"
	"fmt"
	"time"

	"dayboard/internal/eventbus"
	"dayboard/internal/model"
	logx "dayboard/pkg/logx"
)

// Marker names of the two guarded promotion operations.
const (
	OpCalendar  = "calendar_tasks_added"
	OpRecurring = "recurring_tasks_added"
)

// OpResult reports one guarded operation.
type OpResult struct {
	Name     string `json:"name"`
	Skipped  bool   `json:"skipped"`
	Inserted int    `json:"inserted"`
}

type PromoteResult struct {
	Day       model.Date `json:"day"`
	Calendar  OpResult   `json:"calendar"`
	Recurring OpResult   `json:"recurring"`
}

// Inserted is the total number of rows created by the run.
func (r PromoteResult) Inserted() int { return r.Calendar.Inserted + r.Recurring.Inserted }

type PromoteOptions struct {
	// Force runs both operations even when today's marker is already set.
	// Inserts stay at-most-once per (owner, title, due date).
	Force bool
	// Trigger labels the run in logs and events.
	Trigger string
}

// Promote copies today's staging rows into the bucket lists for owner:
//
//   - calendar entries dated today go to Today, tomorrow's to Next Day;
//   - daily templates go to Today (today) and Next Day (tomorrow),
//     custom_days templates to Today when today is on their interval;
//   - on Mondays, weekly and custom_weeks templates go to This Week;
//   - on the 1st, monthly and custom_months templates go to This Month.
//
// Each operation runs at most once per owner and day unless Force is set.
// Source rows are never modified.
func (p *Planner) Promote(ctx context.Context, owner int64, today model.Date, opt PromoteOptions) (PromoteResult, error) {
	if today.IsZero() {
		return PromoteResult{}, fmt.Errorf("%w: promote needs a day", ErrInvalidDate)
	}
	res := PromoteResult{
		Day:       today,
		Calendar:  OpResult{Name: OpCalendar},
		Recurring: OpResult{Name: OpRecurring},
	}
	w := WindowsFor(today)
	start := time.Now()

	var err error
	res.Calendar, err = p.guarded(ctx, owner, OpCalendar, today, opt.Force, func() (int, error) {
		return p.promoteCalendar(ctx, owner, w)
	})
	if err != nil {
		return res, err
	}
	res.Recurring, err = p.guarded(ctx, owner, OpRecurring, today, opt.Force, func() (int, error) {
		return p.promoteRecurring(ctx, owner, w)
	})
	if err != nil {
		return res, err
	}

	n := res.Inserted()
	p.log.Debug("promotion done",
		logx.Int64("owner", owner),
		logx.String("day", today.String()),
		logx.String("trigger", opt.Trigger),
		logx.Bool("calendar_skipped", res.Calendar.Skipped),
		logx.Bool("recurring_skipped", res.Recurring.Skipped),
		logx.Int("inserted", n),
		logx.Duration("took", time.Since(start)),
	)
	if n > 0 {
		p.publish(eventbus.TasksPromoted, eventbus.Promoted{
			OwnerID: owner, Day: today.String(), Inserted: n, Trigger: opt.Trigger,
		})
	}
	return res, nil
}

// guarded claims the marker and runs fn. A failed run releases the marker
// so a later call can retry today.
func (p *Planner) guarded(ctx context.Context, owner int64, name string, today model.Date, force bool, fn func() (int, error)) (OpResult, error) {
	r := OpResult{Name: name}
	claimed, err := p.store.ClaimMarker(ctx, owner, name, today)
	if err != nil {
		return r, fmt.Errorf("claim %s: %w", name, err)
	}
	if !claimed && !force {
		r.Skipped = true
		return r, nil
	}
	n, err := fn()
	r.Inserted = n
	if err != nil {
		if rerr := p.store.ResetMarker(context.WithoutCancel(ctx), owner, name); rerr != nil {
			p.log.Warn("marker release failed", logx.String("op", name), logx.Int64("owner", owner), logx.Err(rerr))
		}
		return r, fmt.Errorf("%s: %w", name, err)
	}
	return r, nil
}

func (p *Planner) promoteCalendar(ctx context.Context, owner int64, w Windows) (int, error) {
	entries, err := p.store.CalendarTasksBetween(ctx, owner, w.Today, w.Tomorrow)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range entries {
		list := model.ListToday
		if c.Date.Equal(w.Tomorrow) {
			list = model.ListNextDay
		}
		ok, err := p.store.InsertTaskIfAbsent(ctx, model.Task{
			OwnerID:  owner,
			ListName: list,
			Title:    c.Title,
			DueDate:  c.Date,
			Source:   model.SourceCalendar,
		})
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// recurringTarget is one list insert a template produces for today.
type recurringTarget struct {
	list string
	due  model.Date
}

func recurringTargets(t model.RecurringTemplate, w Windows) []recurringTarget {
	var out []recurringTarget
	if firesToday(t, w.Today) {
		out = append(out, recurringTarget{model.ListToday, w.Today})
	}
	if t.Frequency == model.FreqDaily && firesToday(t, w.Tomorrow) {
		out = append(out, recurringTarget{model.ListNextDay, w.Tomorrow})
	}
	if w.IsWeekAnchor() && firesThisWeek(t, w.WeekStart) {
		out = append(out, recurringTarget{model.ListThisWeek, w.WeekStart})
	}
	if w.IsMonthAnchor() && firesThisMonth(t, w.MonthStart) {
		out = append(out, recurringTarget{model.ListThisMonth, w.MonthStart})
	}
	return out
}

func (p *Planner) promoteRecurring(ctx context.Context, owner int64, w Windows) (int, error) {
	templates, err := p.store.RecurringTemplates(ctx, owner)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range templates {
		if !t.Frequency.Known() {
			continue
		}
		for _, tg := range recurringTargets(t, w) {
			ok, err := p.store.InsertTaskIfAbsent(ctx, model.Task{
				OwnerID:  owner,
				ListName: tg.list,
				Title:    t.Title,
				DueDate:  tg.due,
				Source:   model.SourceRecurring,
			})
			if err != nil {
				return n, err
			}
			if ok {
				n++
			}
		}
	}
	return n, nil
}
