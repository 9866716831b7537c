package planner

import (
	"context"
	"fmt"

	"dayboard/internal/model"
	"dayboard/internal/storage"
)

// Row categories for entries that are not plain tasks.
const (
	CategoryMilestone     = "milestone"
	CategoryMilestoneTask = "milestone_task"
)

// TaskView is one dashboard row. Plain tasks carry ListName; milestone
// derived rows carry Category instead.
type TaskView struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     model.Date `json:"due_date"`
	Completed   bool       `json:"completed"`
	ListName    string     `json:"list_name,omitempty"`
	Category    string     `json:"category,omitempty"`
}

type Bucket struct {
	Name       string     `json:"name"`
	From       model.Date `json:"from"`
	To         model.Date `json:"to"`
	Incomplete []TaskView `json:"incomplete"`
	Completed  []TaskView `json:"completed"`
}

// Dashboard is the four-bucket view for one owner and day.
type Dashboard struct {
	Day      model.Date `json:"day"`
	Today    Bucket     `json:"today"`
	Tomorrow Bucket     `json:"tomorrow"`
	Week     Bucket     `json:"week"`
	Month    Bucket     `json:"month"`
}

func taskView(t model.Task) TaskView {
	return TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Completed:   t.Completed,
		ListName:    t.ListName,
	}
}

// milestoneRows controls how milestones due in a bucket are rendered.
type milestoneRows int

const (
	asMilestones milestoneRows = iota
	asMilestoneTasks
)

type bucketSpec struct {
	name         string
	from, to     model.Date
	excludeLists []string
	excludeFrom  model.Date
	excludeTo    model.Date
	milestones   milestoneRows
}

// Dashboard builds the four buckets for owner as seen on today.
//
// Week drops tasks in the Today and Next Day lists. Month drops tasks in
// Today, Next Day and This Week and any task due inside the current week.
// Any store error fails the whole call.
func (p *Planner) Dashboard(ctx context.Context, owner int64, today model.Date) (Dashboard, error) {
	if today.IsZero() {
		return Dashboard{}, fmt.Errorf("%w: dashboard needs a day", ErrInvalidDate)
	}
	w := WindowsFor(today)
	specs := []bucketSpec{
		{name: "today", from: w.Today, to: w.Today},
		{name: "tomorrow", from: w.Tomorrow, to: w.Tomorrow},
		{
			name: "week", from: w.WeekStart, to: w.WeekEnd,
			excludeLists: []string{model.ListToday, model.ListNextDay},
		},
		{
			name: "month", from: w.MonthStart, to: w.MonthEnd,
			excludeLists: []string{model.ListToday, model.ListNextDay, model.ListThisWeek},
			excludeFrom:  w.WeekStart, excludeTo: w.WeekEnd,
			milestones: asMilestoneTasks,
		},
	}

	out := make([]Bucket, len(specs))
	for i, sp := range specs {
		b, err := p.bucket(ctx, owner, sp)
		if err != nil {
			return Dashboard{}, fmt.Errorf("%s bucket: %w", sp.name, err)
		}
		out[i] = b
	}
	return Dashboard{Day: today, Today: out[0], Tomorrow: out[1], Week: out[2], Month: out[3]}, nil
}

func (p *Planner) bucket(ctx context.Context, owner int64, sp bucketSpec) (Bucket, error) {
	b := Bucket{Name: sp.name, From: sp.from, To: sp.to, Incomplete: []TaskView{}, Completed: []TaskView{}}
	for _, done := range []bool{false, true} {
		tasks, err := p.store.TasksInRange(ctx, owner, storage.TaskRange{
			From: sp.from, To: sp.to, Completed: done,
			ExcludeLists: sp.excludeLists,
			ExcludeFrom:  sp.excludeFrom, ExcludeTo: sp.excludeTo,
		})
		if err != nil {
			return Bucket{}, err
		}
		for _, t := range tasks {
			b.add(taskView(t))
		}
	}

	ms, err := p.store.MilestonesInRange(ctx, owner, sp.from, sp.to)
	if err != nil {
		return Bucket{}, err
	}
	if sp.milestones == asMilestones {
		for _, m := range ms {
			b.add(TaskView{
				ID:        m.ID,
				Title:     fmt.Sprintf("%s (Goal: %s)", m.Title, m.GoalTitle),
				DueDate:   m.DueDate,
				Completed: m.Completed,
				Category:  CategoryMilestone,
			})
		}
		return b, nil
	}

	if len(ms) == 0 {
		return b, nil
	}
	ids := make([]int64, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	byMilestone, err := p.store.MilestoneTasks(ctx, owner, ids)
	if err != nil {
		return Bucket{}, err
	}
	for _, m := range ms {
		for _, t := range byMilestone[m.ID] {
			b.add(TaskView{
				ID:        t.ID,
				Title:     fmt.Sprintf("%s (%s)", t.Title, m.GoalTitle),
				DueDate:   m.DueDate,
				Completed: t.Completed,
				Category:  CategoryMilestoneTask,
			})
		}
	}
	return b, nil
}

func (b *Bucket) add(v TaskView) {
	if v.Completed {
		b.Completed = append(b.Completed, v)
	} else {
		b.Incomplete = append(b.Incomplete, v)
	}
}
