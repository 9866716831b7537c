package planner

import (
	"context"

	"dayboard/internal/model"
)

type MilestoneView struct {
	model.Milestone
	Tasks []model.MilestoneTask `json:"tasks"`
	// Progress is the share of completed tasks, 0..100. A milestone without
	// tasks counts as 100 once completed.
	Progress int `json:"progress"`
	// Percentage places the due date between goal start and goal due, 0..100.
	Percentage int `json:"percentage"`
}

type GoalView struct {
	model.Goal
	Milestones []MilestoneView `json:"milestones"`
}

// Timeline returns owner's goals by due date, each with its milestones by
// due date and their tasks.
func (p *Planner) Timeline(ctx context.Context, owner int64) ([]GoalView, error) {
	goals, err := p.store.Goals(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		ms, err := p.store.Milestones(ctx, owner, g.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(ms))
		for i, m := range ms {
			ids[i] = m.ID
		}
		tasks, err := p.store.MilestoneTasks(ctx, owner, ids)
		if err != nil {
			return nil, err
		}
		gv := GoalView{Goal: g, Milestones: make([]MilestoneView, 0, len(ms))}
		for _, m := range ms {
			ts := tasks[m.ID]
			if ts == nil {
				ts = []model.MilestoneTask{}
			}
			gv.Milestones = append(gv.Milestones, MilestoneView{
				Milestone:  m,
				Tasks:      ts,
				Progress:   progress(m, ts),
				Percentage: position(g.StartDate, g.DueDate, m.DueDate),
			})
		}
		out = append(out, gv)
	}
	return out, nil
}

func progress(m model.Milestone, tasks []model.MilestoneTask) int {
	if len(tasks) == 0 {
		if m.Completed {
			return 100
		}
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Completed {
			done++
		}
	}
	return done * 100 / len(tasks)
}

// position is 50 when any date is missing or the goal span is empty.
func position(start, due, at model.Date) int {
	if start.IsZero() || due.IsZero() || at.IsZero() || !due.After(start) {
		return 50
	}
	pct := at.DaysSince(start) * 100 / due.DaysSince(start)
	return max(0, min(100, pct))
}
