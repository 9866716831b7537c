package storage

import (
	"context"
	"database/sql"
	"strings"

	"dayboard/internal/model"
)

func (s *DB) AddGoal(ctx context.Context, g model.Goal) (model.Goal, error) {
	if s == nil || s.db == nil {
		return model.Goal{}, ErrDisabled
	}
	g.Title = strings.TrimSpace(g.Title)
	if g.Title == "" {
		return model.Goal{}, invalid("goal title is required")
	}
	if g.Color == "" {
		g.Color = model.DefaultGoalColor
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO goals(owner_id, title, description, start_date, due_date, color) VALUES(?,?,?,?,?,?)`,
		g.OwnerID, g.Title, g.Description, g.StartDate, g.DueDate, g.Color)
	if err != nil {
		return model.Goal{}, err
	}
	g.ID, err = res.LastInsertId()
	s.afterWrite()
	return g, err
}

// Goals returns the owner's goals ordered by due date.
func (s *DB) Goals(ctx context.Context, owner int64) ([]model.Goal, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, description, start_date, due_date, color
		 FROM goals WHERE owner_id = ? ORDER BY due_date ASC, id ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Goal
	for rows.Next() {
		var g model.Goal
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Title, &g.Description, &g.StartDate, &g.DueDate, &g.Color); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AddMilestone inserts a milestone under one of owner's goals.
func (s *DB) AddMilestone(ctx context.Context, owner int64, m model.Milestone) (model.Milestone, error) {
	if s == nil || s.db == nil {
		return model.Milestone{}, ErrDisabled
	}
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return model.Milestone{}, invalid("milestone title is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO milestones(goal_id, title, due_date, completed)
		 SELECT id, ?, ?, 0 FROM goals WHERE id = ? AND owner_id = ?`,
		m.Title, m.DueDate, m.GoalID, owner)
	if err != nil {
		return model.Milestone{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Milestone{}, ErrNotFound
	}
	m.ID, err = res.LastInsertId()
	s.afterWrite()
	return m, err
}

const milestoneColumns = `m.id, m.goal_id, m.title, m.due_date, m.completed, g.title`

func collectMilestones(rows *sql.Rows) ([]model.Milestone, error) {
	defer rows.Close()
	var out []model.Milestone
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(&m.ID, &m.GoalID, &m.Title, &m.DueDate, &m.Completed, &m.GoalTitle); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Milestones returns the milestones of one goal ordered by due date.
func (s *DB) Milestones(ctx context.Context, owner, goalID int64) ([]model.Milestone, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+milestoneColumns+` FROM milestones m JOIN goals g ON g.id = m.goal_id
		 WHERE g.owner_id = ? AND m.goal_id = ? ORDER BY m.due_date ASC, m.id ASC`, owner, goalID)
	if err != nil {
		return nil, err
	}
	return collectMilestones(rows)
}

// MilestonesInRange returns owner's milestones due in [from, to] (inclusive).
func (s *DB) MilestonesInRange(ctx context.Context, owner int64, from, to model.Date) ([]model.Milestone, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+milestoneColumns+` FROM milestones m JOIN goals g ON g.id = m.goal_id
		 WHERE g.owner_id = ? AND m.due_date BETWEEN ? AND ? ORDER BY m.due_date ASC, m.id ASC`, owner, from, to)
	if err != nil {
		return nil, err
	}
	return collectMilestones(rows)
}

func (s *DB) SetMilestoneCompleted(ctx context.Context, owner, id int64, done bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return affected(s.db.ExecContext(ctx,
		`UPDATE milestones SET completed = ?
		 WHERE id = ? AND goal_id IN (SELECT id FROM goals WHERE owner_id = ?)`, done, id, owner))
}

func (s *DB) AddMilestoneTask(ctx context.Context, owner int64, t model.MilestoneTask) (model.MilestoneTask, error) {
	if s == nil || s.db == nil {
		return model.MilestoneTask{}, ErrDisabled
	}
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return model.MilestoneTask{}, invalid("task title is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO milestone_tasks(milestone_id, title, completed)
		 SELECT m.id, ?, 0 FROM milestones m JOIN goals g ON g.id = m.goal_id
		 WHERE m.id = ? AND g.owner_id = ?`, t.Title, t.MilestoneID, owner)
	if err != nil {
		return model.MilestoneTask{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.MilestoneTask{}, ErrNotFound
	}
	t.ID, err = res.LastInsertId()
	s.afterWrite()
	return t, err
}

// MilestoneTasks returns the tasks of the given milestones keyed by
// milestone id, each slice in insertion order.
func (s *DB) MilestoneTasks(ctx context.Context, owner int64, milestoneIDs []int64) (map[int64][]model.MilestoneTask, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	out := make(map[int64][]model.MilestoneTask, len(milestoneIDs))
	if len(milestoneIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(milestoneIDs)+1)
	args = append(args, owner)
	for _, id := range milestoneIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.milestone_id, t.title, t.completed
		 FROM milestone_tasks t
		 JOIN milestones m ON m.id = t.milestone_id
		 JOIN goals g ON g.id = m.goal_id
		 WHERE g.owner_id = ? AND t.milestone_id IN (`+placeholders(len(milestoneIDs))+`)
		 ORDER BY t.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t model.MilestoneTask
		if err := rows.Scan(&t.ID, &t.MilestoneID, &t.Title, &t.Completed); err != nil {
			return nil, err
		}
		out[t.MilestoneID] = append(out[t.MilestoneID], t)
	}
	return out, rows.Err()
}

func (s *DB) SetMilestoneTaskCompleted(ctx context.Context, owner, id int64, done bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return affected(s.db.ExecContext(ctx,
		`UPDATE milestone_tasks SET completed = ?
		 WHERE id = ? AND milestone_id IN (
		   SELECT m.id FROM milestones m JOIN goals g ON g.id = m.goal_id WHERE g.owner_id = ?
		 )`, done, id, owner))
}
