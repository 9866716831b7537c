package planner

import (
	"context"

	"dayboard/internal/model"
	"dayboard/internal/storage"
)

// Store is the record store the planner reads and writes.
// *storage.DB implements it.
type Store interface {
	TasksInRange(ctx context.Context, owner int64, q storage.TaskRange) ([]model.Task, error)
	InsertTaskIfAbsent(ctx context.Context, t model.Task) (bool, error)

	RecurringTemplates(ctx context.Context, owner int64) ([]model.RecurringTemplate, error)
	CalendarTasksBetween(ctx context.Context, owner int64, from, to model.Date) ([]model.CalendarTask, error)

	Goals(ctx context.Context, owner int64) ([]model.Goal, error)
	Milestones(ctx context.Context, owner, goalID int64) ([]model.Milestone, error)
	MilestonesInRange(ctx context.Context, owner int64, from, to model.Date) ([]model.Milestone, error)
	MilestoneTasks(ctx context.Context, owner int64, milestoneIDs []int64) (map[int64][]model.MilestoneTask, error)

	ClaimMarker(ctx context.Context, owner int64, name string, day model.Date) (bool, error)
	ResetMarker(ctx context.Context, owner int64, name string) error
}

var _ Store = (*storage.DB)(nil)
