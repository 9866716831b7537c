package httpapi

import (
	"context"
	"net/http"

	"dayboard/internal/model"
)

func (a *api) timeline(w http.ResponseWriter, r *http.Request) {
	goals, err := a.planner.Timeline(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(goals))
}

func (a *api) addGoal(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		StartDate   model.Date `json:"start_date"`
		DueDate     model.Date `json:"due_date"`
		Color       string     `json:"color"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if !in.StartDate.IsZero() && !in.DueDate.IsZero() && in.DueDate.Before(in.StartDate) {
		a.fail(w, r, badRequest("due_date before start_date"))
		return
	}
	g, err := a.store.AddGoal(r.Context(), model.Goal{
		OwnerID: owner(r), Title: in.Title, Description: in.Description,
		StartDate: in.StartDate, DueDate: in.DueDate, Color: in.Color,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (a *api) addMilestone(w http.ResponseWriter, r *http.Request) {
	var in struct {
		GoalID  int64      `json:"goal_id"`
		Title   string     `json:"title"`
		DueDate model.Date `json:"due_date"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.store.AddMilestone(r.Context(), owner(r), model.Milestone{GoalID: in.GoalID, Title: in.Title, DueDate: in.DueDate})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *api) addMilestoneTask(w http.ResponseWriter, r *http.Request) {
	var in struct {
		MilestoneID int64  `json:"milestone_id"`
		Title       string `json:"title"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := a.store.AddMilestoneTask(r.Context(), owner(r), model.MilestoneTask{MilestoneID: in.MilestoneID, Title: in.Title})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type completion struct {
	Completed bool `json:"completed"`
}

func (a *api) toggleMilestone(w http.ResponseWriter, r *http.Request) {
	a.setCompleted(w, r, a.store.SetMilestoneCompleted)
}

func (a *api) toggleMilestoneTask(w http.ResponseWriter, r *http.Request) {
	a.setCompleted(w, r, a.store.SetMilestoneTaskCompleted)
}

func (a *api) setCompleted(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, owner, id int64, done bool) error) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in completion
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := set(r.Context(), owner(r), id, in.Completed); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
