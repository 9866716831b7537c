package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dayboard/internal/model"
	"dayboard/internal/planner"
	"dayboard/internal/storage"
)

// dashboard promotes today's entries (a no-op after the first call of the
// day) and returns the four buckets.
func (a *api) dashboard(w http.ResponseWriter, r *http.Request) {
	today := a.planner.Today()
	if _, err := a.planner.Promote(r.Context(), owner(r), today, planner.PromoteOptions{Trigger: "dashboard"}); err != nil {
		a.fail(w, r, err)
		return
	}
	d, err := a.planner.Dashboard(r.Context(), owner(r), today)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) promote(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Force bool `json:"force"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &in); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	start := time.Now()
	res, err := a.planner.Promote(r.Context(), owner(r), a.planner.Today(), planner.PromoteOptions{Force: in.Force, Trigger: "api"})
	a.audit(r, "promote", res.Day.String(), start, err)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		planner.PromoteResult
		Inserted int `json:"inserted"`
	}{res, res.Inserted()})
}

type listView struct {
	storage.ListSummary
	Incomplete []model.Task `json:"incomplete"`
	Completed  []model.Task `json:"completed"`
}

func (a *api) loadList(r *http.Request, l storage.ListSummary) (listView, error) {
	inc, done, err := a.store.ListTasks(r.Context(), owner(r), l.Name)
	if err != nil {
		return listView{}, err
	}
	return listView{ListSummary: l, Incomplete: nonNil(inc), Completed: nonNil(done)}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// listOverview returns the owner's active user lists. Bucket lists are
// reached through the dashboard and secret lists through unlock.
func (a *api) listOverview(w http.ResponseWriter, r *http.Request) {
	lists, err := a.store.Lists(r.Context(), owner(r), false)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	secrets, err := a.store.SecretLists(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	hidden := make(map[string]bool, len(secrets))
	for _, s := range secrets {
		hidden[s.Name] = true
	}
	out := []listView{}
	for _, l := range lists {
		if model.IsSpecialList(l.Name) || hidden[l.Name] {
			continue
		}
		v, err := a.loadList(r, l)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) archivedLists(w http.ResponseWriter, r *http.Request) {
	lists, err := a.store.Lists(r.Context(), owner(r), true)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := []storage.ListSummary{}
	for _, l := range lists {
		if !model.IsSpecialList(l.Name) {
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) listDetail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	switch _, err := a.store.SecretList(r.Context(), owner(r), name); {
	case err == nil:
		a.fail(w, r, fmt.Errorf("%w: list is locked", errForbidden))
		return
	case !errors.Is(err, storage.ErrNotFound):
		a.fail(w, r, err)
		return
	}
	l, err := a.store.ListInfo(r.Context(), owner(r), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	v, err := a.loadList(r, l)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *api) createList(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		a.fail(w, r, badRequest("name is required"))
		return
	}
	if model.IsSpecialList(in.Name) {
		a.fail(w, r, storage.ErrConflict)
		return
	}
	if err := a.store.CreateList(r.Context(), owner(r), in.Name, in.Color); err != nil {
		a.fail(w, r, err)
		return
	}
	l, err := a.store.ListInfo(r.Context(), owner(r), in.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

type taskInput struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	DueDate       model.Date `json:"due_date"`
	EstimatedMins int        `json:"estimated_time"`
}

func (a *api) insertTask(w http.ResponseWriter, r *http.Request, list string, in taskInput) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		a.fail(w, r, badRequest("title is required"))
		return
	}
	t, err := a.store.AddTask(r.Context(), model.Task{
		OwnerID:       owner(r),
		ListName:      list,
		Title:         in.Title,
		Description:   in.Description,
		DueDate:       in.DueDate,
		EstimatedMins: in.EstimatedMins,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *api) addTask(w http.ResponseWriter, r *http.Request) {
	var in taskInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	list := strings.TrimSpace(r.PathValue("name"))
	if list == "" {
		a.fail(w, r, badRequest("list name is required"))
		return
	}
	a.insertTask(w, r, list, in)
}

// quickAdd puts a task into a bucket list with the bucket's due date.
func (a *api) quickAdd(w http.ResponseWriter, r *http.Request) {
	var in taskInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	win := planner.WindowsFor(a.planner.Today())
	var list string
	switch r.PathValue("bucket") {
	case "today":
		list, in.DueDate = model.ListToday, win.Today
	case "next-day":
		list, in.DueDate = model.ListNextDay, win.Tomorrow
	case "this-week":
		list, in.DueDate = model.ListThisWeek, win.WeekEnd
	case "this-month":
		list, in.DueDate = model.ListThisMonth, win.MonthEnd
	default:
		a.fail(w, r, storage.ErrNotFound)
		return
	}
	a.insertTask(w, r, list, in)
}

func (a *api) archiveList(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.SetListArchived(r.Context(), owner(r), r.PathValue("name"), archived); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *api) listColor(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Color string `json:"color"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.store.SetListColor(r.Context(), owner(r), r.PathValue("name"), in.Color); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in struct {
		Title       *string     `json:"title"`
		Description *string     `json:"description"`
		DueDate     *model.Date `json:"due_date"`
		Completed   *bool       `json:"completed"`
		ListName    *string     `json:"list_name"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		a.fail(w, r, badRequest("title must not be empty"))
		return
	}
	if in.ListName != nil && strings.TrimSpace(*in.ListName) == "" {
		a.fail(w, r, badRequest("list name must not be empty"))
		return
	}
	patch := storage.TaskPatch{
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Completed:   in.Completed,
		ListName:    in.ListName,
	}
	if err := a.store.UpdateTask(r.Context(), owner(r), id, patch); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := a.store.GetTask(r.Context(), owner(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.store.DeleteTask(r.Context(), owner(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) reorderTasks(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IDs []int64 `json:"ids"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.store.ReorderTasks(r.Context(), owner(r), in.IDs); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
