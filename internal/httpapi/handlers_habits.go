package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"dayboard/internal/auth"
	"dayboard/internal/model"
	"dayboard/internal/storage"
)

// habits backfills missing days up to today, then lists every row.
func (a *api) habits(w http.ResponseWriter, r *http.Request) {
	if _, err := a.store.BackfillHabits(r.Context(), owner(r), a.planner.Today()); err != nil {
		a.fail(w, r, err)
		return
	}
	hs, err := a.store.Habits(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(hs))
}

func (a *api) putHabit(w http.ResponseWriter, r *http.Request) {
	day, err := model.ParseDate(r.PathValue("date"))
	if err != nil || day.IsZero() {
		a.fail(w, r, badRequest("invalid date"))
		return
	}
	var in struct {
		Alcohol int `json:"alcohol"`
		Smoke   int `json:"smoke"`
		Sport   int `json:"sport"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if in.Alcohol < 0 || in.Smoke < 0 || in.Sport < 0 {
		a.fail(w, r, badRequest("counters must not be negative"))
		return
	}
	h := model.HabitDay{OwnerID: owner(r), Date: day, Alcohol: in.Alcohol, Smoke: in.Smoke, Sport: in.Sport}
	if err := a.store.PutHabit(r.Context(), h); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (a *api) secretLists(w http.ResponseWriter, r *http.Request) {
	ls, err := a.store.SecretLists(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ls))
}

func (a *api) addSecretList(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Color    string `json:"color"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Password == "" {
		a.fail(w, r, badRequest("name and password are required"))
		return
	}
	if model.IsSpecialList(in.Name) {
		a.fail(w, r, storage.ErrConflict)
		return
	}
	hash, err := a.auth.HashPassword(in.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	l, err := a.store.AddSecretList(r.Context(), model.SecretList{OwnerID: owner(r), Name: in.Name, Color: in.Color, PasswordHash: hash})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// unlockSecretList returns the list's tasks when the password matches.
func (a *api) unlockSecretList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	name := r.PathValue("name")
	l, err := a.store.SecretList(r.Context(), owner(r), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !auth.CheckPassword(l.PasswordHash, in.Password) {
		err := fmt.Errorf("%w: wrong password", errForbidden)
		a.audit(r, "secret.unlock", name, start, err)
		a.fail(w, r, err)
		return
	}
	inc, done, err := a.store.ListTasks(r.Context(), owner(r), l.Name)
	a.audit(r, "secret.unlock", name, start, err)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		model.SecretList
		Incomplete []model.Task `json:"incomplete"`
		Completed  []model.Task `json:"completed"`
	}{l, nonNil(inc), nonNil(done)})
}
