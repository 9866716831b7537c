package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dayboard/internal/model"
	"dayboard/internal/planner"
	logx "dayboard/pkg/logx"
)

// calendarMonth serves /api/calendar/{year}/{month} as JSON, or as
// iCalendar when month carries an .ics suffix.
func (a *api) calendarMonth(w http.ResponseWriter, r *http.Request) {
	monthStr, ics := strings.CutSuffix(r.PathValue("month"), ".ics")
	year, yerr := strconv.Atoi(r.PathValue("year"))
	month, merr := strconv.Atoi(monthStr)
	if yerr != nil || merr != nil {
		a.fail(w, r, badRequest("invalid year or month"))
		return
	}
	v, err := a.planner.Month(r.Context(), owner(r), year, time.Month(month))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ics {
		writeJSON(w, http.StatusOK, v)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dayboard-%04d-%02d.ics"`, year, month))
	if err := planner.WriteICS(w, v, owner(r), time.Now()); err != nil {
		a.log.Warn("ics write failed", logx.Err(err))
	}
}

func (a *api) addCalendarTask(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title    string     `json:"title"`
		Date     model.Date `json:"date"`
		Category string     `json:"category"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	c, added, err := a.store.AddCalendarTask(r.Context(), model.CalendarTask{
		OwnerID: owner(r), Title: in.Title, Date: in.Date, Category: strings.TrimSpace(in.Category),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	writeJSON(w, status, struct {
		model.CalendarTask
		Added bool `json:"added"`
	}{c, added})
}

func (a *api) moveCalendarTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in struct {
		Date model.Date `json:"date"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.store.MoveCalendarTask(r.Context(), owner(r), id, in.Date); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) recurringTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := a.store.RecurringTemplates(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ts))
}

func (a *api) addRecurring(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title     string     `json:"title"`
		Frequency string     `json:"frequency"`
		StartDate model.Date `json:"start_date"`
		Interval  int        `json:"interval_value"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	freq := model.ParseFrequency(in.Frequency)
	if !freq.Known() {
		a.fail(w, r, badRequest("unknown frequency %q", in.Frequency))
		return
	}
	t, err := a.store.AddRecurring(r.Context(), model.RecurringTemplate{
		OwnerID: owner(r), Title: in.Title, Frequency: freq, StartDate: in.StartDate, Interval: in.Interval,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
