package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dayboard/internal/model"
)

// CalendarEntry is a stored calendar task or a recurring expansion.
// Expansions have ID 0 and Recurring set.
type CalendarEntry struct {
	ID         int64      `json:"id,omitempty"`
	TemplateID int64      `json:"template_id,omitempty"`
	Title      string     `json:"title"`
	Date       model.Date `json:"date"`
	Category   string     `json:"category"`
	Recurring  bool       `json:"recurring"`
}

type MonthView struct {
	Year    int             `json:"year"`
	Month   time.Month      `json:"month"`
	Weeks   [][7]int        `json:"weeks"`
	Entries []CalendarEntry `json:"entries"`
}

// MonthGrid lays a month out in Monday-first weeks; days outside the month are 0.
func MonthGrid(year int, month time.Month) [][7]int {
	first := model.NewDate(year, month, 1)
	last := first.MonthEnd().Day()
	col := (int(first.Weekday()) + 6) % 7

	var weeks [][7]int
	var wk [7]int
	for day := 1; day <= last; day++ {
		wk[col] = day
		col++
		if col == 7 {
			weeks = append(weeks, wk)
			wk, col = [7]int{}, 0
		}
	}
	if col > 0 {
		weeks = append(weeks, wk)
	}
	return weeks
}

func validMonth(year int, month time.Month) error {
	if month < time.January || month > time.December || year < 1 || year > 9999 {
		return fmt.Errorf("%w: %04d-%02d", ErrInvalidDate, year, int(month))
	}
	return nil
}

// Month returns the calendar of one month: stored entries plus the
// expansion of every recurring template, ordered by date.
func (p *Planner) Month(ctx context.Context, owner int64, year int, month time.Month) (MonthView, error) {
	if err := validMonth(year, month); err != nil {
		return MonthView{}, err
	}
	from := model.NewDate(year, month, 1)
	stored, err := p.store.CalendarTasksBetween(ctx, owner, from, from.MonthEnd())
	if err != nil {
		return MonthView{}, err
	}
	templates, err := p.store.RecurringTemplates(ctx, owner)
	if err != nil {
		return MonthView{}, err
	}

	v := MonthView{Year: year, Month: month, Weeks: MonthGrid(year, month), Entries: make([]CalendarEntry, 0, len(stored))}
	for _, c := range stored {
		v.Entries = append(v.Entries, CalendarEntry{ID: c.ID, Title: c.Title, Date: c.Date, Category: c.Category})
	}
	mode := p.MonthlyStep()
	for _, t := range templates {
		for occ := range Expand(t, year, month, mode) {
			v.Entries = append(v.Entries, CalendarEntry{
				TemplateID: occ.TemplateID,
				Title:      occ.Title,
				Date:       occ.Date,
				Category:   occ.Category,
				Recurring:  true,
			})
		}
	}
	sort.SliceStable(v.Entries, func(i, j int) bool { return v.Entries[i].Date.Before(v.Entries[j].Date) })
	return v, nil
}
