package planner

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"dayboard/internal/model"
)

// MonthlyStep selects how monthly templates advance.
type MonthlyStep int

const (
	// MonthlyFixed30 advances by interval*30 days. Dates drift against
	// real month boundaries; this is the stored behaviour users know.
	MonthlyFixed30 MonthlyStep = iota
	// MonthlyCalendar jumps to the 1st of the month interval months later.
	MonthlyCalendar
)

func ParseMonthlyStep(s string) (MonthlyStep, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "30d", "fixed":
		return MonthlyFixed30, nil
	case "calendar":
		return MonthlyCalendar, nil
	default:
		return MonthlyFixed30, fmt.Errorf("unknown monthly step %q (want 30d|calendar)", s)
	}
}

func (m MonthlyStep) String() string {
	if m == MonthlyCalendar {
		return "calendar"
	}
	return "30d"
}

// Occurrence is one firing of a recurring template.
type Occurrence struct {
	TemplateID int64      `json:"template_id"`
	Title      string     `json:"title"`
	Date       model.Date `json:"date"`
	Category   string     `json:"category"`
}

// Category returns the calendar label for a frequency, e.g. "recurring-weekly".
func Category(f model.Frequency) string { return "recurring-" + string(f) }

// Expand yields the dates in the given month on which t fires, in order.
//
// Stepping starts at the template's start date, or the 1st of the month when
// unset. Dates before the month are stepped over, never yielded. Custom
// frequencies need a start date; without one, and for unknown frequencies,
// the sequence is empty. The sequence can be ranged over any number of times.
func Expand(t model.RecurringTemplate, year int, month time.Month, mode MonthlyStep) iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		from := model.NewDate(year, month, 1)
		to := from.MonthEnd()

		st, ok := newStepper(t, from, mode)
		if !ok {
			return
		}
		cur := st.seek(from)
		for !cur.After(to) {
			if !yield(Occurrence{TemplateID: t.ID, Title: t.Title, Date: cur, Category: Category(t.Frequency)}) {
				return
			}
			cur = st.next(cur)
		}
	}
}

// stepper walks a template's firing dates from start.
type stepper struct {
	start  model.Date
	days   int // fixed step in days; 0 means calendar months
	months int
}

func newStepper(t model.RecurringTemplate, monthStart model.Date, mode MonthlyStep) (stepper, bool) {
	n := t.Step()
	start := t.StartDate
	switch t.Frequency {
	case model.FreqDaily, model.FreqWeekly, model.FreqMonthly:
		if start.IsZero() {
			start = monthStart
		}
	case model.FreqCustomDays, model.FreqCustomWeeks, model.FreqCustomMonths:
		if start.IsZero() {
			return stepper{}, false
		}
	default:
		return stepper{}, false
	}

	st := stepper{start: start}
	switch t.Frequency {
	case model.FreqDaily, model.FreqCustomDays:
		st.days = n
	case model.FreqWeekly, model.FreqCustomWeeks:
		st.days = 7 * n
	case model.FreqMonthly, model.FreqCustomMonths:
		if mode == MonthlyCalendar {
			st.months = n
		} else {
			st.days = 30 * n
		}
	}
	return st, true
}

func (s stepper) next(d model.Date) model.Date {
	if s.days > 0 {
		return d.AddDays(s.days)
	}
	// Reset to the 1st before adding months so Jan 31 never overflows into March.
	return model.NewDate(d.Year(), d.Month()+time.Month(s.months), 1)
}

// seek returns the first firing date on or after from.
func (s stepper) seek(from model.Date) model.Date {
	if !s.start.Before(from) {
		return s.start
	}
	if s.days > 0 {
		gap := from.DaysSince(s.start)
		k := (gap + s.days - 1) / s.days
		return s.start.AddDays(k * s.days)
	}
	cur := s.start
	for cur.Before(from) {
		cur = s.next(cur)
	}
	return cur
}

// firesToday reports whether a daily-class template produces a Today task.
func firesToday(t model.RecurringTemplate, today model.Date) bool {
	switch t.Frequency {
	case model.FreqDaily:
		return t.StartDate.IsZero() || !t.StartDate.After(today)
	case model.FreqCustomDays:
		if t.StartDate.IsZero() || t.StartDate.After(today) {
			return false
		}
		return today.DaysSince(t.StartDate)%t.Step() == 0
	}
	return false
}

// firesThisWeek reports whether a weekly-class template produces a This Week
// task for the week starting on weekStart.
func firesThisWeek(t model.RecurringTemplate, weekStart model.Date) bool {
	switch t.Frequency {
	case model.FreqWeekly:
		return t.StartDate.IsZero() || !t.StartDate.After(weekStart.AddDays(6))
	case model.FreqCustomWeeks:
		if t.StartDate.IsZero() {
			return false
		}
		anchor := t.StartDate.WeekStart()
		if anchor.After(weekStart) {
			return false
		}
		return (weekStart.DaysSince(anchor)/7)%t.Step() == 0
	}
	return false
}

// firesThisMonth reports whether a monthly-class template produces a This
// Month task for the month starting on monthStart.
func firesThisMonth(t model.RecurringTemplate, monthStart model.Date) bool {
	switch t.Frequency {
	case model.FreqMonthly:
		return t.StartDate.IsZero() || !t.StartDate.After(monthStart.MonthEnd())
	case model.FreqCustomMonths:
		if t.StartDate.IsZero() {
			return false
		}
		diff := monthIndex(monthStart) - monthIndex(t.StartDate)
		return diff >= 0 && diff%t.Step() == 0
	}
	return false
}

func monthIndex(d model.Date) int { return d.Year()*12 + int(d.Month()) - 1 }
