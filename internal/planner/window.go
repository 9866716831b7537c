package planner

import "dayboard/internal/model"

// Windows are the date ranges derived from one "today". All bounds are inclusive.
type Windows struct {
	Today      model.Date
	Tomorrow   model.Date
	WeekStart  model.Date // Monday
	WeekEnd    model.Date // Sunday
	MonthStart model.Date
	MonthEnd   model.Date
}

func WindowsFor(today model.Date) Windows {
	ws := today.WeekStart()
	return Windows{
		Today:      today,
		Tomorrow:   today.AddDays(1),
		WeekStart:  ws,
		WeekEnd:    ws.AddDays(6),
		MonthStart: today.MonthStart(),
		MonthEnd:   today.MonthEnd(),
	}
}

// IsWeekAnchor reports whether today is the day weekly promotion fires.
func (w Windows) IsWeekAnchor() bool { return w.Today.Equal(w.WeekStart) }

// IsMonthAnchor reports whether today is the day monthly promotion fires.
func (w Windows) IsMonthAnchor() bool { return w.Today.Equal(w.MonthStart) }
