package model

import "strings"

// Special list names. Promotion and the dashboard treat these as buckets;
// everything else is a user list.
const (
	ListToday     = "Today"
	ListNextDay   = "Next Day"
	ListThisWeek  = "This Week"
	ListThisMonth = "This Month"
)

// SpecialLists is the set of bucket-backed list names.
var SpecialLists = []string{ListToday, ListNextDay, ListThisWeek, ListThisMonth}

func IsSpecialList(name string) bool {
	for _, s := range SpecialLists {
		if s == name {
			return true
		}
	}
	return false
}

// TaskSource records how a task row came to exist.
type TaskSource string

const (
	SourceManual    TaskSource = "manual"
	SourceCalendar  TaskSource = "calendar"
	SourceRecurring TaskSource = "recurring"
)

const DefaultListColor = "#ffffff"

type Task struct {
	ID            int64      `json:"id"`
	OwnerID       int64      `json:"-"`
	ListName      string     `json:"list_name"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	DueDate       Date       `json:"due_date"`
	EstimatedMins int        `json:"estimated_time"`
	Completed     bool       `json:"completed"`
	Position      int        `json:"position"`
	Color         string     `json:"color,omitempty"`
	Archived      bool       `json:"archived"`
	Source        TaskSource `json:"source"`
}

// Frequency is a recurring template's tag.
type Frequency string

const (
	FreqDaily        Frequency = "daily"
	FreqWeekly       Frequency = "weekly"
	FreqMonthly      Frequency = "monthly"
	FreqCustomDays   Frequency = "custom_days"
	FreqCustomWeeks  Frequency = "custom_weeks"
	FreqCustomMonths Frequency = "custom_months"
)

func ParseFrequency(s string) Frequency {
	return Frequency(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether f is one of the six supported tags.
func (f Frequency) Known() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqCustomDays, FreqCustomWeeks, FreqCustomMonths:
		return true
	}
	return false
}

type RecurringTemplate struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"-"`
	Title     string    `json:"title"`
	Frequency Frequency `json:"frequency"`
	StartDate Date      `json:"start_date"`
	Interval  int       `json:"interval_value"`
}

// Step returns the template interval, substituting 1 for absent or non-positive values.
func (t RecurringTemplate) Step() int {
	if t.Interval <= 0 {
		return 1
	}
	return t.Interval
}

// CalendarTask is a one-off calendar entry not yet promoted into a list.
type CalendarTask struct {
	ID       int64  `json:"id"`
	OwnerID  int64  `json:"-"`
	Title    string `json:"title"`
	Date     Date   `json:"date"`
	Category string `json:"category"`
}

// ExecutionMarker records the last day a guarded bulk operation ran for an owner.
type ExecutionMarker struct {
	OwnerID int64
	Name    string
	LastRun Date
}
