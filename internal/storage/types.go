package storage

import (
	"errors"
	"fmt"
	"time"

	"dayboard/internal/model"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrInvalid  = errors.New("invalid input")
)

func invalid(msg string) error { return fmt.Errorf("%w: %s", ErrInvalid, msg) }

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//
// "none" disables storage; Open then returns ErrDisabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// AuditEntry records a state-changing user action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time
	ActorID  int64
	Action   string
	Target   string
	OK       bool
	Error    string
	TookMS   int64
	MetaJSON string
}

// TaskRange selects tasks whose due date lies in [From, To] (inclusive).
//
// Rows are returned newest-first when Completed is false and in insertion
// order when it is true.
type TaskRange struct {
	From, To     model.Date
	Completed    bool
	ExcludeLists []string

	// ExcludeFrom/ExcludeTo drop rows whose due date falls inside that
	// window. Both must be set to take effect.
	ExcludeFrom, ExcludeTo model.Date
}

// TaskPatch carries optional task updates; nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	DueDate     *model.Date
	Completed   *bool
	ListName    *string
}

// ListSummary describes a user list for overview pages.
type ListSummary struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Archived bool   `json:"archived"`
}

// tsLayout is fixed-width so stored timestamps compare lexicographically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"
