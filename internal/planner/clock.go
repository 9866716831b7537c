package planner

import (
	"time"

	"dayboard/internal/model"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now.
func SystemClock() Clock { return ClockFunc(time.Now) }

// FixedDay returns a clock pinned to noon of day in UTC. Handy in tests.
func FixedDay(day model.Date) Clock {
	t := day.Add(12 * time.Hour)
	return ClockFunc(func() time.Time { return t })
}
