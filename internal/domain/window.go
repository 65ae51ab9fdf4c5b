package domain

import "time"

// DefaultWindowDays is the length of the trailing reporting window.
const DefaultWindowDays = 7

// Window is the reporting interval [Start, End). It is computed once per run
// and never advances, however long the run takes.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window ending at now and starting days before it.
func NewWindow(now time.Time, days int) Window {
	return Window{
		Start: now.AddDate(0, 0, -days),
		End:   now,
	}
}

// Contains reports whether t is at or after the window start.
// A timestamp exactly equal to Start is inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start)
}
