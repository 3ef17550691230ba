package conditions

import (
	"errors"
	"fmt"
	"time"
)

// TimeWindow is a recurring daily window, optionally restricted to certain
// weekdays and a date range.
type TimeWindow struct {
	// Timezone for the window (e.g. "Europe/Berlin"). Empty means UTC.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// Days are the weekdays the window opens on (1 = Monday, 7 = Sunday).
	// Empty means every day.
	Days []int `json:"days,omitempty" yaml:"days,omitempty"`

	// Start and End are "HH:MM". A window whose end is earlier than its
	// start runs overnight and belongs to the day it opened on. Equal values
	// cover the whole day.
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`

	// From and Until bound the dates the window is active on, inclusive.
	From  *time.Time `json:"from,omitempty" yaml:"from,omitempty"`
	Until *time.Time `json:"until,omitempty" yaml:"until,omitempty"`
}

// Validate checks the window definition.
func (w *TimeWindow) Validate() error {
	if _, err := parseClock(w.Start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if _, err := parseClock(w.End); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	for _, d := range w.Days {
		if d < 1 || d > 7 {
			return fmt.Errorf("day %d out of range 1-7", d)
		}
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if w.From != nil && w.Until != nil && w.Until.Before(*w.From) {
		return errors.New("until is before from")
	}
	return nil
}

// Contains reports whether t falls inside the window. A malformed window
// contains nothing.
func (w *TimeWindow) Contains(t time.Time) bool {
	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false
	}

	loc := time.UTC
	if w.Timezone != "" {
		if l, err := time.LoadLocation(w.Timezone); err == nil {
			loc = l
		}
	}
	local := t.In(loc)

	if w.From != nil && local.Before(*w.From) {
		return false
	}
	if w.Until != nil && local.After(*w.Until) {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	day := local

	switch {
	case start == end:
	case start < end:
		if minutes < start || minutes >= end {
			return false
		}
	default:
		// Overnight: the early-morning part belongs to the previous day.
		if minutes >= end && minutes < start {
			return false
		}
		if minutes < end {
			day = local.AddDate(0, 0, -1)
		}
	}

	return w.onDay(day.Weekday())
}

func (w *TimeWindow) onDay(wd time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	day := int(wd)
	if day == 0 {
		day = 7
	}
	for _, d := range w.Days {
		if d == day {
			return true
		}
	}
	return false
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
