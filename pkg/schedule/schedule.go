package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule determines when a periodic job should run.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

func (s dailySchedule) Next(from time.Time) time.Time {
	local := from.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", s.hour, s.minute, s.loc)
}

// Every runs at fixed intervals counted from the previous run.
func Every(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// DailyAt runs once a day at hour:minute UTC.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute, loc: time.UTC}
}

// DailyAtIn runs once a day at hour:minute in loc.
func DailyAtIn(hour, minute int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return dailySchedule{hour: hour, minute: minute, loc: loc}
}

// ParseDailyAt parses "HH:MM" into a UTC daily schedule.
func ParseDailyAt(s string) (Schedule, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q, want HH:MM", ErrInvalidSchedule, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour in %q", ErrInvalidSchedule, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("%w: minute in %q", ErrInvalidSchedule, s)
	}
	return DailyAt(hour, minute), nil
}
