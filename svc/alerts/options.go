package alerts

import (
	"log/slog"
	"time"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithFreePlanID sets the plan past-due subscriptions fall back to. Default "free".
func WithFreePlanID(id string) Option {
	return func(s *Scheduler) {
		if id != "" {
			s.freePlanID = id
		}
	}
}

// WithPastDueGrace sets how long a subscription may stay past due before it
// is downgraded. Default 7 days.
func WithPastDueGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithTrialReminderWindow sets how far ahead trial endings are reminded. Default 3 days.
func WithTrialReminderWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.remindIn = d
		}
	}
}
