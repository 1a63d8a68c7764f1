package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription binds one vendor to one plan.
// Subscriptions are never hard-deleted; only Status changes.
type Subscription struct {
	ID               uuid.UUID
	UserID           uuid.UUID // one subscription per vendor
	PlanID           string
	Status           Status
	ProviderSubID    string     // empty for free plans
	TrialEnd         *time.Time // set only for plans with trials
	CurrentPeriodEnd *time.Time
	PastDueSince     *time.Time // set on the first transition into PAST_DUE
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.TrialEnd = cloneTime(s.TrialEnd)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	c.PastDueSince = cloneTime(s.PastDueSince)
	return &c
}

// IsTrialing returns true if the subscription is in trial status.
func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

// TrialExpiredAt reports whether a trialing subscription's trial ended before now.
func (s *Subscription) TrialExpiredAt(now time.Time) bool {
	return s.IsTrialing() && s.TrialEnd != nil && s.TrialEnd.Before(now)
}

// PeriodExpiredAt reports whether the current billing period ended before now.
func (s *Subscription) PeriodExpiredAt(now time.Time) bool {
	return s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now)
}

// TrialDaysRemainingAt returns the number of days remaining in the trial at a given time.
// Returns 0 if not in trial or trial has expired.
func (s *Subscription) TrialDaysRemainingAt(now time.Time) int {
	if !s.IsTrialing() || s.TrialEnd == nil {
		return 0
	}

	remaining := s.TrialEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}

	// Round partial days so "ends tomorrow afternoon" reads as one day
	days := remaining.Hours() / 24
	return int(days + 0.5)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
