// Package alerts runs the daily subscription maintenance: resetting expired
// trials and periods, downgrading long past-due subscriptions to the free
// plan, and reminding vendors whose trial is about to end.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/usageledger/pkg/logger"
	"github.com/dmitrymomot/usageledger/pkg/notifications"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
)

// Step names, used in reports and metrics.
const (
	StepSweepExpired  = "sweep_expired"
	StepPastDue       = "past_due_downgrade"
	StepTrialReminder = "trial_reminder"
)

// Ledger is the part of the usage service the checks drive.
type Ledger interface {
	ResetExpiredSubscription(ctx context.Context, userID uuid.UUID) error
	OnPlanChange(ctx context.Context, subscriptionID uuid.UUID, newPlanID string) error
}

// Notifier dispatches a notification to a vendor.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message string, typ notifications.Type, metadata map[string]any, priority notifications.Priority) error
}

// Recorder receives per-step outcomes.
type Recorder interface {
	RecordStep(step string, processed, failed int, took time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordStep(string, int, int, time.Duration) {}

// StepResult counts what one step did.
type StepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Report summarizes one RunDailyChecks call.
type Report struct {
	StartedAt time.Time  `json:"startedAt"`
	Expired   StepResult `json:"expired"`
	Downgrade StepResult `json:"downgraded"`
	Reminders StepResult `json:"reminders"`
}

// Scheduler owns the daily checks. It holds no global state; construct one
// per process and invoke RunDailyChecks from a periodic runner.
type Scheduler struct {
	subs       subscription.Store
	ledger     Ledger
	notifier   Notifier
	freePlanID string
	grace      time.Duration
	remindIn   time.Duration
	now        func() time.Time
	logger     *slog.Logger
	recorder   Recorder
}

// NewScheduler creates the daily checks service.
func NewScheduler(subs subscription.Store, ledger Ledger, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		subs:       subs,
		ledger:     ledger,
		notifier:   notifier,
		freePlanID: "free",
		grace:      7 * 24 * time.Hour,
		remindIn:   3 * 24 * time.Hour,
		now:        time.Now,
		logger:     slog.Default(),
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunDailyChecks runs every step in order. Steps are independent: a failing
// step is reported and the next one still runs. The returned error joins the
// step-level failures (listing errors), never per-subscription ones.
func (s *Scheduler) RunDailyChecks(ctx context.Context) (Report, error) {
	report := Report{StartedAt: s.now().UTC()}
	var errs []error

	var err error
	if report.Expired, err = s.SweepExpired(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", StepSweepExpired, err))
	}
	if report.Downgrade, err = s.HandleExpiredSubscriptions(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", StepPastDue, err))
	}
	if report.Reminders, err = s.RemindTrialsEnding(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", StepTrialReminder, err))
	}

	s.logger.InfoContext(ctx, "daily checks finished",
		logger.Component("alerts"),
		slog.Int("expired", report.Expired.Processed),
		slog.Int("downgraded", report.Downgrade.Processed),
		slog.Int("reminded", report.Reminders.Processed),
		slog.Int("failed", report.Expired.Failed+report.Downgrade.Failed+report.Reminders.Failed),
	)
	return report, errors.Join(errs...)
}

// SweepExpired resets every subscription whose trial or billing period has
// ended. One failing subscription never aborts the batch.
func (s *Scheduler) SweepExpired(ctx context.Context) (StepResult, error) {
	return s.step(ctx, StepSweepExpired, func() ([]*subscription.Subscription, error) {
		return s.subs.ListExpired(ctx, s.now().UTC())
	}, func(sub *subscription.Subscription) error {
		return s.ledger.ResetExpiredSubscription(ctx, sub.UserID)
	})
}

// HandleExpiredSubscriptions downgrades subscriptions that have been past due
// for longer than the grace period to the free plan and tells the vendor.
func (s *Scheduler) HandleExpiredSubscriptions(ctx context.Context) (StepResult, error) {
	return s.step(ctx, StepPastDue, func() ([]*subscription.Subscription, error) {
		return s.subs.ListPastDueSince(ctx, s.now().UTC().Add(-s.grace))
	}, func(sub *subscription.Subscription) error {
		return s.downgrade(ctx, sub)
	})
}

func (s *Scheduler) downgrade(ctx context.Context, sub *subscription.Subscription) error {
	previousPlan := sub.PlanID
	if err := s.ledger.OnPlanChange(ctx, sub.ID, s.freePlanID); err != nil {
		return fmt.Errorf("change plan: %w", err)
	}

	// OnPlanChange saved the new plan; reload before touching status
	current, err := s.subs.Get(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("reload subscription: %w", err)
	}
	current.Status = subscription.StatusActive
	current.CurrentPeriodEnd = nil
	current.PastDueSince = nil
	current.UpdatedAt = s.now().UTC()
	if err := s.subs.Save(ctx, current); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	err = s.notifier.Notify(ctx, sub.UserID,
		"Subscription downgraded",
		fmt.Sprintf("We could not collect payment for your %s plan for more than %d days, so your account was moved to the free plan. Update your payment method to restore your limits.",
			previousPlan, int(s.grace.Hours()/24)),
		notifications.TypeWarning,
		map[string]any{
			"kind":           StepPastDue,
			"subscriptionId": sub.ID.String(),
			"previousPlanId": previousPlan,
			"planId":         s.freePlanID,
		},
		notifications.PriorityHigh,
	)
	if err != nil {
		// The downgrade itself is done; a lost notification is not a step failure
		s.logger.WarnContext(ctx, "downgrade notification failed",
			logger.UserID(sub.UserID),
			logger.SubscriptionID(sub.ID),
			logger.Error(err),
		)
	}
	return nil
}

// RemindTrialsEnding notifies vendors whose trial ends within the reminder window.
func (s *Scheduler) RemindTrialsEnding(ctx context.Context) (StepResult, error) {
	now := s.now().UTC()
	return s.step(ctx, StepTrialReminder, func() ([]*subscription.Subscription, error) {
		return s.subs.ListTrialsEndingBetween(ctx, now, now.Add(s.remindIn))
	}, func(sub *subscription.Subscription) error {
		days := max(sub.TrialDaysRemainingAt(now), 1)
		unit := "days"
		if days == 1 {
			unit = "day"
		}
		return s.notifier.Notify(ctx, sub.UserID,
			"Your trial is ending soon",
			fmt.Sprintf("Your trial ends in %d %s. Choose a plan to keep your current limits.", days, unit),
			notifications.TypeInfo,
			map[string]any{
				"kind":           StepTrialReminder,
				"subscriptionId": sub.ID.String(),
				"daysRemaining":  days,
			},
			notifications.PriorityNormal,
		)
	})
}

func (s *Scheduler) step(
	ctx context.Context,
	name string,
	list func() ([]*subscription.Subscription, error),
	each func(*subscription.Subscription) error,
) (StepResult, error) {
	started := time.Now()
	var res StepResult

	subs, err := list()
	if err != nil {
		s.recorder.RecordStep(name, 0, 0, time.Since(started))
		return res, fmt.Errorf("list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			s.recorder.RecordStep(name, res.Processed, res.Failed, time.Since(started))
			return res, err
		}
		if err := each(sub); err != nil {
			res.Failed++
			s.logger.ErrorContext(ctx, "daily check failed for subscription",
				slog.String("step", name),
				logger.UserID(sub.UserID),
				logger.SubscriptionID(sub.ID),
				logger.Error(err),
			)
			continue
		}
		res.Processed++
	}

	s.recorder.RecordStep(name, res.Processed, res.Failed, time.Since(started))
	return res, nil
}
