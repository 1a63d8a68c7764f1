package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/logger"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
)

// Validator is the subscription validity gate.
type Validator interface {
	Validate(ctx context.Context, userID uuid.UUID) (subscription.Access, error)
}

// Service meters vendor usage against plan allowances.
type Service struct {
	gate     Validator
	subs     subscription.Store
	catalog  entitlement.Catalog
	store    Store
	now      func() time.Time
	logger   *slog.Logger
	recorder Recorder
}

// NewService creates a usage service.
func NewService(gate Validator, subs subscription.Store, catalog entitlement.Catalog, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		gate:     gate,
		subs:     subs,
		catalog:  catalog,
		store:    store,
		now:      time.Now,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check reports whether count units of field fit the vendor's remaining
// allowance. It never mutates the ledger beyond the period refresh and never
// returns an error: every failure becomes CanProceed=false with a message.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, field Field, count int64) CheckResult {
	res, err := s.check(ctx, userID, field, count)
	if err != nil {
		s.logger.DebugContext(ctx, "usage check denied",
			logger.UserID(userID),
			logger.Field(string(field)),
			logger.Error(err),
		)
		s.recorder.RecordCheck(field, OutcomeError)
		return CheckResult{CanProceed: false, Remaining: 0, Limit: 0, Message: err.Error()}
	}

	switch {
	case res.Remaining.IsUnlimited():
		s.recorder.RecordCheck(field, OutcomeBypassed)
	case res.CanProceed:
		s.recorder.RecordCheck(field, OutcomeAllowed)
	default:
		s.recorder.RecordCheck(field, OutcomeDenied)
	}
	return res
}

func (s *Service) check(ctx context.Context, userID uuid.UUID, field Field, count int64) (CheckResult, error) {
	if err := validateRequest(field, count); err != nil {
		return CheckResult{}, err
	}

	target, err := s.resolve(ctx, userID)
	if err != nil {
		return CheckResult{}, err
	}
	if target.unlimited() {
		return CheckResult{CanProceed: true, Remaining: Unlimited, Limit: Unlimited}, nil
	}

	ledger, err := s.store.Refresh(ctx, target.sub.ID, s.period(), target.grant)
	if err != nil {
		return CheckResult{}, err
	}

	remaining, ok := ledger.Remaining(field)
	if !ok {
		remaining = 0
	}
	res := CheckResult{
		Remaining: remaining,
		Limit:     target.grant.Allowance.Get(field),
	}
	if remaining.Covers(count) {
		res.CanProceed = true
		return res, nil
	}
	res.Message = fmt.Sprintf("%s limit reached: %s remaining, %d requested", field, remaining, count)
	return res, nil
}

// Decrement consumes count units of field. Gate failures, missing records and
// an insufficient balance are returned as typed errors; the latter as
// *LimitExceededError.
func (s *Service) Decrement(ctx context.Context, userID uuid.UUID, field Field, count int64) (ConsumeResult, error) {
	if err := validateRequest(field, count); err != nil {
		return ConsumeResult{}, err
	}

	target, err := s.resolve(ctx, userID)
	if err != nil {
		s.recorder.RecordConsume(field, count, OutcomeError)
		return ConsumeResult{}, err
	}
	if target.unlimited() {
		s.recorder.RecordConsume(field, count, OutcomeBypassed)
		return ConsumeResult{Success: true, Remaining: Unlimited}, nil
	}

	if _, err := s.store.Refresh(ctx, target.sub.ID, s.period(), target.grant); err != nil {
		s.recorder.RecordConsume(field, count, OutcomeError)
		return ConsumeResult{}, fmt.Errorf("refresh ledger: %w", err)
	}

	remaining, err := s.store.Consume(ctx, target.sub.ID, field, count)
	if err != nil {
		if errors.Is(err, ErrLimitExceeded) {
			s.recorder.RecordConsume(field, count, OutcomeExceeded)
			s.logger.InfoContext(ctx, "usage limit exceeded",
				logger.UserID(userID),
				logger.SubscriptionID(target.sub.ID),
				logger.Field(string(field)),
				slog.Int64("required", count),
			)
			return ConsumeResult{}, err
		}
		s.recorder.RecordConsume(field, count, OutcomeError)
		return ConsumeResult{}, fmt.Errorf("consume %s: %w", field, err)
	}

	if remaining.IsUnlimited() {
		s.recorder.RecordConsume(field, count, OutcomeBypassed)
	} else {
		s.recorder.RecordConsume(field, count, OutcomeAllowed)
	}
	return ConsumeResult{Success: true, Remaining: remaining}, nil
}

// GetRemainingLimits returns the vendor's remaining and granted allowance for the current period.
func (s *Service) GetRemainingLimits(ctx context.Context, userID uuid.UUID) (*Limits, error) {
	target, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	limits := &Limits{Period: s.period(), Override: target.override}
	if target.sub != nil {
		limits.PlanID = target.sub.PlanID
	}
	if target.unlimited() {
		limits.Remaining = unlimitedCounters()
		limits.Allowance = unlimitedCounters()
		return limits, nil
	}

	ledger, err := s.store.Refresh(ctx, target.sub.ID, limits.Period, target.grant)
	if err != nil {
		return nil, fmt.Errorf("refresh ledger: %w", err)
	}
	limits.Period = ledger.Period
	limits.Remaining = ledger.Counters
	limits.Allowance = make(map[Field]Quota, len(entitlement.Fields))
	for _, f := range entitlement.Fields {
		limits.Allowance[f] = target.grant.Allowance.Get(f)
	}
	return limits, nil
}

// Refresh rolls the subscription's ledger into the current period if its stamp
// is stale and returns the current ledger. Calling it twice in the same period
// yields the same ledger.
func (s *Service) Refresh(ctx context.Context, subscriptionID uuid.UUID) (*Ledger, error) {
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	grant, err := s.grant(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return s.store.Refresh(ctx, sub.ID, s.period(), grant)
}

// OnPlanChange moves the subscription to newPlanID and adds the new plan's
// allowance on top of the existing ledger using the rollover rule. A stale
// ledger first receives the current plan's monthly grant. The plan is saved
// on the subscription only after the ledger recorded it, so a failed call can
// be retried and a repeated call grants once.
func (s *Service) OnPlanChange(ctx context.Context, subscriptionID uuid.UUID, newPlanID string) error {
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	grant, err := s.grant(ctx, newPlanID)
	if err != nil {
		return err
	}

	period := s.period()
	current, err := s.grant(ctx, sub.PlanID)
	switch {
	case err == nil:
		if _, err := s.store.Refresh(ctx, sub.ID, period, current); err != nil {
			return fmt.Errorf("refresh ledger: %w", err)
		}
	case !errors.Is(err, entitlement.ErrPlanNotFound):
		return err
	}

	if _, err := s.store.Apply(ctx, sub.ID, period, grant); err != nil {
		return fmt.Errorf("apply plan %s: %w", newPlanID, err)
	}
	if sub.PlanID == newPlanID {
		return nil
	}

	previousPlan := sub.PlanID
	sub.PlanID = newPlanID
	sub.UpdatedAt = s.now().UTC()
	if err := s.subs.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	s.recorder.RecordPlanChange(newPlanID)
	s.logger.InfoContext(ctx, "plan changed",
		logger.UserID(sub.UserID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(newPlanID),
		slog.String("previous_plan_id", previousPlan),
	)
	return nil
}

// ResetExpiredSubscription zeroes the ledger of a vendor whose trial or billing
// period has ended and moves the subscription to EXPIRED (trial) or CANCELED
// (period). Subscriptions that are not expired, or were already reset, are
// left alone.
func (s *Service) ResetExpiredSubscription(ctx context.Context, userID uuid.UUID) error {
	sub, err := s.subs.GetByUser(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	var next subscription.Status
	switch {
	case sub.TrialExpiredAt(now):
		next = subscription.StatusExpired
	case !sub.Status.Terminal() && sub.PeriodExpiredAt(now):
		next = subscription.StatusCanceled
	default:
		return nil
	}

	if err := s.store.Zero(ctx, sub.ID); err != nil {
		return fmt.Errorf("zero ledger: %w", err)
	}

	sub.Status = next
	sub.UpdatedAt = now
	if err := s.subs.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	s.recorder.RecordReset(string(next))
	s.logger.InfoContext(ctx, "expired subscription reset",
		logger.UserID(userID),
		logger.SubscriptionID(sub.ID),
		slog.String("status", string(next)),
	)
	return nil
}

type target struct {
	sub      *subscription.Subscription
	grant    Grant
	override bool
}

func (t target) unlimited() bool {
	return t.override || t.grant.Enterprise
}

// resolve runs the gate and resolves the subscription's current plan.
func (s *Service) resolve(ctx context.Context, userID uuid.UUID) (target, error) {
	access, err := s.gate.Validate(ctx, userID)
	if err != nil {
		return target{}, err
	}
	if access.Override {
		return target{override: true}, nil
	}

	grant, err := s.grant(ctx, access.Subscription.PlanID)
	if err != nil {
		return target{}, err
	}
	return target{sub: access.Subscription, grant: grant}, nil
}

// grant resolves the plan fresh on every call; plans may change at any time.
func (s *Service) grant(ctx context.Context, planID string) (Grant, error) {
	plan, err := s.catalog.Plan(ctx, planID)
	if err != nil {
		return Grant{}, fmt.Errorf("plan %s: %w", planID, err)
	}
	return GrantFor(*plan)
}

func (s *Service) period() Period {
	return PeriodOf(s.now())
}

func validateRequest(field Field, count int64) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	if count < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	return nil
}
