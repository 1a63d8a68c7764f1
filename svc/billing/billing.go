// Package billing turns billing provider webhooks into subscription state
// and ledger grants.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/usageledger/pkg/logger"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
)

var ErrMissingPlanID = errors.New("billing.errors.missing_plan_id")

// PlanChanger applies a plan to a subscription's ledger.
type PlanChanger interface {
	OnPlanChange(ctx context.Context, subscriptionID uuid.UUID, newPlanID string) error
}

// Service processes billing webhooks.
type Service struct {
	provider subscription.BillingProvider
	subs     subscription.Store
	ledger   PlanChanger
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates the webhook processor.
func NewService(provider subscription.BillingProvider, subs subscription.Store, ledger PlanChanger, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		subs:     subs,
		ledger:   ledger,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleWebhook verifies and applies one webhook delivery. Redelivery of the
// same event is harmless: the ledger grants a plan once, and a delivery that
// failed halfway is completed by the next one.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}

	log := s.logger.With(
		logger.UserID(event.UserID),
		logger.EventType(string(event.Type)),
		slog.String("event_id", event.ID),
	)

	switch event.Type {
	case subscription.EventSubscriptionCreated, subscription.EventSubscriptionUpdated:
		err = s.sync(ctx, event, "")
	case subscription.EventCheckoutCompleted:
		err = s.sync(ctx, event, subscription.StatusActive)
	case subscription.EventSubscriptionCancelled:
		err = s.transition(ctx, event, subscription.StatusCanceled)
	case subscription.EventSubscriptionResumed, subscription.EventPaymentSucceeded:
		err = s.transition(ctx, event, subscription.StatusActive)
	case subscription.EventSubscriptionPastDue, subscription.EventPaymentFailed:
		err = s.transition(ctx, event, subscription.StatusPastDue)
	default:
		log.DebugContext(ctx, "ignoring webhook event", slog.String("provider_event", event.ProviderEvent))
		return nil
	}
	if err != nil {
		log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
		return err
	}

	log.InfoContext(ctx, "webhook processed")
	return nil
}

// sync creates or updates the vendor's subscription from the event and
// hands the event's plan to the ledger. fallback is used when the event
// carries no status.
func (s *Service) sync(ctx context.Context, event *subscription.WebhookEvent, fallback subscription.Status) error {
	now := s.now().UTC()

	sub, err := s.subs.GetByUser(ctx, event.UserID)
	isNew := errors.Is(err, subscription.ErrSubscriptionNotFound)
	switch {
	case isNew:
		if event.PlanID == "" {
			return fmt.Errorf("%w: new subscription for %s", ErrMissingPlanID, event.UserID)
		}
		sub = &subscription.Subscription{
			ID:        uuid.New(),
			UserID:    event.UserID,
			PlanID:    event.PlanID,
			Status:    subscription.StatusActive,
			CreatedAt: now,
		}
	case err != nil:
		return fmt.Errorf("get subscription: %w", err)
	}

	status := event.Status
	if status == "" {
		status = fallback
	}
	if status != "" {
		setStatus(sub, status, now)
	}
	if event.SubscriptionID != "" {
		sub.ProviderSubID = event.SubscriptionID
	}
	if event.TrialEnd != nil {
		sub.TrialEnd = event.TrialEnd
	}
	if event.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = event.CurrentPeriodEnd
	}
	sub.UpdatedAt = now

	if err := s.subs.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	if event.PlanID == "" {
		return nil
	}
	return s.ledger.OnPlanChange(ctx, sub.ID, event.PlanID)
}

// transition moves an existing subscription to status. Events for vendors
// without a subscription are dropped.
func (s *Service) transition(ctx context.Context, event *subscription.WebhookEvent, status subscription.Status) error {
	sub, err := s.subs.GetByUser(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			s.logger.WarnContext(ctx, "webhook for unknown subscription",
				logger.UserID(event.UserID),
				logger.EventType(string(event.Type)),
			)
			return nil
		}
		return fmt.Errorf("get subscription: %w", err)
	}

	now := s.now().UTC()
	setStatus(sub, status, now)
	if event.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = event.CurrentPeriodEnd
	}
	sub.UpdatedAt = now

	if err := s.subs.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// setStatus keeps PastDueSince at the first failure and clears it once the
// subscription leaves PAST_DUE.
func setStatus(sub *subscription.Subscription, status subscription.Status, now time.Time) {
	if status == subscription.StatusPastDue {
		if sub.PastDueSince == nil {
			sub.PastDueSince = &now
		}
	} else {
		sub.PastDueSince = nil
	}
	sub.Status = status
}
