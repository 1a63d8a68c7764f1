package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BillingProvider abstracts the payment provider. Checkout and portal flows are
// handled on the provider's hosted pages; the ledger only consumes webhooks.
type BillingProvider interface {
	// ParseWebhook validates the signature and normalizes the payload.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// WebhookEvent represents a normalized webhook event from the billing provider.
type WebhookEvent struct {
	ID               string         // Provider's event ID
	Type             EventType      // Normalized event type
	ProviderEvent    string         // Original provider event name
	SubscriptionID   string         // Provider's subscription ID
	UserID           uuid.UUID      // Vendor ID from custom data
	Status           Status         // Zero when the event carries no status
	PlanID           string         // The plan/price they subscribed to
	TrialEnd         *time.Time     // Trial end if the provider reports one
	CurrentPeriodEnd *time.Time     // End of the billing period in effect
	OccurredAt       time.Time      // When the provider emitted the event
	Raw              map[string]any // Full webhook data
}

// EventType represents the normalized billing event type.
// Each provider implementation maps their specific events to these types.
type EventType string

const (
	EventCheckoutCompleted     EventType = "checkout_completed"
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionResumed   EventType = "subscription_resumed"
	EventSubscriptionPastDue   EventType = "subscription_past_due"

	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
)
