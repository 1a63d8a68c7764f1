package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`

	// PriceToPlan maps Paddle price IDs onto catalog plan IDs.
	// Prices without an entry are used as plan IDs directly.
	PriceToPlan map[string]string `env:"PADDLE_PRICE_PLANS" envKeyValSeparator:":"`
}

// PaddleProvider implements BillingProvider for Paddle.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

// Client exposes the Paddle SDK for calls outside the webhook path.
func (p *PaddleProvider) Client() *paddle.SDK {
	return p.client
}

// ParseWebhook validates and parses incoming webhook data from Paddle.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	// The SDK verifier works on requests, so wrap the payload in one
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	event, err := parsePaddleEvent(payload)
	if err != nil {
		return nil, err
	}
	if plan, ok := p.config.PriceToPlan[event.PlanID]; ok {
		event.PlanID = plan
	}
	return event, nil
}

type paddleEnvelope struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OccurredAt string         `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

func parsePaddleEvent(payload []byte) (*WebhookEvent, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}
	if env.EventType == "" || env.Data == nil {
		return nil, fmt.Errorf("%w: missing event type or data", ErrInvalidWebhookPayload)
	}

	event := &WebhookEvent{
		ID:            env.EventID,
		Type:          mapPaddleEventType(env.EventType),
		ProviderEvent: env.EventType,
		Raw:           env.Data,
	}
	if t := parseTime(env.OccurredAt); t != nil {
		event.OccurredAt = *t
	}

	if status, ok := env.Data["status"].(string); ok && status != "" {
		event.Status = ParseStatus(status)
	}

	if customData, ok := env.Data["custom_data"].(map[string]any); ok {
		if raw, ok := customData["user_id"].(string); ok {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: user_id %q: %v", ErrInvalidWebhookPayload, raw, err)
			}
			event.UserID = id
		}
	}

	switch {
	case strings.HasPrefix(env.EventType, "subscription."):
		event.SubscriptionID, _ = env.Data["id"].(string)
		event.CurrentPeriodEnd = nestedTime(env.Data, "current_billing_period", "ends_at")
		if item := firstItem(env.Data); item != nil {
			if price, ok := item["price"].(map[string]any); ok {
				event.PlanID, _ = price["id"].(string)
			}
			event.TrialEnd = nestedTime(item, "trial_dates", "ends_at")
		}
	case strings.HasPrefix(env.EventType, "transaction."):
		// Transactions that belong to a subscription report its ID separately
		event.SubscriptionID, _ = env.Data["subscription_id"].(string)
		if event.SubscriptionID == "" {
			event.SubscriptionID, _ = env.Data["id"].(string)
		}
		// A transaction status is not a subscription status
		event.Status = ""
		event.CurrentPeriodEnd = nestedTime(env.Data, "billing_period", "ends_at")
		if item := firstItem(env.Data); item != nil {
			if priceID, ok := item["price_id"].(string); ok {
				event.PlanID = priceID
			} else if price, ok := item["price"].(map[string]any); ok {
				event.PlanID, _ = price["id"].(string)
			}
		}
	}

	if event.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: event %s", ErrMissingUserID, env.EventID)
	}
	return event, nil
}

func firstItem(data map[string]any) map[string]any {
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	item, _ := items[0].(map[string]any)
	return item
}

func nestedTime(data map[string]any, object, key string) *time.Time {
	obj, ok := data[object].(map[string]any)
	if !ok {
		return nil
	}
	s, _ := obj[key].(string)
	return parseTime(s)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// mapPaddleEventType maps Paddle event types to internal EventType.
func mapPaddleEventType(paddleEvent string) EventType {
	switch paddleEvent {
	case "transaction.completed":
		return EventCheckoutCompleted
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.activated", "subscription.trialing":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionCancelled
	case "subscription.resumed":
		return EventSubscriptionResumed
	case "subscription.past_due":
		return EventSubscriptionPastDue
	case "transaction.paid", "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		// Unmapped events pass through under their provider name
		return EventType(paddleEvent)
	}
}
