package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription.errors.subscription_not_found")
	ErrSubscriptionInactive = errors.New("subscription.errors.subscription_inactive")
	ErrTrialExpired         = errors.New("subscription.errors.trial_expired")
	ErrPeriodExpired        = errors.New("subscription.errors.period_expired")
	ErrVendorNotFound       = errors.New("subscription.errors.vendor_not_found")
	ErrInvalidSubscription  = errors.New("subscription.errors.invalid_subscription")

	// Provider-specific errors
	ErrMissingAPIKey              = errors.New("subscription.errors.missing_api_key")
	ErrMissingWebhookSecret       = errors.New("subscription.errors.missing_webhook_secret")
	ErrInvalidProviderEnvironment = errors.New("subscription.errors.invalid_provider_environment")
	ErrWebhookVerificationFailed  = errors.New("subscription.errors.webhook_verification_failed")
	ErrInvalidWebhookPayload      = errors.New("subscription.errors.invalid_webhook_payload")
	ErrMissingUserID              = errors.New("subscription.errors.missing_user_id")
)

// IsGateError reports whether err means the subscription cannot be used at all,
// as opposed to a storage or programming failure.
func IsGateError(err error) bool {
	return errors.Is(err, ErrSubscriptionInactive) ||
		errors.Is(err, ErrTrialExpired) ||
		errors.Is(err, ErrPeriodExpired)
}
