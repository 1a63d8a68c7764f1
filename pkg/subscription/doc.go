// Package subscription models vendor subscriptions and the validity gate that
// guards every metered operation.
//
// # Model
//
// Each vendor owns at most one Subscription bound to a plan ID. The status is
// one of ACTIVE, TRIALING, PAST_DUE, CANCELED or EXPIRED and is only ever
// changed by billing webhooks and the expiry sweep; records are never deleted.
//
// # Validity Gate
//
// Gate.Validate answers "may this vendor use its subscription right now?"
// without looking at quotas:
//
//	gate := subscription.NewGate(store, store)
//	access, err := gate.Validate(ctx, userID)
//	switch {
//	case errors.Is(err, subscription.ErrSubscriptionNotFound):
//		// never subscribed
//	case subscription.IsGateError(err):
//		// inactive, trial or period expired
//	case err != nil:
//		// storage failure
//	case access.Override:
//		// vendor has all-features access, skip quotas entirely
//	}
//
// The all-features override on the vendor record is evaluated before any
// subscription lookup. A period that ended in the past fails the gate even for
// ACTIVE subscriptions, so stale rows not yet moved to PAST_DUE are rejected.
//
// # Billing Provider
//
// PaddleProvider verifies the Paddle-Signature header with the Paddle SDK and
// normalizes subscription and transaction events into WebhookEvent. The vendor
// is identified by the user_id key of the checkout custom data.
//
// # Storage
//
// Store and VendorStore are the persistence contracts. MemoryStore implements
// both for tests and local development; svc/store/postgres provides the
// production implementation.
package subscription
