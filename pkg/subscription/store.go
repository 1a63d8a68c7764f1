package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for subscription persistence.
type Store interface {
	// Get retrieves a subscription by its ID.
	// Returns ErrSubscriptionNotFound if no subscription exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetByUser retrieves the vendor's subscription.
	// Returns ErrSubscriptionNotFound if the vendor never subscribed.
	GetByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Save creates or updates a subscription keyed by ID.
	Save(ctx context.Context, sub *Subscription) error

	// ListExpired returns non-terminal subscriptions whose trial (when trialing)
	// or current period ended before now.
	ListExpired(ctx context.Context, now time.Time) ([]*Subscription, error)

	// ListPastDueSince returns PAST_DUE subscriptions that entered that state before the cutoff.
	ListPastDueSince(ctx context.Context, before time.Time) ([]*Subscription, error)

	// ListTrialsEndingBetween returns trialing subscriptions whose trial ends in [from, to).
	ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]*Subscription, error)
}

// VendorStore looks up vendor records.
type VendorStore interface {
	// GetVendor returns ErrVendorNotFound for unknown users.
	GetVendor(ctx context.Context, userID uuid.UUID) (*Vendor, error)
}
