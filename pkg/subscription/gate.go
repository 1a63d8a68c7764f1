package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Gate decides whether a vendor's subscription may be used at all,
// independently of any quota.
type Gate struct {
	subs    Store
	vendors VendorStore
	now     func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateClock overrides the clock used for trial and period expiry.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate creates a gate. vendors may be nil when no override flag exists.
func NewGate(subs Store, vendors VendorStore, opts ...GateOption) *Gate {
	g := &Gate{
		subs:    subs,
		vendors: vendors,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate runs the gate checks in order:
//  1. vendor all-features override (before any subscription lookup)
//  2. ErrSubscriptionNotFound
//  3. ErrSubscriptionInactive for statuses other than ACTIVE and TRIALING
//  4. ErrTrialExpired for a trialing subscription past its trial end
//  5. ErrPeriodExpired for any subscription past its current period end
func (g *Gate) Validate(ctx context.Context, userID uuid.UUID) (Access, error) {
	if g.vendors != nil {
		vendor, err := g.vendors.GetVendor(ctx, userID)
		switch {
		case err == nil:
			if vendor.AllFeaturesAccess {
				return Access{Override: true}, nil
			}
		case errors.Is(err, ErrVendorNotFound):
		default:
			return Access{}, fmt.Errorf("load vendor: %w", err)
		}
	}

	sub, err := g.subs.GetByUser(ctx, userID)
	if err != nil {
		return Access{}, err
	}

	now := g.now().UTC()
	switch {
	case !sub.Status.Usable():
		return Access{}, fmt.Errorf("%w: status %s", ErrSubscriptionInactive, sub.Status)
	case sub.TrialExpiredAt(now):
		return Access{}, fmt.Errorf("%w: trial ended %s", ErrTrialExpired, sub.TrialEnd.UTC().Format(time.RFC3339))
	case sub.PeriodExpiredAt(now):
		return Access{}, fmt.Errorf("%w: period ended %s", ErrPeriodExpired, sub.CurrentPeriodEnd.UTC().Format(time.RFC3339))
	}

	return Access{Subscription: sub}, nil
}
