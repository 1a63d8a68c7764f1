package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/usageledger/pkg/pg"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
)

const subscriptionColumns = `id, user_id, plan_id, status, provider_sub_id, trial_end,
	current_period_end, past_due_since, created_at, updated_at`

// SubscriptionStore implements subscription.Store and subscription.VendorStore.
type SubscriptionStore struct {
	db DB
}

// NewSubscriptionStore creates a subscription store.
func NewSubscriptionStore(db DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return s.getOne(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = $1", id)
}

func (s *SubscriptionStore) GetByUser(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return s.getOne(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id = $1", userID)
}

func (s *SubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.ID == uuid.Nil || sub.UserID == uuid.Nil {
		return subscription.ErrInvalidSubscription
	}

	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now
	}

	_, err := s.db.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			provider_sub_id = EXCLUDED.provider_sub_id,
			trial_end = EXCLUDED.trial_end,
			current_period_end = EXCLUDED.current_period_end,
			past_due_since = EXCLUDED.past_due_since,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Status), sub.ProviderSubID,
		sub.TrialEnd, sub.CurrentPeriodEnd, sub.PastDueSince, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(subscription.ErrInvalidSubscription,
				fmt.Errorf("user %s already has a subscription", sub.UserID))
		}
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) ListExpired(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status NOT IN ('CANCELED', 'EXPIRED')
		  AND ((status = 'TRIALING' AND trial_end < $1) OR current_period_end < $1)
		ORDER BY created_at, id`, now)
}

func (s *SubscriptionStore) ListPastDueSince(ctx context.Context, before time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'PAST_DUE' AND past_due_since < $1
		ORDER BY created_at, id`, before)
}

func (s *SubscriptionStore) ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'TRIALING' AND trial_end >= $1 AND trial_end < $2
		ORDER BY created_at, id`, from, to)
}

func (s *SubscriptionStore) GetVendor(ctx context.Context, userID uuid.UUID) (*subscription.Vendor, error) {
	v := &subscription.Vendor{}
	err := s.db.QueryRow(ctx,
		"SELECT user_id, email, name, all_features_access FROM vendors WHERE user_id = $1", userID,
	).Scan(&v.UserID, &v.Email, &v.Name, &v.AllFeaturesAccess)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrVendorNotFound
		}
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

// SaveVendor creates or updates a vendor record.
func (s *SubscriptionStore) SaveVendor(ctx context.Context, v subscription.Vendor) error {
	_, err := s.db.Exec(ctx, `INSERT INTO vendors (user_id, email, name, all_features_access)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			all_features_access = EXCLUDED.all_features_access`,
		v.UserID, v.Email, v.Name, v.AllFeaturesAccess,
	)
	if err != nil {
		return fmt.Errorf("save vendor: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) getOne(ctx context.Context, query string, arg any) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) list(ctx context.Context, query string, args ...any) ([]*subscription.Subscription, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub    subscription.Subscription
		status string
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &status, &sub.ProviderSubID, &sub.TrialEnd,
		&sub.CurrentPeriodEnd, &sub.PastDueSince, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.Status = subscription.Status(status)
	return &sub, nil
}
