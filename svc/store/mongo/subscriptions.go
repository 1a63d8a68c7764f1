package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/usageledger/pkg/subscription"
)

type subscriptionModel struct {
	ID               string     `bson:"_id"`
	UserID           string     `bson:"user_id"`
	PlanID           string     `bson:"plan_id"`
	Status           string     `bson:"status"`
	ProviderSubID    string     `bson:"provider_sub_id,omitempty"`
	TrialEnd         *time.Time `bson:"trial_end,omitempty"`
	CurrentPeriodEnd *time.Time `bson:"current_period_end,omitempty"`
	PastDueSince     *time.Time `bson:"past_due_since,omitempty"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

type vendorModel struct {
	UserID            string `bson:"_id"`
	Email             string `bson:"email"`
	Name              string `bson:"name"`
	AllFeaturesAccess bool   `bson:"all_features_access"`
}

// SubscriptionStore implements subscription.Store and subscription.VendorStore.
type SubscriptionStore struct {
	subs    *mongo.Collection
	vendors *mongo.Collection
}

// NewSubscriptionStore creates a subscription store in db. Run Migrate first
// so the one-subscription-per-user index exists.
func NewSubscriptionStore(db *mongo.Database) *SubscriptionStore {
	return &SubscriptionStore{
		subs:    db.Collection(colSubscriptions),
		vendors: db.Collection(colVendors),
	}
}

func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *SubscriptionStore) GetByUser(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return s.findOne(ctx, bson.M{"user_id": userID.String()})
}

func (s *SubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.ID == uuid.Nil || sub.UserID == uuid.Nil {
		return subscription.ErrInvalidSubscription
	}

	t := now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = t
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = t
	}

	m := toSubscriptionModel(sub)
	_, err := s.subs.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Join(subscription.ErrInvalidSubscription,
				fmt.Errorf("user %s already has a subscription", sub.UserID))
		}
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) ListExpired(ctx context.Context, at time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, bson.M{
		"status": bson.M{"$nin": bson.A{string(subscription.StatusCanceled), string(subscription.StatusExpired)}},
		"$or": bson.A{
			bson.M{"status": string(subscription.StatusTrialing), "trial_end": bson.M{"$lt": at}},
			bson.M{"current_period_end": bson.M{"$lt": at}},
		},
	})
}

func (s *SubscriptionStore) ListPastDueSince(ctx context.Context, before time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, bson.M{
		"status":         string(subscription.StatusPastDue),
		"past_due_since": bson.M{"$lt": before},
	})
}

func (s *SubscriptionStore) ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, bson.M{
		"status":    string(subscription.StatusTrialing),
		"trial_end": bson.M{"$gte": from, "$lt": to},
	})
}

func (s *SubscriptionStore) GetVendor(ctx context.Context, userID uuid.UUID) (*subscription.Vendor, error) {
	var m vendorModel
	if err := s.vendors.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrVendorNotFound
		}
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	return &subscription.Vendor{
		UserID:            userID,
		Email:             m.Email,
		Name:              m.Name,
		AllFeaturesAccess: m.AllFeaturesAccess,
	}, nil
}

// SaveVendor creates or updates a vendor record.
func (s *SubscriptionStore) SaveVendor(ctx context.Context, v subscription.Vendor) error {
	m := vendorModel{
		UserID:            v.UserID.String(),
		Email:             v.Email,
		Name:              v.Name,
		AllFeaturesAccess: v.AllFeaturesAccess,
	}
	if _, err := s.vendors.ReplaceOne(ctx, bson.M{"_id": m.UserID}, m, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("save vendor: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) findOne(ctx context.Context, filter bson.M) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := s.subs.FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *SubscriptionStore) list(ctx context.Context, filter bson.M) ([]*subscription.Subscription, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.subs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	var models []subscriptionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	out := make([]*subscription.Subscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func toSubscriptionModel(sub *subscription.Subscription) subscriptionModel {
	return subscriptionModel{
		ID:               sub.ID.String(),
		UserID:           sub.UserID.String(),
		PlanID:           sub.PlanID,
		Status:           string(sub.Status),
		ProviderSubID:    sub.ProviderSubID,
		TrialEnd:         utc(sub.TrialEnd),
		CurrentPeriodEnd: utc(sub.CurrentPeriodEnd),
		PastDueSince:     utc(sub.PastDueSince),
		CreatedAt:        sub.CreatedAt.UTC(),
		UpdatedAt:        sub.UpdatedAt.UTC(),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("subscription id %q: %w", m.ID, err)
	}
	userID, err := uuid.Parse(m.UserID)
	if err != nil {
		return nil, fmt.Errorf("subscription user id %q: %w", m.UserID, err)
	}
	return &subscription.Subscription{
		ID:               id,
		UserID:           userID,
		PlanID:           m.PlanID,
		Status:           subscription.Status(m.Status),
		ProviderSubID:    m.ProviderSubID,
		TrialEnd:         utc(m.TrialEnd),
		CurrentPeriodEnd: utc(m.CurrentPeriodEnd),
		PastDueSince:     utc(m.PastDueSince),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
