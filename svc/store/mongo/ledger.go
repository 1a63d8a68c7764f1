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

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/usage"
)

// LedgerStore implements usage.Store on the usage_ledgers collection.
type LedgerStore struct {
	col *mongo.Collection
}

// NewLedgerStore creates a ledger store in db.
func NewLedgerStore(db *mongo.Database) *LedgerStore {
	return &LedgerStore{col: db.Collection(colLedgers)}
}

func (s *LedgerStore) Get(ctx context.Context, subID uuid.UUID) (*usage.Ledger, error) {
	var doc bson.M
	if err := s.col.FindOne(ctx, bson.M{"_id": subID.String()}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, usage.ErrLedgerNotFound
		}
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return decodeLedger(subID, doc)
}

// Refresh only matches a document whose stamp differs. When the stamp is
// already current the upsert collides on _id, which means another writer
// got there first, and the stored ledger is returned as is.
func (s *LedgerStore) Refresh(ctx context.Context, subID uuid.UUID, period usage.Period, grant usage.Grant) (*usage.Ledger, error) {
	filter := bson.M{
		"_id": subID.String(),
		"$or": bson.A{
			bson.M{"period_year": bson.M{"$ne": period.Year}},
			bson.M{"period_month": bson.M{"$ne": int(period.Month)}},
		},
	}
	l, err := s.upsert(ctx, subID, filter, rolloverPipeline(period, grant, false))
	if err == nil {
		return l, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return s.Get(ctx, subID)
	}
	return nil, fmt.Errorf("refresh ledger: %w", err)
}

// Apply only matches a document recording a different plan. A duplicate key
// means the document exists with this plan already, or another writer
// inserted it first; one retry tells the two apart.
func (s *LedgerStore) Apply(ctx context.Context, subID uuid.UUID, period usage.Period, grant usage.Grant) (*usage.Ledger, error) {
	filter := bson.M{"_id": subID.String()}
	if grant.PlanID != "" {
		filter["plan_id"] = bson.M{"$ne": grant.PlanID}
	}
	pipeline := rolloverPipeline(period, grant, true)

	l, err := s.upsert(ctx, subID, filter, pipeline)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		l, err = s.upsert(ctx, subID, filter, pipeline)
		if err != nil && mongo.IsDuplicateKeyError(err) {
			return s.Get(ctx, subID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("apply grant: %w", err)
	}
	return l, nil
}

func (s *LedgerStore) upsert(ctx context.Context, subID uuid.UUID, filter bson.M, pipeline mongo.Pipeline) (*usage.Ledger, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc bson.M
	err := s.col.FindOneAndUpdate(ctx, filter, pipeline, opts).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return decodeLedger(subID, doc)
}

// rolloverPipeline expresses the rollover rule per counter: -1 grant wins,
// a missing or -1 counter takes the grant, anything else adds it. A plan
// change replaces plan_id; a refresh only fills it in when empty.
func rolloverPipeline(period usage.Period, grant usage.Grant, planChange bool) mongo.Pipeline {
	initial := usage.Rollover(nil, grant, period)

	set := bson.D{}
	for _, f := range entitlement.Fields {
		g := int64(initial.Counters[f])
		if g == int64(usage.Unlimited) {
			set = append(set, bson.E{Key: string(f), Value: bson.M{"$literal": int64(-1)}})
			continue
		}
		ref := "$" + string(f)
		set = append(set, bson.E{Key: string(f), Value: bson.M{
			"$cond": bson.M{
				"if":   bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{ref, int64(-1)}}, int64(-1)}},
				"then": bson.M{"$literal": g},
				"else": bson.M{"$add": bson.A{ref, g}},
			},
		}})
	}
	var plan any = bson.M{"$literal": grant.PlanID}
	if !planChange {
		plan = bson.M{"$cond": bson.M{
			"if":   bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$plan_id", ""}}, ""}},
			"then": bson.M{"$literal": grant.PlanID},
			"else": "$plan_id",
		}}
	}
	set = append(set,
		bson.E{Key: "plan_id", Value: plan},
		bson.E{Key: "period_year", Value: period.Year},
		bson.E{Key: "period_month", Value: int(period.Month)},
		bson.E{Key: "updated_at", Value: "$$NOW"},
	)
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func (s *LedgerStore) Consume(ctx context.Context, subID uuid.UUID, field usage.Field, count int64) (usage.Quota, error) {
	if !field.Valid() {
		return 0, usage.ErrInvalidField
	}
	if count < 1 {
		return 0, usage.ErrInvalidCount
	}

	key := string(field)
	filter := bson.M{"_id": subID.String(), key: bson.M{"$gte": count}}
	update := bson.M{
		"$inc": bson.M{key: -count},
		"$set": bson.M{"updated_at": now()},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{key: 1})

	var doc bson.M
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		n, err := toInt64(doc[key])
		if err != nil {
			return 0, errors.Join(usage.ErrInvalidLedger, err)
		}
		return usage.Quota(n), nil
	}
	if !isNoDocuments(err) {
		return 0, fmt.Errorf("consume %s: %w", field, err)
	}

	// Not consumed: missing ledger, unlimited counter or not enough balance
	l, err := s.Get(ctx, subID)
	if err != nil {
		return 0, err
	}
	current, _ := l.Remaining(field)
	if current.IsUnlimited() {
		return usage.Unlimited, nil
	}
	return 0, &usage.LimitExceededError{Field: field, Limit: current, Required: count}
}

func (s *LedgerStore) Zero(ctx context.Context, subID uuid.UUID) error {
	set := bson.M{"plan_id": "", "updated_at": now()}
	for _, f := range entitlement.Fields {
		set[string(f)] = int64(0)
	}
	if _, err := s.col.UpdateOne(ctx, bson.M{"_id": subID.String()}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("zero ledger: %w", err)
	}
	return nil
}

func decodeLedger(subID uuid.UUID, doc bson.M) (*usage.Ledger, error) {
	l := &usage.Ledger{
		SubscriptionID: subID,
		Counters:       make(map[usage.Field]usage.Quota, len(entitlement.Fields)),
	}
	l.PlanID, _ = doc["plan_id"].(string)
	for _, f := range entitlement.Fields {
		v, ok := doc[string(f)]
		if !ok {
			continue
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, errors.Join(usage.ErrInvalidLedger, fmt.Errorf("%s: %w", f, err))
		}
		l.Counters[f] = usage.Quota(n)
	}

	year, err := toInt64(doc["period_year"])
	if err != nil {
		return nil, errors.Join(usage.ErrInvalidLedger, fmt.Errorf("period_year: %w", err))
	}
	month, err := toInt64(doc["period_month"])
	if err != nil {
		return nil, errors.Join(usage.ErrInvalidLedger, fmt.Errorf("period_month: %w", err))
	}
	l.Period = usage.Period{Year: int(year), Month: time.Month(month)}

	if dt, ok := doc["updated_at"].(bson.DateTime); ok {
		l.UpdatedAt = dt.Time().UTC()
	}
	return l, l.Validate()
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected counter type %T", v)
	}
}
