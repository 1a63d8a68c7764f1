// Package mongo implements usage.Store and subscription.Store on MongoDB.
//
// Ledgers live in one document per subscription keyed by the subscription id,
// with one top-level int64 field per metered counter. Consume is a single
// FindOneAndUpdate filtered on the balance; Refresh is a pipeline upsert
// filtered on the period stamp.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	colLedgers       = "usage_ledgers"
	colSubscriptions = "subscriptions"
	colVendors       = "vendors"
)

// Migrate creates the indexes the stores rely on.
func Migrate(ctx context.Context, db *mongo.Database) error {
	for col, models := range migrationIndexes() {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "trial_end", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "current_period_end", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "past_due_since", Value: 1}}},
		},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func now() time.Time {
	return time.Now().UTC()
}
