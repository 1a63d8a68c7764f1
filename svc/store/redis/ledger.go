// Package redis implements usage.Store on Redis hashes. Every mutation is a
// Lua script so the stamp check and the counter update run atomically on the
// server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/usage"
)

const (
	keyPlan      = "plan_id"
	keyYear      = "period_year"
	keyMonth     = "period_month"
	keyUpdatedAt = "updated_at"
)

// LedgerStore keeps one hash per subscription under prefix + "usage:" + id.
type LedgerStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option configures a LedgerStore.
type Option func(*LedgerStore)

// WithKeyPrefix namespaces the ledger keys.
func WithKeyPrefix(prefix string) Option {
	return func(s *LedgerStore) {
		s.prefix = prefix
	}
}

// NewLedgerStore creates a ledger store on client.
func NewLedgerStore(client redis.UniversalClient, opts ...Option) *LedgerStore {
	s := &LedgerStore{
		client: client,
		prefix: "ledger:",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerStore) key(subID uuid.UUID) string {
	return s.prefix + "usage:" + subID.String()
}

func (s *LedgerStore) Get(ctx context.Context, subID uuid.UUID) (*usage.Ledger, error) {
	values, err := s.client.HGetAll(ctx, s.key(subID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	if len(values) == 0 {
		return nil, usage.ErrLedgerNotFound
	}
	return decodeLedger(subID, values)
}

func (s *LedgerStore) Refresh(ctx context.Context, subID uuid.UUID, period usage.Period, grant usage.Grant) (*usage.Ledger, error) {
	return s.rollover(ctx, subID, period, grant, false)
}

func (s *LedgerStore) Apply(ctx context.Context, subID uuid.UUID, period usage.Period, grant usage.Grant) (*usage.Ledger, error) {
	return s.rollover(ctx, subID, period, grant, true)
}

func (s *LedgerStore) rollover(ctx context.Context, subID uuid.UUID, period usage.Period, grant usage.Grant, planChange bool) (*usage.Ledger, error) {
	initial := usage.Rollover(nil, grant, period)

	args := make([]any, 0, 5+2*len(entitlement.Fields))
	args = append(args, period.Year, int(period.Month), s.now().UTC().UnixMilli(), boolArg(planChange), grant.PlanID)
	for _, f := range entitlement.Fields {
		args = append(args, string(f), int64(initial.Counters[f]))
	}

	raw, err := rolloverScript.Run(ctx, s.client, []string{s.key(subID)}, args...).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("rollover ledger: %w", err)
	}
	values := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		values[raw[i]] = raw[i+1]
	}
	return decodeLedger(subID, values)
}

func (s *LedgerStore) Consume(ctx context.Context, subID uuid.UUID, field usage.Field, count int64) (usage.Quota, error) {
	if !field.Valid() {
		return 0, usage.ErrInvalidField
	}
	if count < 1 {
		return 0, usage.ErrInvalidCount
	}

	res, err := consumeScript.Run(ctx, s.client, []string{s.key(subID)},
		string(field), count, s.now().UTC().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("consume %s: %w", field, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("consume %s: unexpected script reply %v", field, res)
	}

	switch res[0] {
	case 1:
		return usage.Quota(res[1]), nil
	case 0:
		return 0, &usage.LimitExceededError{Field: field, Limit: usage.Quota(res[1]), Required: count}
	default:
		return 0, usage.ErrLedgerNotFound
	}
}

func (s *LedgerStore) Zero(ctx context.Context, subID uuid.UUID) error {
	args := make([]any, 0, 1+len(entitlement.Fields))
	args = append(args, s.now().UTC().UnixMilli())
	for _, f := range entitlement.Fields {
		args = append(args, string(f))
	}
	if err := zeroScript.Run(ctx, s.client, []string{s.key(subID)}, args...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("zero ledger: %w", err)
	}
	return nil
}

func decodeLedger(subID uuid.UUID, values map[string]string) (*usage.Ledger, error) {
	l := &usage.Ledger{
		SubscriptionID: subID,
		PlanID:         values[keyPlan],
		Counters:       make(map[usage.Field]usage.Quota, len(entitlement.Fields)),
	}

	for _, f := range entitlement.Fields {
		raw, ok := values[string(f)]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.Join(usage.ErrInvalidLedger, fmt.Errorf("%s=%q: %w", f, raw, err))
		}
		l.Counters[f] = usage.Quota(n)
	}

	year, err := strconv.Atoi(values[keyYear])
	if err != nil {
		return nil, errors.Join(usage.ErrInvalidLedger, fmt.Errorf("period year: %w", err))
	}
	month, err := strconv.Atoi(values[keyMonth])
	if err != nil {
		return nil, errors.Join(usage.ErrInvalidLedger, fmt.Errorf("period month: %w", err))
	}
	l.Period = usage.Period{Year: year, Month: time.Month(month)}

	if ms, err := strconv.ParseInt(values[keyUpdatedAt], 10, 64); err == nil {
		l.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return l, l.Validate()
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
