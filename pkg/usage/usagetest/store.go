// Package usagetest holds the behavioral test suite every usage.Store
// implementation must pass.
package usagetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/usage"
)

// Grant builds a non-enterprise grant for planID; fields not listed are Unlimited.
func Grant(planID string, limits map[usage.Field]usage.Quota) usage.Grant {
	ents := entitlement.Entitlements{}
	for _, f := range entitlement.Fields {
		ents[f] = usage.Unlimited
	}
	for f, q := range limits {
		ents[f] = q
	}
	return usage.Grant{PlanID: planID, Allowance: ents}
}

// RunStoreTests exercises newStore against the Store contract. newStore must
// return an isolated store (or one where fresh subscription IDs never collide).
func RunStoreTests(t *testing.T, newStore func(t *testing.T) usage.Store) {
	t.Helper()

	march := usage.Period{Year: 2026, Month: 3}
	april := usage.Period{Year: 2026, Month: 4}
	basic := Grant("basic", map[usage.Field]usage.Quota{
		entitlement.FieldMessages:     10,
		entitlement.FieldReportCreate: 5,
		entitlement.FieldAssessments:  1,
	})

	t.Run("get missing ledger", func(t *testing.T) {
		t.Parallel()

		_, err := newStore(t).Get(context.Background(), uuid.New())
		assert.ErrorIs(t, err, usage.ErrLedgerNotFound)
	})

	t.Run("refresh is idempotent within a period", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()

		first, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)
		assert.Equal(t, id, first.SubscriptionID)
		assert.Equal(t, march, first.Period)
		assert.Equal(t, usage.Quota(10), first.Counters[entitlement.FieldMessages])
		assert.Equal(t, "basic", first.PlanID)

		second, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)
		assert.Equal(t, first.Counters, second.Counters)
		assert.Equal(t, first.Period, second.Period)

		stored, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first.Counters, stored.Counters)
	})

	t.Run("refresh rolls over cumulatively", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()

		_, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)
		remaining, err := store.Consume(ctx, id, entitlement.FieldMessages, 7)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(3), remaining)

		next, err := store.Refresh(ctx, id, april, basic)
		require.NoError(t, err)
		assert.Equal(t, april, next.Period)
		assert.Equal(t, usage.Quota(13), next.Counters[entitlement.FieldMessages])
		assert.Equal(t, usage.Quota(10), next.Counters[entitlement.FieldReportCreate])
	})

	t.Run("refresh triggers when only the year differs", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()

		_, err := store.Refresh(ctx, id, usage.Period{Year: 2025, Month: 3}, basic)
		require.NoError(t, err)
		next, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(20), next.Counters[entitlement.FieldMessages])
	})

	t.Run("concurrent first touch applies grant once", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()

		_, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Refresh(ctx, id, april, basic)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		l, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, april, l.Period)
		assert.Equal(t, usage.Quota(20), l.Counters[entitlement.FieldMessages])
	})

	t.Run("consume boundary", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()
		_, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)

		remaining, err := store.Consume(ctx, id, entitlement.FieldReportCreate, 5)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(0), remaining)

		_, err = store.Consume(ctx, id, entitlement.FieldReportCreate, 1)
		var exceeded *usage.LimitExceededError
		require.ErrorAs(t, err, &exceeded)
		assert.Equal(t, entitlement.FieldReportCreate, exceeded.Field)
		assert.Equal(t, usage.Quota(0), exceeded.Limit)
		assert.Equal(t, int64(1), exceeded.Required)
		assert.ErrorIs(t, err, usage.ErrLimitExceeded)

		l, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(0), l.Counters[entitlement.FieldReportCreate])
	})

	t.Run("consume over balance leaves counter", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()
		_, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)

		_, err = store.Consume(ctx, id, entitlement.FieldMessages, 11)
		var exceeded *usage.LimitExceededError
		require.ErrorAs(t, err, &exceeded)
		assert.Equal(t, usage.Quota(10), exceeded.Limit)

		l, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(10), l.Counters[entitlement.FieldMessages])
	})

	t.Run("consume unlimited", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()
		_, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)

		for range 3 {
			remaining, err := store.Consume(ctx, id, entitlement.FieldSuppliers, 1_000)
			require.NoError(t, err)
			assert.True(t, remaining.IsUnlimited())
		}
	})

	t.Run("consume missing ledger", func(t *testing.T) {
		t.Parallel()

		_, err := newStore(t).Consume(context.Background(), uuid.New(), entitlement.FieldMessages, 1)
		assert.ErrorIs(t, err, usage.ErrLedgerNotFound)
	})

	t.Run("concurrent consume never oversells", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()
		_, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)

		var ok, exceeded atomic.Int64
		var wg sync.WaitGroup
		for range 40 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Consume(ctx, id, entitlement.FieldMessages, 1)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, usage.ErrLimitExceeded):
					exceeded.Add(1)
				default:
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(10), ok.Load())
		assert.Equal(t, int64(30), exceeded.Load())

		l, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(0), l.Counters[entitlement.FieldMessages])
	})

	t.Run("apply adds on top of existing balance", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()
		_, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)
		_, err = store.Consume(ctx, id, entitlement.FieldMessages, 4)
		require.NoError(t, err)

		pro := Grant("pro", map[usage.Field]usage.Quota{entitlement.FieldMessages: 100})
		l, err := store.Apply(ctx, id, march, pro)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(106), l.Counters[entitlement.FieldMessages])
		assert.True(t, l.Counters[entitlement.FieldReportCreate].IsUnlimited())
		assert.Equal(t, "pro", l.PlanID)

		// Apply restamps, so a refresh in the same period changes nothing
		again, err := store.Refresh(ctx, id, march, pro)
		require.NoError(t, err)
		assert.Equal(t, l.Counters, again.Counters)
	})

	t.Run("apply enterprise then downgrade", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()

		ent, err := store.Apply(ctx, id, march, usage.Grant{PlanID: "enterprise", Enterprise: true})
		require.NoError(t, err)
		for _, f := range entitlement.Fields {
			assert.True(t, ent.Counters[f].IsUnlimited(), f)
		}

		remaining, err := store.Consume(ctx, id, entitlement.FieldMessages, 50)
		require.NoError(t, err)
		assert.True(t, remaining.IsUnlimited())

		down, err := store.Apply(ctx, id, march, basic)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(10), down.Counters[entitlement.FieldMessages])
		assert.Equal(t, usage.Quota(1), down.Counters[entitlement.FieldAssessments])
	})

	t.Run("apply of the recorded plan grants once", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()
		pro := Grant("pro", map[usage.Field]usage.Quota{entitlement.FieldMessages: 100})

		_, err := store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)
		first, err := store.Apply(ctx, id, march, pro)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(110), first.Counters[entitlement.FieldMessages])

		again, err := store.Apply(ctx, id, march, pro)
		require.NoError(t, err)
		assert.Equal(t, first.Counters, again.Counters)
		assert.Equal(t, "pro", again.PlanID)

		// A first-time apply on a missing row creates it once
		other := uuid.New()
		_, err = store.Apply(ctx, other, march, pro)
		require.NoError(t, err)
		l, err := store.Apply(ctx, other, march, pro)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(100), l.Counters[entitlement.FieldMessages])
	})

	t.Run("refresh keeps the applied plan", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()
		pro := Grant("pro", map[usage.Field]usage.Quota{entitlement.FieldMessages: 100})

		_, err := store.Apply(ctx, id, march, pro)
		require.NoError(t, err)
		next, err := store.Refresh(ctx, id, april, basic)
		require.NoError(t, err)
		assert.Equal(t, april, next.Period)
		assert.Equal(t, "pro", next.PlanID)

		// The plan guard still holds after the monthly rollover
		same, err := store.Apply(ctx, id, april, pro)
		require.NoError(t, err)
		assert.Equal(t, next.Counters, same.Counters)
	})

	t.Run("zero clears the applied plan", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()

		_, err := store.Apply(ctx, id, march, basic)
		require.NoError(t, err)
		require.NoError(t, store.Zero(ctx, id))

		l, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, l.PlanID)

		regranted, err := store.Apply(ctx, id, march, basic)
		require.NoError(t, err)
		assert.Equal(t, usage.Quota(10), regranted.Counters[entitlement.FieldMessages])
		assert.Equal(t, "basic", regranted.PlanID)
	})

	t.Run("zero", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newStore(t)
		id := uuid.New()

		require.NoError(t, store.Zero(ctx, id))
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, usage.ErrLedgerNotFound)

		_, err = store.Refresh(ctx, id, march, basic)
		require.NoError(t, err)
		require.NoError(t, store.Zero(ctx, id))
		require.NoError(t, store.Zero(ctx, id))

		l, err := store.Get(ctx, id)
		require.NoError(t, err)
		for _, f := range entitlement.Fields {
			assert.Equal(t, usage.Quota(0), l.Counters[f], f)
		}
		assert.Equal(t, march, l.Period)
	})
}
