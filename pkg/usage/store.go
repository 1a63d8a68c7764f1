package usage

import (
	"context"

	"github.com/google/uuid"
)

// Store persists one ledger row per subscription. Every mutating call is a
// single atomic operation on that row; callers never read-then-write.
type Store interface {
	// Get returns ErrLedgerNotFound for a subscription that was never initialized.
	Get(ctx context.Context, subID uuid.UUID) (*Ledger, error)

	// Refresh brings the ledger to the given period. It creates the row, or
	// rolls it over with Rollover, only when no row exists or its stamp differs
	// from period; otherwise it returns the row unchanged. Concurrent calls in
	// the same period apply the grant once. A rollover keeps the row's PlanID
	// and only fills it in when empty.
	Refresh(ctx context.Context, subID uuid.UUID, period Period, grant Grant) (*Ledger, error)

	// Consume subtracts count from field when the counter covers it and returns
	// the remaining balance. Unlimited counters succeed unchanged. An
	// insufficient balance fails with *LimitExceededError and leaves the row
	// untouched. Returns ErrLedgerNotFound when the row does not exist.
	Consume(ctx context.Context, subID uuid.UUID, field Field, count int64) (Quota, error)

	// Apply runs Rollover against the existing row (or none), stamps the
	// result with period and records grant.PlanID. When the row already
	// records grant.PlanID it is returned unchanged, so a retried plan change
	// grants once. Used for plan changes.
	Apply(ctx context.Context, subID uuid.UUID, period Period, grant Grant) (*Ledger, error)

	// Zero sets every counter to 0 and clears PlanID. A missing row is not an error.
	Zero(ctx context.Context, subID uuid.UUID) error
}
