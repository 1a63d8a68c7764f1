// Package usage implements the usage ledger: per-subscription counters of
// remaining allowance for every metered field, refreshed once per calendar
// month and decremented atomically.
//
// # Ledger semantics
//
// A ledger row holds one counter per entitlement.Field plus the (year, month)
// stamp of its last refresh. A counter is either a non-negative number of
// remaining units or Unlimited. Counters never go negative: a decrement that
// would cross zero fails with *LimitExceededError and changes nothing.
//
// The first touch of a subscription in a new month rolls the ledger over with
// Rollover. Rollover is cumulative: unused units carry forward and the plan's
// allowance is added on top. Enterprise plans set every counter to Unlimited;
// a finite plan following an Unlimited counter starts from its allowance.
// Plan changes apply the same rule to the existing row.
//
// # Service
//
//	svc := usage.NewService(gate, subs, catalog, store,
//		usage.WithLogger(log),
//		usage.WithRecorder(metrics),
//	)
//
//	// Speculative, never fails
//	res := svc.Check(ctx, userID, entitlement.FieldMessages, 1)
//
//	// Consuming, typed errors
//	_, err := svc.Decrement(ctx, userID, entitlement.FieldMessages, 1)
//	var exceeded *usage.LimitExceededError
//	if errors.As(err, &exceeded) {
//		// render upgrade prompt with exceeded.Limit, exceeded.Required
//	}
//
// # Stores
//
// Store implementations must make Refresh idempotent within a period and
// Consume a single conditional update. MemoryStore serves tests; Postgres,
// Redis and MongoDB implementations live under svc/store.
package usage
