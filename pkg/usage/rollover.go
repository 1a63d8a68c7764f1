package usage

import "github.com/dmitrymomot/usageledger/pkg/entitlement"

// Rollover computes the ledger that replaces prev for the given period.
// The same rule serves the monthly refresh and plan changes:
//
//   - enterprise grants set every counter to Unlimited
//   - an Unlimited allowance sets the counter to Unlimited
//   - a missing or Unlimited previous counter becomes the allowance
//   - otherwise the allowance is added to what is left (unused units carry forward)
//
// prev is not modified. The returned ledger has no UpdatedAt; stores set it.
func Rollover(prev *Ledger, grant Grant, period Period) *Ledger {
	next := &Ledger{
		PlanID:   grant.PlanID,
		Counters: make(map[Field]Quota, len(entitlement.Fields)),
		Period:   period,
	}
	if prev != nil {
		next.SubscriptionID = prev.SubscriptionID
	}

	for _, f := range entitlement.Fields {
		allowance := grant.Allowance.Get(f)
		switch {
		case grant.Enterprise, allowance.IsUnlimited():
			next.Counters[f] = Unlimited
		default:
			previous, ok := Unlimited, false
			if prev != nil {
				previous, ok = prev.Counters[f]
			}
			if !ok || previous.IsUnlimited() {
				next.Counters[f] = allowance
			} else {
				next.Counters[f] = previous.Add(allowance)
			}
		}
	}
	return next
}
