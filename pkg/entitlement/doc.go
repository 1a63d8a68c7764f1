// Package entitlement turns raw plan records into the per-cycle allowance of
// every metered field.
//
// A plan stores two top-level limits (suppliers, assessments) and a features
// blob with the remaining monthly allowances. The blob may arrive as a
// serialized JSON document straight from the database or as a decoded map from
// a YAML catalog; Resolve accepts both:
//
//	ents, err := entitlement.Resolve(plan)
//	if err != nil {
//	    return err
//	}
//	if ents.Get(entitlement.FieldMessages).IsUnlimited() {
//	    // no cap on messages for this plan
//	}
//
// A missing field is Unlimited, an explicit 0 is "no allowance". Enterprise
// plans are Unlimited on every field regardless of what the record stores.
//
// Resolution is pure and never cached: callers resolve again whenever the plan
// may have changed.
package entitlement
