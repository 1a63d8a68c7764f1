package usage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
)

type (
	Quota = entitlement.Quota
	Field = entitlement.Field
)

// Unlimited marks a counter without an upper bound.
const Unlimited = entitlement.Unlimited

// Period is a billing cycle: a calendar month in UTC.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// PeriodOf returns the billing period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following period.
func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

// IsZero reports whether p was never set.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Ledger is the remaining allowance of every metered field for one subscription.
// The period stamp is the only staleness indicator. PlanID is the plan whose
// grant was applied last; Apply with the same plan is a no-op.
type Ledger struct {
	SubscriptionID uuid.UUID       `json:"subscriptionId"`
	PlanID         string          `json:"planId,omitempty"`
	Counters       map[Field]Quota `json:"counters"`
	Period         Period          `json:"period"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Remaining returns the counter for f. The second value is false when the
// ledger has no such counter.
func (l *Ledger) Remaining(f Field) (Quota, bool) {
	q, ok := l.Counters[f]
	return q, ok
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	c := *l
	c.Counters = make(map[Field]Quota, len(l.Counters))
	for f, q := range l.Counters {
		c.Counters[f] = q
	}
	return &c
}

// Validate rejects negative finite counters and unknown fields.
func (l *Ledger) Validate() error {
	for f, q := range l.Counters {
		if !f.Valid() {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidLedger, f)
		}
		if !q.Valid() {
			return fmt.Errorf("%w: %s is %d", ErrInvalidLedger, f, int64(q))
		}
	}
	return nil
}

// Grant is what a plan adds to a ledger on rollover or plan change.
type Grant struct {
	PlanID     string
	Enterprise bool
	Allowance  entitlement.Entitlements
}

// GrantFor resolves the plan into a Grant.
func GrantFor(plan entitlement.Plan) (Grant, error) {
	ents, err := entitlement.Resolve(plan)
	if err != nil {
		return Grant{}, err
	}
	return Grant{PlanID: plan.ID, Enterprise: plan.IsEnterprise(), Allowance: ents}, nil
}

// CheckResult is the outcome of a read-only usage check.
type CheckResult struct {
	CanProceed bool   `json:"canProceed"`
	Remaining  Quota  `json:"remaining"`
	Limit      Quota  `json:"limit"`
	Message    string `json:"message,omitempty"`
}

// ConsumeResult is the outcome of a successful decrement.
type ConsumeResult struct {
	Success   bool  `json:"success"`
	Remaining Quota `json:"remaining"`
}

// Limits is a snapshot of a vendor's allowance for the current period.
type Limits struct {
	PlanID    string          `json:"planId,omitempty"`
	Period    Period          `json:"period"`
	Override  bool            `json:"override"`
	Remaining map[Field]Quota `json:"remaining"`
	Allowance map[Field]Quota `json:"allowance"`
}

func unlimitedCounters() map[Field]Quota {
	out := make(map[Field]Quota, len(entitlement.Fields))
	for _, f := range entitlement.Fields {
		out[f] = Unlimited
	}
	return out
}
