package entitlement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Field is a metered resource tracked per billing cycle.
type Field string

const (
	FieldSuppliers         Field = "suppliers"
	FieldAssessments       Field = "assessments"
	FieldMessages          Field = "messages"
	FieldDocumentReviews   Field = "documentReviews"
	FieldReportCreate      Field = "reportCreate"
	FieldReportsGenerated  Field = "reportsGenerated"
	FieldNotificationsSend Field = "notificationsSend"
)

// Fields lists every metered field in a stable order.
var Fields = []Field{
	FieldSuppliers,
	FieldAssessments,
	FieldMessages,
	FieldDocumentReviews,
	FieldReportCreate,
	FieldReportsGenerated,
	FieldNotificationsSend,
}

// fieldAliases maps ledger column style names onto canonical fields.
var fieldAliases = map[string]Field{
	"suppliersUsed":        FieldSuppliers,
	"assessmentsUsed":      FieldAssessments,
	"messagesUsed":         FieldMessages,
	"documentReviewsUsed":  FieldDocumentReviews,
	"reportsGeneratedUsed": FieldReportsGenerated,
}

// ParseField returns the canonical field for a name or alias.
func ParseField(name string) (Field, error) {
	for _, f := range Fields {
		if string(f) == name {
			return f, nil
		}
	}
	if f, ok := fieldAliases[name]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidField, name)
}

// Valid reports whether f is a known metered field.
func (f Field) Valid() bool {
	return slices.Contains(Fields, f)
}

// Unlimited marks a quota without an upper bound (-1 chosen for SQL compatibility).
const Unlimited Quota = -1

// Quota is a number of units; Unlimited encodes the absence of a limit.
// JSON renders Unlimited as null.
type Quota int64

// IsUnlimited reports whether q carries no limit.
func (q Quota) IsUnlimited() bool {
	return q == Unlimited
}

// Valid reports whether q is Unlimited or a non-negative amount.
func (q Quota) Valid() bool {
	return q >= 0 || q == Unlimited
}

// Covers reports whether q can pay for count units.
func (q Quota) Covers(count int64) bool {
	return q.IsUnlimited() || int64(q) >= count
}

// Add sums two quotas; anything plus Unlimited is Unlimited.
func (q Quota) Add(other Quota) Quota {
	if q.IsUnlimited() || other.IsUnlimited() {
		return Unlimited
	}
	return q + other
}

func (q Quota) String() string {
	if q.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(q), 10)
}

func (q Quota) MarshalJSON() ([]byte, error) {
	if q.IsUnlimited() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, int64(q), 10), nil
}

func (q *Quota) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*q = Unlimited
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n < 0 && n != int64(Unlimited) {
		return fmt.Errorf("%w: negative quota %d", ErrInvalidFeatures, n)
	}
	*q = Quota(n)
	return nil
}

// Entitlements maps every metered field to the allowance granted per cycle.
type Entitlements map[Field]Quota

// Get returns the allowance for f, Unlimited when f is absent.
func (e Entitlements) Get(f Field) Quota {
	if q, ok := e[f]; ok {
		return q
	}
	return Unlimited
}
