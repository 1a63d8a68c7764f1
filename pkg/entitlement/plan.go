package entitlement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// PlanType tags a plan tier. Enterprise plans are unlimited on every field.
type PlanType string

const (
	PlanTypeFree         PlanType = "FREE"
	PlanTypeBasic        PlanType = "BASIC"
	PlanTypeProfessional PlanType = "PROFESSIONAL"
	PlanTypeEnterprise   PlanType = "ENTERPRISE"
)

// Plan is a tenant-facing tier definition as stored by the billing side.
// SupplierLimit and AssessmentLimit are nil (or -1) when unlimited.
// Features holds either a serialized JSON blob ([]byte, json.RawMessage, string)
// or an already decoded map.
type Plan struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Type            PlanType `json:"type" yaml:"type"`
	SupplierLimit   *int64   `json:"supplierLimit" yaml:"supplier_limit"`
	AssessmentLimit *int64   `json:"assessmentLimit" yaml:"assessment_limit"`
	Features        any      `json:"features" yaml:"features"`
	TrialDays       int      `json:"trialDays" yaml:"trial_days"`
}

// IsEnterprise reports whether the plan grants unlimited usage on every field.
func (p Plan) IsEnterprise() bool {
	return strings.EqualFold(string(p.Type), string(PlanTypeEnterprise))
}

// Clone returns a copy that shares no mutable state with p.
func (p Plan) Clone() Plan {
	c := p
	if p.SupplierLimit != nil {
		v := *p.SupplierLimit
		c.SupplierLimit = &v
	}
	if p.AssessmentLimit != nil {
		v := *p.AssessmentLimit
		c.AssessmentLimit = &v
	}
	switch f := p.Features.(type) {
	case map[string]any:
		c.Features = maps.Clone(f)
	case []byte:
		c.Features = bytes.Clone(f)
	case json.RawMessage:
		c.Features = json.RawMessage(bytes.Clone(f))
	}
	return c
}

// featureFields maps keys of the features blob onto metered fields.
var featureFields = map[string]Field{
	"messagesPerMonth":         FieldMessages,
	"documentReviewsPerMonth":  FieldDocumentReviews,
	"reportCreate":             FieldReportCreate,
	"reportsGeneratedPerMonth": FieldReportsGenerated,
	"notificationsSend":        FieldNotificationsSend,
}

// Resolve derives the per-cycle allowance for every metered field of the plan.
// Fields the plan does not mention resolve to Unlimited, never to zero.
// Enterprise plans resolve to Unlimited everywhere.
func Resolve(plan Plan) (Entitlements, error) {
	ents := make(Entitlements, len(Fields))
	for _, f := range Fields {
		ents[f] = Unlimited
	}
	if plan.IsEnterprise() {
		return ents, nil
	}

	var err error
	if ents[FieldSuppliers], err = limitQuota(plan.SupplierLimit); err != nil {
		return nil, fmt.Errorf("plan %s supplier limit: %w", plan.ID, err)
	}
	if ents[FieldAssessments], err = limitQuota(plan.AssessmentLimit); err != nil {
		return nil, fmt.Errorf("plan %s assessment limit: %w", plan.ID, err)
	}

	features, err := decodeFeatures(plan.Features)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", plan.ID, err)
	}
	for key, field := range featureFields {
		raw, ok := features[key]
		if !ok {
			continue
		}
		q, err := toQuota(raw)
		if err != nil {
			return nil, fmt.Errorf("plan %s feature %s: %w", plan.ID, key, err)
		}
		ents[field] = q
	}

	return ents, nil
}

func limitQuota(limit *int64) (Quota, error) {
	if limit == nil {
		return Unlimited, nil
	}
	q := Quota(*limit)
	if !q.Valid() {
		return 0, fmt.Errorf("%w: negative limit %d", ErrInvalidFeatures, *limit)
	}
	return q, nil
}

func decodeFeatures(raw any) (map[string]any, error) {
	var blob []byte
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case map[string]int64:
		out := make(map[string]any, len(v))
		for k, n := range v {
			out[k] = n
		}
		return out, nil
	case json.RawMessage:
		blob = v
	case []byte:
		blob = v
	case string:
		blob = []byte(v)
	default:
		return nil, fmt.Errorf("%w: unsupported features type %T", ErrInvalidFeatures, raw)
	}

	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 || bytes.Equal(blob, []byte("null")) {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Join(ErrInvalidFeatures, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func toQuota(v any) (Quota, error) {
	var n int64
	switch x := v.(type) {
	case nil:
		return Unlimited, nil
	case bool:
		if x {
			return Unlimited, nil
		}
		return 0, nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidFeatures, x.String())
			}
			i = int64(f)
		}
		n = i
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidFeatures, x)
		}
		n = int64(x)
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows", ErrInvalidFeatures, x)
		}
		n = int64(x)
	case string:
		if strings.EqualFold(strings.TrimSpace(x), "unlimited") {
			return Unlimited, nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, errors.Join(ErrInvalidFeatures, err)
		}
		n = i
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", ErrInvalidFeatures, v)
	}

	q := Quota(n)
	if !q.Valid() {
		return 0, fmt.Errorf("%w: negative allowance %d", ErrInvalidFeatures, n)
	}
	return q, nil
}
