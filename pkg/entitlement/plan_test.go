package entitlement_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
)

func ptr(v int64) *int64 { return &v }

func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("serialized blob", func(t *testing.T) {
		t.Parallel()

		plan := entitlement.Plan{
			ID:              "basic",
			Type:            entitlement.PlanTypeBasic,
			SupplierLimit:   ptr(10),
			AssessmentLimit: ptr(4),
			Features:        []byte(`{"messagesPerMonth": 100, "documentReviewsPerMonth": 5, "reportCreate": 3, "reportsGeneratedPerMonth": "7", "notificationsSend": 0}`),
		}

		ents, err := entitlement.Resolve(plan)
		require.NoError(t, err)

		assert.Equal(t, entitlement.Quota(10), ents[entitlement.FieldSuppliers])
		assert.Equal(t, entitlement.Quota(4), ents[entitlement.FieldAssessments])
		assert.Equal(t, entitlement.Quota(100), ents[entitlement.FieldMessages])
		assert.Equal(t, entitlement.Quota(5), ents[entitlement.FieldDocumentReviews])
		assert.Equal(t, entitlement.Quota(3), ents[entitlement.FieldReportCreate])
		assert.Equal(t, entitlement.Quota(7), ents[entitlement.FieldReportsGenerated])
		assert.Equal(t, entitlement.Quota(0), ents[entitlement.FieldNotificationsSend])
	})

	t.Run("structured map behaves like blob", func(t *testing.T) {
		t.Parallel()

		fromMap, err := entitlement.Resolve(entitlement.Plan{
			ID:       "m",
			Features: map[string]any{"messagesPerMonth": 20, "reportCreate": 5.0},
		})
		require.NoError(t, err)

		fromBlob, err := entitlement.Resolve(entitlement.Plan{
			ID:       "b",
			Features: `{"messagesPerMonth": 20, "reportCreate": 5}`,
		})
		require.NoError(t, err)

		assert.Equal(t, fromBlob, fromMap)
	})

	t.Run("absent fields are unlimited not zero", func(t *testing.T) {
		t.Parallel()

		ents, err := entitlement.Resolve(entitlement.Plan{ID: "sparse", Features: json.RawMessage(`{"messagesPerMonth": 1}`)})
		require.NoError(t, err)

		assert.Len(t, ents, len(entitlement.Fields))
		assert.True(t, ents[entitlement.FieldSuppliers].IsUnlimited())
		assert.True(t, ents[entitlement.FieldReportCreate].IsUnlimited())
		assert.Equal(t, entitlement.Quota(1), ents[entitlement.FieldMessages])
	})

	t.Run("sentinels map to unlimited", func(t *testing.T) {
		t.Parallel()

		ents, err := entitlement.Resolve(entitlement.Plan{
			ID:            "s",
			SupplierLimit: ptr(-1),
			Features:      map[string]any{"messagesPerMonth": "Unlimited", "reportCreate": nil, "notificationsSend": true, "documentReviewsPerMonth": false},
		})
		require.NoError(t, err)

		assert.True(t, ents[entitlement.FieldSuppliers].IsUnlimited())
		assert.True(t, ents[entitlement.FieldMessages].IsUnlimited())
		assert.True(t, ents[entitlement.FieldReportCreate].IsUnlimited())
		assert.True(t, ents[entitlement.FieldNotificationsSend].IsUnlimited())
		assert.Equal(t, entitlement.Quota(0), ents[entitlement.FieldDocumentReviews])
	})

	t.Run("enterprise ignores stored limits", func(t *testing.T) {
		t.Parallel()

		ents, err := entitlement.Resolve(entitlement.Plan{
			ID:            "ent",
			Type:          entitlement.PlanTypeEnterprise,
			SupplierLimit: ptr(3),
			Features:      map[string]any{"messagesPerMonth": 1},
		})
		require.NoError(t, err)

		for _, f := range entitlement.Fields {
			assert.True(t, ents[f].IsUnlimited(), f)
		}
	})

	t.Run("malformed blob", func(t *testing.T) {
		t.Parallel()

		_, err := entitlement.Resolve(entitlement.Plan{ID: "bad", Features: `{"messagesPerMonth":`})
		assert.ErrorIs(t, err, entitlement.ErrInvalidFeatures)
	})

	t.Run("negative allowance rejected", func(t *testing.T) {
		t.Parallel()

		_, err := entitlement.Resolve(entitlement.Plan{ID: "neg", Features: map[string]any{"messagesPerMonth": -5}})
		assert.ErrorIs(t, err, entitlement.ErrInvalidFeatures)

		_, err = entitlement.Resolve(entitlement.Plan{ID: "neg", AssessmentLimit: ptr(-3)})
		assert.ErrorIs(t, err, entitlement.ErrInvalidFeatures)
	})

	t.Run("fractional allowance rejected", func(t *testing.T) {
		t.Parallel()

		_, err := entitlement.Resolve(entitlement.Plan{ID: "frac", Features: `{"reportCreate": 1.5}`})
		assert.ErrorIs(t, err, entitlement.ErrInvalidFeatures)
	})
}

func TestParseField(t *testing.T) {
	t.Parallel()

	f, err := entitlement.ParseField("reportCreate")
	require.NoError(t, err)
	assert.Equal(t, entitlement.FieldReportCreate, f)

	f, err = entitlement.ParseField("suppliersUsed")
	require.NoError(t, err)
	assert.Equal(t, entitlement.FieldSuppliers, f)

	_, err = entitlement.ParseField("widgets")
	assert.ErrorIs(t, err, entitlement.ErrInvalidField)

	assert.True(t, entitlement.FieldMessages.Valid())
	assert.False(t, entitlement.Field("messagesUsed").Valid())
}

func TestQuotaJSON(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(map[string]entitlement.Quota{"a": entitlement.Unlimited, "b": 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": null, "b": 4}`, string(out))

	var in map[string]entitlement.Quota
	require.NoError(t, json.Unmarshal([]byte(`{"a": null, "b": 0}`), &in))
	assert.True(t, in["a"].IsUnlimited())
	assert.Equal(t, entitlement.Quota(0), in["b"])

	var bad entitlement.Quota
	assert.Error(t, json.Unmarshal([]byte(`-7`), &bad))
}

func TestQuotaArithmetic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, entitlement.Quota(5), entitlement.Quota(2).Add(3))
	assert.True(t, entitlement.Quota(2).Add(entitlement.Unlimited).IsUnlimited())
	assert.True(t, entitlement.Quota(3).Covers(3))
	assert.False(t, entitlement.Quota(3).Covers(4))
	assert.True(t, entitlement.Unlimited.Covers(1_000_000))
}
