package entitlement_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
)

func TestInMemCatalog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	features := map[string]any{"messagesPerMonth": 10}
	catalog := entitlement.NewInMemCatalog(entitlement.Plan{ID: "free", SupplierLimit: ptr(2), Features: features})

	t.Run("returns copies", func(t *testing.T) {
		t.Parallel()

		p, err := catalog.Plan(ctx, "free")
		require.NoError(t, err)
		*p.SupplierLimit = 99
		p.Features.(map[string]any)["messagesPerMonth"] = 0

		again, err := catalog.Plan(ctx, "free")
		require.NoError(t, err)
		assert.Equal(t, int64(2), *again.SupplierLimit)
		assert.Equal(t, 10, again.Features.(map[string]any)["messagesPerMonth"])
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()

		_, err := catalog.Plan(ctx, "missing")
		assert.ErrorIs(t, err, entitlement.ErrPlanNotFound)
	})
}

func TestInMemCatalog_List(t *testing.T) {
	t.Parallel()

	catalog := entitlement.NewInMemCatalog(entitlement.Plan{ID: "b"}, entitlement.Plan{ID: "a"})

	plans := catalog.List()
	require.Len(t, plans, 2)
	assert.Equal(t, "a", plans[0].ID)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	t.Run("valid catalog", func(t *testing.T) {
		t.Parallel()

		doc := `
plans:
  - id: free
    name: Free
    type: FREE
    supplier_limit: 5
    assessment_limit: 1
    features:
      messagesPerMonth: 50
      reportCreate: 0
  - id: enterprise
    name: Enterprise
    type: ENTERPRISE
`
		catalog, err := entitlement.LoadYAML(strings.NewReader(doc))
		require.NoError(t, err)

		free, err := catalog.Plan(context.Background(), "free")
		require.NoError(t, err)
		ents, err := entitlement.Resolve(*free)
		require.NoError(t, err)
		assert.Equal(t, entitlement.Quota(5), ents[entitlement.FieldSuppliers])
		assert.Equal(t, entitlement.Quota(50), ents[entitlement.FieldMessages])
		assert.Equal(t, entitlement.Quota(0), ents[entitlement.FieldReportCreate])

		ent, err := catalog.Plan(context.Background(), "enterprise")
		require.NoError(t, err)
		assert.True(t, ent.IsEnterprise())
	})

	t.Run("duplicate ids", func(t *testing.T) {
		t.Parallel()

		_, err := entitlement.LoadYAML(strings.NewReader("plans:\n  - id: a\n  - id: a\n"))
		assert.ErrorIs(t, err, entitlement.ErrInvalidPlanConfiguration)
	})

	t.Run("invalid features", func(t *testing.T) {
		t.Parallel()

		_, err := entitlement.LoadYAML(strings.NewReader("plans:\n  - id: a\n    features:\n      messagesPerMonth: -4\n"))
		assert.ErrorIs(t, err, entitlement.ErrInvalidPlanConfiguration)
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()

		_, err := entitlement.LoadYAML(strings.NewReader("plans: []\n"))
		assert.ErrorIs(t, err, entitlement.ErrFailedToLoadPlans)
	})
}
