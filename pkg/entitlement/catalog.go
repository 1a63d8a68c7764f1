package entitlement

import (
	"context"
	"sort"
	"sync"
)

// Catalog looks up plan records. Implementations must return ErrPlanNotFound
// for unknown IDs.
type Catalog interface {
	Plan(ctx context.Context, id string) (*Plan, error)
}

// InMemCatalog is a Catalog holding deep copies of its plans.
type InMemCatalog struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemCatalog returns a catalog seeded with copies of the given plans.
func NewInMemCatalog(plans ...Plan) *InMemCatalog {
	c := &InMemCatalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		c.plans[p.ID] = p.Clone()
	}
	return c
}

// Plan returns a copy of the plan so callers cannot mutate catalog state.
func (c *InMemCatalog) Plan(_ context.Context, id string) (*Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := p.Clone()
	return &cp, nil
}

// List returns copies of all plans sorted by ID.
func (c *InMemCatalog) List() []Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
