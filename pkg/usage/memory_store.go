package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded Store for tests and development.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[uuid.UUID]*Ledger
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledgers: make(map[uuid.UUID]*Ledger),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, subID uuid.UUID) (*Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.ledgers[subID]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	return l.Clone(), nil
}

func (m *MemoryStore) Refresh(_ context.Context, subID uuid.UUID, period Period, grant Grant) (*Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.ledgers[subID]
	if ok && prev.Period == period {
		return prev.Clone(), nil
	}
	next := Rollover(prev, grant, period)
	if ok && prev.PlanID != "" {
		next.PlanID = prev.PlanID
	}
	return m.put(subID, next), nil
}

func (m *MemoryStore) Apply(_ context.Context, subID uuid.UUID, period Period, grant Grant) (*Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.ledgers[subID]
	if ok && grant.PlanID != "" && prev.PlanID == grant.PlanID {
		return prev.Clone(), nil
	}
	return m.put(subID, Rollover(prev, grant, period)), nil
}

func (m *MemoryStore) Consume(_ context.Context, subID uuid.UUID, field Field, count int64) (Quota, error) {
	if !field.Valid() {
		return 0, ErrInvalidField
	}
	if count < 1 {
		return 0, ErrInvalidCount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.ledgers[subID]
	if !ok {
		return 0, ErrLedgerNotFound
	}

	current, ok := l.Counters[field]
	if !ok {
		return 0, &LimitExceededError{Field: field, Limit: 0, Required: count}
	}
	if current.IsUnlimited() {
		return Unlimited, nil
	}
	if !current.Covers(count) {
		return 0, &LimitExceededError{Field: field, Limit: current, Required: count}
	}

	l.Counters[field] = current - Quota(count)
	l.UpdatedAt = m.now().UTC()
	return l.Counters[field], nil
}

func (m *MemoryStore) Zero(_ context.Context, subID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.ledgers[subID]
	if !ok {
		return nil
	}
	for f := range l.Counters {
		l.Counters[f] = 0
	}
	l.PlanID = ""
	l.UpdatedAt = m.now().UTC()
	return nil
}

// put stores next for subID and returns a copy; callers hold m.mu.
func (m *MemoryStore) put(subID uuid.UUID, next *Ledger) *Ledger {
	next.SubscriptionID = subID
	next.UpdatedAt = m.now().UTC()
	m.ledgers[subID] = next
	return next.Clone()
}
