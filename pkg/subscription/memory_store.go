package subscription

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store and VendorStore for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*Subscription
	byUser  map[uuid.UUID]uuid.UUID
	vendors map[uuid.UUID]Vendor
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:    make(map[uuid.UUID]*Subscription),
		byUser:  make(map[uuid.UUID]uuid.UUID),
		vendors: make(map[uuid.UUID]Vendor),
	}
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) GetByUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUser[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return m.subs[id].Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, sub *Subscription) error {
	if sub == nil || sub.ID == uuid.Nil || sub.UserID == uuid.Nil {
		return ErrInvalidSubscription
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.subs[sub.ID]; ok && prev.UserID != sub.UserID {
		delete(m.byUser, prev.UserID)
	}
	m.subs[sub.ID] = sub.Clone()
	m.byUser[sub.UserID] = sub.ID
	return nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]*Subscription, error) {
	return m.list(func(s *Subscription) bool {
		return !s.Status.Terminal() && (s.TrialExpiredAt(now) || s.PeriodExpiredAt(now))
	}), nil
}

func (m *MemoryStore) ListPastDueSince(_ context.Context, before time.Time) ([]*Subscription, error) {
	return m.list(func(s *Subscription) bool {
		return s.Status == StatusPastDue && s.PastDueSince != nil && s.PastDueSince.Before(before)
	}), nil
}

func (m *MemoryStore) ListTrialsEndingBetween(_ context.Context, from, to time.Time) ([]*Subscription, error) {
	return m.list(func(s *Subscription) bool {
		return s.IsTrialing() && s.TrialEnd != nil && !s.TrialEnd.Before(from) && s.TrialEnd.Before(to)
	}), nil
}

// PutVendor adds or replaces a vendor record.
func (m *MemoryStore) PutVendor(v Vendor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendors[v.UserID] = v
}

func (m *MemoryStore) GetVendor(_ context.Context, userID uuid.UUID) (*Vendor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vendors[userID]
	if !ok {
		return nil, ErrVendorNotFound
	}
	return &v, nil
}

// list returns matches ordered by creation time so sweeps are deterministic.
func (m *MemoryStore) list(match func(*Subscription) bool) []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Subscription
	for _, s := range m.subs {
		if match(s) {
			out = append(out, s.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Subscription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}
