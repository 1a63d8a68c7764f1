package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/notifications"
)

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, notif notifications.Notification) error {
	return m.Called(ctx, notif).Error(0)
}

type failingStorage struct {
	notifications.Storage
}

func (failingStorage) Create(context.Context, notifications.Notification) error {
	return errors.New("disk full")
}

func TestManager_Notify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	userID := uuid.New()
	at := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	storage := notifications.NewMemoryStorage()
	deliverer := &mockDeliverer{}
	deliverer.On("Deliver", mock.Anything, mock.MatchedBy(func(n notifications.Notification) bool {
		return n.UserID == userID && n.Priority == notifications.PriorityHigh && n.ID != ""
	})).Return(nil).Once()

	m := notifications.NewManager(storage, deliverer, notifications.WithManagerClock(func() time.Time { return at }))
	err := m.Notify(ctx, userID, "Subscription downgraded", "Moved to free.",
		notifications.TypeWarning, map[string]any{"kind": "past_due_downgrade"}, notifications.PriorityHigh)
	require.NoError(t, err)
	deliverer.AssertExpectations(t)

	list, err := m.List(ctx, userID, notifications.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Subscription downgraded", list[0].Title)
	assert.Equal(t, notifications.TypeWarning, list[0].Type)
	assert.Equal(t, "past_due_downgrade", list[0].Metadata["kind"])
	assert.True(t, at.Equal(list[0].CreatedAt))
}

func TestManager_Send(t *testing.T) {
	t.Parallel()

	t.Run("delivery failure keeps the stored notification", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		userID := uuid.New()
		deliverer := &mockDeliverer{}
		deliverer.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		m := notifications.NewManager(notifications.NewMemoryStorage(), deliverer)
		require.NoError(t, m.Send(ctx, notifications.Notification{UserID: userID, Title: "hello"}))

		count, err := m.CountUnread(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("storage failure is returned", func(t *testing.T) {
		t.Parallel()

		deliverer := &mockDeliverer{}
		m := notifications.NewManager(failingStorage{}, deliverer)
		err := m.Send(context.Background(), notifications.Notification{UserID: uuid.New(), Title: "hello"})
		assert.ErrorContains(t, err, "disk full")
		deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	})

	t.Run("defaults type to info", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		userID := uuid.New()
		m := notifications.NewManager(notifications.NewMemoryStorage(), nil)
		require.NoError(t, m.Send(ctx, notifications.Notification{ID: "n1", UserID: userID, Title: "hi"}))

		n, err := m.Get(ctx, userID, "n1")
		require.NoError(t, err)
		assert.Equal(t, notifications.TypeInfo, n.Type)
	})
}

func TestManager_MarkAllRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	userID := uuid.New()
	m := notifications.NewManager(notifications.NewMemoryStorage(), nil)

	for range 3 {
		require.NoError(t, m.Notify(ctx, userID, "t", "m", notifications.TypeInfo, nil, notifications.PriorityLow))
	}
	require.NoError(t, m.MarkAllRead(ctx, userID))

	count, err := m.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// nothing left to mark
	require.NoError(t, m.MarkAllRead(ctx, userID))
}
