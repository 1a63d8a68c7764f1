package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/usageledger/pkg/logger"
)

// Manager orchestrates notification storage and delivery.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerClock overrides the time source used for CreatedAt.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new notification manager. A nil deliverer stores
// notifications without pushing them anywhere.
func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	if deliverer == nil {
		deliverer = NoOpDeliverer{}
	}
	m := &Manager{
		storage:   storage,
		deliverer: deliverer,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send stores the notification, then delivers it. Delivery is best effort: a
// failure is logged and the stored notification stays available.
func (m *Manager) Send(ctx context.Context, notif Notification) error {
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = m.now().UTC()
	}
	if notif.Type == "" {
		notif.Type = TypeInfo
	}

	if err := m.storage.Create(ctx, notif); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	if err := m.deliverer.Deliver(ctx, notif); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "notification stored but not delivered",
			slog.String("notification_id", notif.ID),
			logger.UserID(notif.UserID),
			logger.Error(err),
		)
	}
	return nil
}

// Notify builds and sends a notification.
func (m *Manager) Notify(ctx context.Context, userID uuid.UUID, title, message string, typ Type, metadata map[string]any, priority Priority) error {
	return m.Send(ctx, Notification{
		UserID:   userID,
		Type:     typ,
		Priority: priority,
		Title:    title,
		Message:  message,
		Metadata: metadata,
	})
}

func (m *Manager) Get(ctx context.Context, userID uuid.UUID, notifID string) (*Notification, error) {
	return m.storage.Get(ctx, userID, notifID)
}

func (m *Manager) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, userID, opts)
}

func (m *Manager) MarkRead(ctx context.Context, userID uuid.UUID, notifIDs ...string) error {
	return m.storage.MarkRead(ctx, userID, notifIDs...)
}

// MarkAllRead marks all notifications as read for a user.
func (m *Manager) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	unread, err := m.storage.List(ctx, userID, ListOptions{OnlyUnread: true})
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}
	ids := make([]string, len(unread))
	for i, n := range unread {
		ids[i] = n.ID
	}
	return m.storage.MarkRead(ctx, userID, ids...)
}

func (m *Manager) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return m.storage.CountUnread(ctx, userID)
}
