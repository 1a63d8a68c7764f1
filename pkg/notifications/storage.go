package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage handles notification persistence and retrieval.
type Storage interface {
	Create(ctx context.Context, notif Notification) error
	Get(ctx context.Context, userID uuid.UUID, notifID string) (*Notification, error)
	// List returns the user's notifications, newest first.
	List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, notifIDs ...string) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit      int // 0 = no limit
	Offset     int
	OnlyUnread bool
	Types      []Type     // empty = every type
	Since      *time.Time // created at or after
}
