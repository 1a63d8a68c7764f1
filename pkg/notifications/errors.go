package notifications

import "errors"

var (
	ErrNotificationNotFound = errors.New("notifications.errors.not_found")
	ErrInvalidNotification  = errors.New("notifications.errors.invalid_notification")
	ErrRecipientNotFound    = errors.New("notifications.errors.recipient_not_found")
)
