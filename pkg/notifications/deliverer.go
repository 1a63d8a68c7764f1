package notifications

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/usageledger/pkg/logger"
)

// Deliverer pushes a stored notification through one channel.
type Deliverer interface {
	Deliver(ctx context.Context, notif Notification) error
}

// MultiDeliverer fans a notification out to several channels. A failing
// channel does not stop the others; every failure is logged and returned
// joined.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *slog.Logger
}

// MultiDelivererOption configures a MultiDeliverer.
type MultiDelivererOption func(*MultiDeliverer)

// WithMultiDelivererLogger sets the logger for the MultiDeliverer.
func WithMultiDelivererLogger(logger *slog.Logger) MultiDelivererOption {
	return func(m *MultiDeliverer) {
		m.logger = logger
	}
}

// NewMultiDeliverer creates a new multi-channel deliverer.
func NewMultiDeliverer(deliverers []Deliverer, opts ...MultiDelivererOption) *MultiDeliverer {
	m := &MultiDeliverer{
		deliverers: deliverers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MultiDeliverer) Deliver(ctx context.Context, notif Notification) error {
	var errs []error
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, notif); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to deliver notification",
				slog.String("notification_id", notif.ID),
				logger.UserID(notif.UserID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogDeliverer writes notifications to the log.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a log deliverer. A nil logger means slog.Default().
func NewLogDeliverer(log *slog.Logger) *LogDeliverer {
	if log == nil {
		log = slog.Default()
	}
	return &LogDeliverer{logger: log}
}

func (d *LogDeliverer) Deliver(ctx context.Context, notif Notification) error {
	level := slog.LevelInfo
	if notif.Type == TypeWarning || notif.Type == TypeError {
		level = slog.LevelWarn
	}
	d.logger.LogAttrs(ctx, level, notif.Title,
		slog.String("notification_id", notif.ID),
		logger.UserID(notif.UserID),
		slog.String("type", string(notif.Type)),
		slog.String("priority", notif.Priority.String()),
		slog.String("message", notif.Message),
	)
	return nil
}

// NoOpDeliverer drops every notification.
type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(context.Context, Notification) error {
	return nil
}
