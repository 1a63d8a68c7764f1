package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/usageledger/pkg/httpserver"
	"github.com/dmitrymomot/usageledger/pkg/notifications"
	"github.com/dmitrymomot/usageledger/pkg/usage"
)

// Usage is the metering surface the routes call into.
type Usage interface {
	Check(ctx context.Context, userID uuid.UUID, field usage.Field, count int64) usage.CheckResult
	Decrement(ctx context.Context, userID uuid.UUID, field usage.Field, count int64) (usage.ConsumeResult, error)
	GetRemainingLimits(ctx context.Context, userID uuid.UUID) (*usage.Limits, error)
	ResetExpiredSubscription(ctx context.Context, userID uuid.UUID) error
}

// Webhooks processes verified billing provider events.
type Webhooks interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Inbox lists a vendor's stored notifications.
type Inbox interface {
	List(ctx context.Context, userID uuid.UUID, opts notifications.ListOptions) ([]notifications.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// RequestObserver records one served request under its route pattern.
type RequestObserver interface {
	ObserveRequest(method, route string, code int, took time.Duration)
}

// Handler serves the ledger HTTP API.
type Handler struct {
	usage          Usage
	webhooks       Webhooks
	inbox          Inbox
	observer       RequestObserver
	metricsHandler http.Handler
	checks         []httpserver.NamedCheck
	readyTimeout   time.Duration
	maxBodyBytes   int64
	logger         *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithWebhooks mounts the Paddle webhook route.
func WithWebhooks(w Webhooks) Option {
	return func(h *Handler) {
		h.webhooks = w
	}
}

// WithInbox mounts the notifications route.
func WithInbox(i Inbox) Option {
	return func(h *Handler) {
		h.inbox = i
	}
}

// WithMetrics records request metrics through o and serves metricsHandler on /metrics.
func WithMetrics(o RequestObserver, metricsHandler http.Handler) Option {
	return func(h *Handler) {
		h.observer = o
		h.metricsHandler = metricsHandler
	}
}

// WithReadinessChecks adds dependency probes to /health/ready.
func WithReadinessChecks(timeout time.Duration, checks ...httpserver.NamedCheck) Option {
	return func(h *Handler) {
		h.readyTimeout = timeout
		h.checks = append(h.checks, checks...)
	}
}

// WithMaxBodyBytes caps request bodies. Defaults to 1 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates the API handler.
func NewHandler(u Usage, opts ...Option) *Handler {
	h := &Handler{
		usage:        u,
		readyTimeout: 2 * time.Second,
		maxBodyBytes: 1 << 20,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	if h.observer != nil {
		r.Use(observe(h.observer))
	}

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(h.logger, h.readyTimeout, h.checks...))
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Route("/usage/{userID}", func(r chi.Router) {
			r.Get("/", h.getLimits)
			r.Post("/check", h.check)
			r.Post("/consume", h.consume)
		})
		r.Post("/admin/subscriptions/{userID}/reset", h.reset)

		if h.inbox != nil {
			r.Get("/notifications/{userID}", h.listNotifications)
		}
		if h.webhooks != nil {
			r.Post("/billing/paddle/webhook", h.paddleWebhook)
		}
	})
	return r
}
