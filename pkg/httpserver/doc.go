// Package httpserver wraps net/http with context-driven graceful shutdown,
// configurable timeouts, and liveness and readiness probes.
//
// Run blocks until the context passed to it is cancelled or Shutdown is
// called, then drains in-flight requests within the shutdown timeout. The
// process owns signal handling: cancel the context from signal.NotifyContext.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	r := chi.NewRouter()
//	r.Get("/health/live", httpserver.LivenessHandler())
//	r.Get("/health/ready", httpserver.ReadinessHandler(log, 2*time.Second,
//		httpserver.NamedCheck{Name: "postgres", Probe: pg.Healthcheck(pool)},
//	))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
package httpserver
