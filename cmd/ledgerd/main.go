// Command ledgerd serves the usage ledger API and runs the daily
// subscription checks.
package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/usageledger/pkg/config"
	"github.com/dmitrymomot/usageledger/pkg/email"
	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/httpserver"
	"github.com/dmitrymomot/usageledger/pkg/logger"
	"github.com/dmitrymomot/usageledger/pkg/metrics"
	"github.com/dmitrymomot/usageledger/pkg/notifications"
	"github.com/dmitrymomot/usageledger/pkg/schedule"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
	"github.com/dmitrymomot/usageledger/pkg/usage"
	"github.com/dmitrymomot/usageledger/svc/alerts"
	"github.com/dmitrymomot/usageledger/svc/api"
	"github.com/dmitrymomot/usageledger/svc/billing"
)

const serviceName = "ledgerd"

//go:embed plans.yaml
var defaultPlans []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(api.RequestIDExtractor()),
	)
	logger.SetAsDefault(log)

	catalog, err := loadCatalog(cfg.PlansFile)
	if err != nil {
		return err
	}
	if _, err := catalog.Plan(ctx, cfg.FreePlanID); err != nil {
		return fmt.Errorf("free plan %q: %w", cfg.FreePlanID, err)
	}
	plans := catalog.List()
	planIDs := make([]string, 0, len(plans))
	for _, p := range plans {
		planIDs = append(planIDs, p.ID)
	}
	log.InfoContext(ctx, "plan catalog loaded", slog.Any("plan_ids", planIDs))

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close(context.WithoutCancel(ctx))

	m := metrics.New(metrics.WithRuntimeCollectors())

	gate := subscription.NewGate(store.subs, store.subs)
	ledger := usage.NewService(gate, store.subs, catalog, store.ledger,
		usage.WithLogger(log),
		usage.WithRecorder(m),
	)

	manager, err := newNotificationManager(cfg, store.subs, log)
	if err != nil {
		return err
	}

	checks := alerts.NewScheduler(store.subs, ledger, manager,
		alerts.WithLogger(log),
		alerts.WithRecorder(m),
		alerts.WithFreePlanID(cfg.FreePlanID),
		alerts.WithPastDueGrace(cfg.PastDueGrace),
		alerts.WithTrialReminderWindow(cfg.TrialReminderWindow),
	)
	runner, err := newRunner(cfg, checks, log)
	if err != nil {
		return err
	}

	apiOpts := []api.Option{
		api.WithLogger(log),
		api.WithInbox(manager),
		api.WithMetrics(m, m.Handler()),
		api.WithReadinessChecks(cfg.ReadinessTimeout, store.checks...),
	}
	if cfg.paddleEnabled() {
		provider, err := subscription.NewPaddleProvider(cfg.Paddle)
		if err != nil {
			return fmt.Errorf("paddle: %w", err)
		}
		apiOpts = append(apiOpts, api.WithWebhooks(
			billing.NewService(provider, store.subs, ledger, billing.WithLogger(log)),
		))
	} else {
		log.WarnContext(ctx, "paddle is not configured, webhook route disabled")
	}
	handler := api.NewHandler(ledger, apiOpts...)

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, handler.Routes()) })
	g.Go(func() error { return runner.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// loadCatalog reads path, or the embedded default catalog when path is empty.
func loadCatalog(path string) (*entitlement.InMemCatalog, error) {
	if path != "" {
		return entitlement.LoadYAMLFile(path)
	}
	return entitlement.LoadYAML(bytes.NewReader(defaultPlans))
}

func newNotificationManager(cfg Config, vendors subscription.VendorStore, log *slog.Logger) (*notifications.Manager, error) {
	sender, err := email.New(cfg.Email, log)
	if err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}

	deliverer := notifications.NewMultiDeliverer(
		[]notifications.Deliverer{
			notifications.NewLogDeliverer(log),
			notifications.NewEmailDeliverer(vendors, sender),
		},
		notifications.WithMultiDelivererLogger(log),
	)
	return notifications.NewManager(notifications.NewMemoryStorage(), deliverer,
		notifications.WithManagerLogger(log),
	), nil
}

func newRunner(cfg Config, checks *alerts.Scheduler, log *slog.Logger) (*schedule.Runner, error) {
	daily, err := schedule.ParseDailyAt(cfg.DailyCheckAt)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_DAILY_CHECK_AT: %w", err)
	}

	opts := []schedule.Option{schedule.WithLogger(log)}
	if cfg.RunChecksOnStart {
		opts = append(opts, schedule.WithRunOnStart())
	}
	runner := schedule.NewRunner(opts...)

	err = runner.Add("daily_checks", daily, func(ctx context.Context) error {
		_, err := checks.RunDailyChecks(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return runner, nil
}
