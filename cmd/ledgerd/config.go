package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/usageledger/pkg/email"
	"github.com/dmitrymomot/usageledger/pkg/httpserver"
	"github.com/dmitrymomot/usageledger/pkg/mongo"
	"github.com/dmitrymomot/usageledger/pkg/pg"
	"github.com/dmitrymomot/usageledger/pkg/redis"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
)

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendRedis    = "redis"
	backendMongo    = "mongo"
)

var errInvalidConfig = errors.New("ledgerd.errors.invalid_config")

// Config is the daemon configuration. Nested structs read their own prefixes.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	// Backend selects the ledger store.
	Backend string `env:"LEDGER_BACKEND" envDefault:"memory"`
	// SubscriptionBackend selects the subscription and vendor store. Empty
	// follows Backend; the redis ledger keeps subscriptions in postgres.
	SubscriptionBackend string `env:"LEDGER_SUBSCRIPTION_BACKEND"`

	FreePlanID          string        `env:"LEDGER_FREE_PLAN_ID" envDefault:"free"`
	PlansFile           string        `env:"LEDGER_PLANS_FILE"`
	DailyCheckAt        string        `env:"LEDGER_DAILY_CHECK_AT" envDefault:"03:00"`
	RunChecksOnStart    bool          `env:"LEDGER_RUN_CHECKS_ON_START" envDefault:"false"`
	PastDueGrace        time.Duration `env:"LEDGER_PAST_DUE_GRACE" envDefault:"168h"`
	TrialReminderWindow time.Duration `env:"LEDGER_TRIAL_REMINDER_WINDOW" envDefault:"72h"`
	ReadinessTimeout    time.Duration `env:"LEDGER_READINESS_TIMEOUT" envDefault:"2s"`

	HTTP   httpserver.Config
	PG     pg.Config
	Redis  redis.Config
	Mongo  mongo.Config
	Email  email.Config
	Paddle subscription.PaddleConfig
}

// subscriptionBackend resolves the store holding subscriptions and vendors.
func (c Config) subscriptionBackend() string {
	switch {
	case c.SubscriptionBackend != "":
		return c.SubscriptionBackend
	case c.Backend == backendRedis:
		return backendPostgres
	default:
		return c.Backend
	}
}

// Validate rejects unknown backends and missing connection settings.
func (c Config) Validate() error {
	var errs []error

	switch c.Backend {
	case backendMemory, backendPostgres, backendRedis, backendMongo:
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND %q: want memory, postgres, redis or mongo", c.Backend))
	}

	subs := c.subscriptionBackend()
	switch subs {
	case backendMemory, backendPostgres, backendMongo:
	default:
		errs = append(errs, fmt.Errorf("LEDGER_SUBSCRIPTION_BACKEND %q: want memory, postgres or mongo", subs))
	}

	uses := func(b string) bool { return c.Backend == b || subs == b }
	if uses(backendPostgres) && c.PG.ConnectionString == "" {
		errs = append(errs, errors.New("PG_CONN_URL is required for the postgres backend"))
	}
	if uses(backendMongo) && c.Mongo.ConnectionURL == "" {
		errs = append(errs, errors.New("MONGODB_URL is required for the mongo backend"))
	}
	if c.FreePlanID == "" {
		errs = append(errs, errors.New("LEDGER_FREE_PLAN_ID is required"))
	}
	if c.PastDueGrace <= 0 || c.TrialReminderWindow <= 0 {
		errs = append(errs, errors.New("grace and reminder windows must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{errInvalidConfig}, errs...)...)
	}
	return nil
}

// paddleEnabled reports whether the webhook route can verify signatures.
func (c Config) paddleEnabled() bool {
	return c.Paddle.APIKey != "" && c.Paddle.WebhookSecret != ""
}
