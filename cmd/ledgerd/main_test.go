package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/pg"
	"github.com/dmitrymomot/usageledger/svc/alerts"
)

func validConfig() Config {
	return Config{
		Backend:             backendMemory,
		FreePlanID:          "free",
		DailyCheckAt:        "03:00",
		PastDueGrace:        7 * 24 * time.Hour,
		TrialReminderWindow: 72 * time.Hour,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory defaults", func(*Config) {}, false},
		{"unknown backend", func(c *Config) { c.Backend = "sqlite" }, true},
		{"postgres without url", func(c *Config) { c.Backend = backendPostgres }, true},
		{"postgres with url", func(c *Config) {
			c.Backend = backendPostgres
			c.PG = pg.Config{ConnectionString: "postgres://localhost/ledger"}
		}, false},
		{"redis ledger needs postgres subscriptions", func(c *Config) { c.Backend = backendRedis }, true},
		{"redis ledger with memory subscriptions", func(c *Config) {
			c.Backend = backendRedis
			c.SubscriptionBackend = backendMemory
		}, false},
		{"redis cannot hold subscriptions", func(c *Config) { c.SubscriptionBackend = backendRedis }, true},
		{"mongo without url", func(c *Config) { c.Backend = backendMongo }, true},
		{"empty free plan", func(c *Config) { c.FreePlanID = "" }, true},
		{"zero grace", func(c *Config) { c.PastDueGrace = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SubscriptionBackend(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	assert.Equal(t, backendMemory, cfg.subscriptionBackend())

	cfg.Backend = backendRedis
	assert.Equal(t, backendPostgres, cfg.subscriptionBackend())

	cfg.SubscriptionBackend = backendMongo
	assert.Equal(t, backendMongo, cfg.subscriptionBackend())
}

func TestLoadCatalog_Default(t *testing.T) {
	t.Parallel()

	catalog, err := loadCatalog("")
	require.NoError(t, err)

	free, err := catalog.Plan(context.Background(), "free")
	require.NoError(t, err)
	ents, err := entitlement.Resolve(*free)
	require.NoError(t, err)
	assert.Equal(t, entitlement.Quota(50), ents.Get(entitlement.FieldMessages))
	assert.Equal(t, entitlement.Quota(5), ents.Get(entitlement.FieldSuppliers))

	ent, err := catalog.Plan(context.Background(), "enterprise")
	require.NoError(t, err)
	assert.True(t, ent.IsEnterprise())

	_, err = loadCatalog("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestOpenBackend_Memory(t *testing.T) {
	t.Parallel()

	b, err := openBackend(context.Background(), validConfig(), discardLogger())
	require.NoError(t, err)
	defer b.Close(context.Background())

	assert.NotNil(t, b.ledger)
	assert.NotNil(t, b.subs)
	assert.Empty(t, b.checks)
}

func TestNewRunner(t *testing.T) {
	t.Parallel()

	checks := alerts.NewScheduler(nil, nil, nil)

	cfg := validConfig()
	_, err := newRunner(cfg, checks, discardLogger())
	require.NoError(t, err)

	cfg.DailyCheckAt = "25:99"
	_, err = newRunner(cfg, checks, discardLogger())
	assert.Error(t, err)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
