package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/usageledger/pkg/httpserver"
	"github.com/dmitrymomot/usageledger/pkg/logger"
	"github.com/dmitrymomot/usageledger/pkg/mongo"
	"github.com/dmitrymomot/usageledger/pkg/pg"
	"github.com/dmitrymomot/usageledger/pkg/redis"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
	"github.com/dmitrymomot/usageledger/pkg/usage"
	mongostore "github.com/dmitrymomot/usageledger/svc/store/mongo"
	pgstore "github.com/dmitrymomot/usageledger/svc/store/postgres"
	redisstore "github.com/dmitrymomot/usageledger/svc/store/redis"
)

// subscriptionStore is what every subscription backend provides.
type subscriptionStore interface {
	subscription.Store
	subscription.VendorStore
}

// backend holds the opened stores and their connections.
type backend struct {
	ledger usage.Store
	subs   subscriptionStore
	checks []httpserver.NamedCheck

	pool *pgxpool.Pool
	rdb  *goredis.Client
	mdb  *mongodriver.Database
}

// openBackend connects only what the configured backends need.
func openBackend(ctx context.Context, cfg Config, log *slog.Logger) (_ *backend, err error) {
	b := &backend{}
	defer func() {
		if err != nil {
			b.Close(context.WithoutCancel(ctx))
		}
	}()

	switch cfg.subscriptionBackend() {
	case backendPostgres:
		pool, err := b.postgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		b.subs = pgstore.NewSubscriptionStore(pool)
	case backendMongo:
		db, err := b.mongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.subs = mongostore.NewSubscriptionStore(db)
	default:
		b.subs = subscription.NewMemoryStore()
	}

	switch cfg.Backend {
	case backendPostgres:
		pool, err := b.postgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		b.ledger = pgstore.NewLedgerStore(pool)
	case backendRedis:
		client, err := b.redis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.ledger = redisstore.NewLedgerStore(client, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
	case backendMongo:
		db, err := b.mongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.ledger = mongostore.NewLedgerStore(db)
	default:
		b.ledger = usage.NewMemoryStore()
	}

	log.InfoContext(ctx, "storage ready",
		slog.String("ledger", cfg.Backend),
		slog.String("subscriptions", cfg.subscriptionBackend()),
	)
	return b, nil
}

func (b *backend) postgres(ctx context.Context, cfg Config, log *slog.Logger) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b.pool = pool
	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg.PG, log); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	b.checks = append(b.checks, httpserver.NamedCheck{Name: "postgres", Probe: pg.Healthcheck(pool)})
	return pool, nil
}

func (b *backend) redis(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if b.rdb != nil {
		return b.rdb, nil
	}
	client, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	b.rdb = client
	b.checks = append(b.checks, httpserver.NamedCheck{Name: "redis", Probe: redis.Healthcheck(client)})
	return client, nil
}

func (b *backend) mongo(ctx context.Context, cfg Config) (*mongodriver.Database, error) {
	if b.mdb != nil {
		return b.mdb, nil
	}
	db, err := mongo.NewWithDatabase(ctx, cfg.Mongo, "")
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	b.mdb = db
	if err := mongostore.Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate mongo: %w", err)
	}
	b.checks = append(b.checks, httpserver.NamedCheck{Name: "mongo", Probe: mongo.Healthcheck(db.Client())})
	return db, nil
}

// Close releases every opened connection.
func (b *backend) Close(ctx context.Context) {
	var errs []error
	if b.rdb != nil {
		errs = append(errs, b.rdb.Close())
	}
	if b.mdb != nil {
		errs = append(errs, b.mdb.Client().Disconnect(ctx))
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		slog.Default().ErrorContext(ctx, "closing storage", logger.Error(err))
	}
}
