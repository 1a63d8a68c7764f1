// Package pg bootstraps PostgreSQL access on pgx/v5: a connection pool with
// retry, goose/v3 migrations from an embedded filesystem, a readiness probe
// and driver error classification.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//	    return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, postgres.Migrations, "migrations", cfg, log); err != nil {
//	    return err
//	}
//
//	readiness := pg.Healthcheck(pool)
//
// Connect retries RetryAttempts times, waiting RetryInterval multiplied by the
// attempt number between tries, and gives up early when ctx is cancelled.
//
// # Error Handling
//
// IsNotFoundError, IsDuplicateKeyError and IsSerializationError unwrap errors
// returned by pgx (*pgconn.PgError) so stores can map them onto domain errors.
package pg
