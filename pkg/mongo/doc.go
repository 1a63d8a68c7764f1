// Package mongo connects to MongoDB for the document-backed ledger store.
//
// Configuration comes from MONGODB_* environment variables (see Config).
// New retries the connect and ping until RetryAttempts is exhausted or the
// context ends, and returns the last failure joined to
// ErrFailedToConnectToMongo.
//
//	client, err := mongo.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(context.Background())
//
//	db := client.Database(cfg.Database)
//
// Healthcheck returns a probe suitable for the HTTP server readiness checks.
package mongo
