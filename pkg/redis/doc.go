// Package redis connects to a Redis server with go-redis/v9 and exposes a
// readiness probe.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	ready := redis.Healthcheck(client)
//
// Config is populated from REDIS_* environment variables via
// github.com/caarlos0/env. The ledger store built on this client lives in
// svc/store/redis.
package redis
