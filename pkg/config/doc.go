// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: Load
// reads ./.env once (a missing file is fine), parses the environment into a
// struct through its env tags and caches the result per type, so later calls
// for the same type are served from memory.
//
//	var cfg ledgerd.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// LoadEnv reads explicit .env files, later files overriding earlier ones.
// ForceReload and ResetCache exist for tests that change the environment.
package config
