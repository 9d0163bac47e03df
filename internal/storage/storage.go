// Package storage selects the page-state backend configured for the server.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"crmapp/internal/app"
	"crmapp/internal/config"
	"crmapp/internal/storage/memory"
	"crmapp/internal/storage/redisstate"
	"crmapp/internal/storage/sqlite"
)

// Store is a page-state store that owns resources.
type Store interface {
	app.StateStore
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*redisstate.Store)(nil)
	_ Store = (*memory.Store)(nil)
)

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg config.StateConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return sqlite.Open(cfg.SQLitePath, logger)
	case "redis":
		opts, err := redisstate.ParseOptions(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstate.New(client, cfg.RedisTTL), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown state driver %q", cfg.Driver)
	}
}
