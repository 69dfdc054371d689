// Package backend opens the configured document store and Redis client
// for the binaries.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcel-gle/gb-qr-tracker/internal/cache"
	"github.com/marcel-gle/gb-qr-tracker/internal/config"
	"github.com/marcel-gle/gb-qr-tracker/internal/docstore"
	"github.com/marcel-gle/gb-qr-tracker/internal/repository"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

// OpenStore connects the backend named by cfg.StoreBackend and prepares
// its schema or indexes.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		repo, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %s", SanitizeError(err, cfg.DatabaseURL))
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = repo.Close(ctx)
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("connected to database", "backend", cfg.StoreBackend, "database_url", RedactURL(cfg.DatabaseURL))
		return repo, nil

	case config.BackendMongo:
		ds, err := docstore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %s", SanitizeError(err, cfg.MongoURI))
		}
		if err := ds.EnsureIndexes(ctx); err != nil {
			_ = ds.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("connected to database", "backend", cfg.StoreBackend, "mongo_uri", RedactURL(cfg.MongoURI))
		return ds, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// OpenCache connects Redis when configured. It returns nil without error
// when REDIS_URL is empty.
func OpenCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.Cache, error) {
	if cfg.RedisURL == "" {
		logger.Info("redis not configured")
		return nil, nil
	}
	c, err := cache.New(ctx, cfg.RedisURL, cache.WithLinkTTL(cfg.LinkCacheTTL))
	if err != nil {
		return nil, fmt.Errorf("connect redis: %s", SanitizeError(err, cfg.RedisURL))
	}
	logger.Info("connected to Redis", "redis_url", RedactURL(cfg.RedisURL))
	return c, nil
}
