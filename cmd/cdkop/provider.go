package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cdkop/db/redisstore"
	"cdkop/db/sqlstore"
	"cdkop/internal/config"
	"cdkop/internal/metadata"
)

// buildProvider picks the deployment metadata source. A saved metadata file
// is used as is; live CloudFormation lookups go through the snapshot cache
// when one is configured.
func buildProvider(ctx context.Context, cfg *config.Config, region string, logger *zap.Logger) (metadata.Provider, func(), error) {
	noop := func() {}

	if cfg.MetadataFile != "" {
		logger.Debug("Using stack metadata file", zap.String("path", cfg.MetadataFile))
		return metadata.NewFileProvider(cfg.MetadataFile), noop, nil
	}

	live, err := metadata.NewCloudFormationProvider(ctx, region, logger)
	if err != nil {
		return nil, noop, err
	}
	if !cfg.Cache.Enabled() {
		return live, noop, nil
	}

	store, closeStore, err := openStore(ctx, cfg.Cache)
	if err != nil {
		logger.Warn("Stack metadata cache unavailable, using live lookups", zap.Error(err))
		return live, noop, nil
	}
	return metadata.NewCachingProvider(live, store, region, cfg.Cache.TTL, logger), closeStore, nil
}

func openStore(ctx context.Context, cache config.CacheConfig) (metadata.Store, func(), error) {
	if cache.DSN != "" {
		store, err := sqlstore.Open(cache.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to reach cache: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to migrate cache: %w", err)
		}
		return store, func() { store.Close() }, nil
	}

	rcfg := redisstore.DefaultConfig()
	rcfg.Addr = cache.RedisAddr
	store, err := redisstore.New(ctx, rcfg)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}
