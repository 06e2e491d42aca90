package main

import (
	"context"
	"fmt"

	"github.com/matst80/slask-archive/pkg/cache"
	"github.com/matst80/slask-archive/pkg/common"
	"github.com/matst80/slask-archive/pkg/config"
	"github.com/matst80/slask-archive/pkg/filter"
	"github.com/matst80/slask-archive/pkg/messaging"
	"github.com/matst80/slask-archive/pkg/storage"
	"github.com/matst80/slask-archive/pkg/types"
	"github.com/matst80/slask-archive/pkg/visibility"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// archiveStore is what both storage backends provide.
type archiveStore interface {
	types.ContentStore
	visibility.Store
	Import(ctx context.Context, ds *storage.Dataset) error
	Export(ctx context.Context) (*storage.Dataset, error)
}

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    archiveStore
	cache    cache.OptionsCache
	engine   *visibility.Engine
	registry *filter.Registry
	hooks    []common.ShutdownHook
}

func openStore(ctx context.Context, cfg *config.Config) (archiveStore, common.ShutdownHook, error) {
	if cfg.Database == "" {
		return storage.NewMemoryStore(), nil, nil
	}
	s, err := storage.OpenSQL(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return s, func(context.Context) error { return s.Close() }, nil
}

func openCache(cfg *config.Config, logger *zap.Logger) (cache.OptionsCache, common.ShutdownHook) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryCache[[]types.Option](), nil
	}
	c := cache.NewRedisCache[[]types.Option](&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	return c, func(context.Context) error { return c.Close() }
}

func loadDefinitions(cfg *config.Config) (*filter.Definitions, error) {
	if cfg.Facets.File == "" {
		return filter.DefaultDefinitions(cfg.ContentType), nil
	}
	return filter.LoadDefinitions(cfg.Facets.File)
}

// newApp wires storage, cache, visibility engine and the filter registry.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store
	a.hooks = []common.ShutdownHook{closeStore}
	if cfg.Dataset != "" {
		ds, err := storage.LoadDataset(cfg.Dataset)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		if err = store.Import(ctx, ds); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("import %s: %w", cfg.Dataset, err)
		}
		logger.Info("dataset imported", zap.String("file", cfg.Dataset), zap.Int("items", len(ds.Items)))
	}

	var closeCache common.ShutdownHook
	a.cache, closeCache = openCache(cfg, logger)
	a.hooks = append([]common.ShutdownHook{closeCache}, a.hooks...)

	a.engine = visibility.NewEngine(store, logger)
	a.engine.OnSettled(a.invalidate)

	defs, err := loadDefinitions(cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.registry = defs.Build(ctx, store, filter.Options{
		Cache:      a.cache,
		Visibility: a.engine,
		Logger:     logger,
		TTL:        cfg.Cache.TTL,
		Threshold:  cfg.Facets.Threshold,
		Order:      cfg.Facets.Order,
		Debug:      cfg.Debug,
	})
	logger.Info("filters registered", zap.Strings("contentTypes", a.registry.PostTypes()))
	return a, nil
}

// invalidate drops every cached option list once a save has changed
// visibility.
func (a *app) invalidate(ctx context.Context, changes []types.VisibilityChange) {
	if err := a.cache.Invalidate(ctx); err != nil {
		a.logger.Warn("options cache invalidation failed",
			zap.Int("changes", len(changes)),
			zap.Error(err))
	}
}

// connectBus publishes local visibility changes to the other nodes. The bus
// is closed, and its queue flushed, before the other hooks run.
func (a *app) connectBus() (*messaging.Bus, error) {
	bus, err := messaging.Connect(messaging.RabbitConfig{Url: a.cfg.Rabbit.Url, Prefix: a.cfg.Rabbit.Prefix}, a.logger)
	if err != nil {
		return nil, err
	}
	a.engine.Subscribe(bus.OnVisibilityChange)
	a.hooks = append([]common.ShutdownHook{func(context.Context) error { return bus.Close() }}, a.hooks...)
	return bus, nil
}

func (a *app) close(ctx context.Context) {
	for _, h := range a.hooks {
		if h == nil {
			continue
		}
		if err := h(ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.hooks = nil
}

func (a *app) manager() (*filter.Manager, error) {
	m, ok := a.registry.Get(a.cfg.ContentType)
	if !ok {
		return nil, fmt.Errorf("content type %q has no filters", a.cfg.ContentType)
	}
	return m, nil
}
