package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/agentconfig"
	"github.com/BaSui01/agentcmd/config"
	"github.com/BaSui01/agentcmd/extension"
	"github.com/BaSui01/agentcmd/internal/cache"
	"github.com/BaSui01/agentcmd/internal/database"
	"github.com/BaSui01/agentcmd/prompts"
)

// components 是 serve 与 CLI 子命令共用的核心对象
type components struct {
	registry   *extension.Registry
	dispatcher *extension.Dispatcher
	agents     agentconfig.Store
	prompts    *prompts.Store

	// 仅在对应驱动启用时非空
	db    *database.PoolManager
	cache *cache.Manager

	logger *zap.Logger
}

// buildComponents 按配置组装注册表、调度器与存储，并完成首次扫描
func buildComponents(ctx context.Context, cfg *config.Config, observer extension.Observer, logger *zap.Logger) (*components, error) {
	c := &components{logger: logger}

	settings := cfg.Extensions.ExtensionSettings()
	loader := extension.NewLoader(
		extension.WithDir(cfg.Extensions.Dir),
		extension.WithSettings(settings),
		extension.WithConcurrency(cfg.Extensions.ScanConcurrency),
		extension.WithLoaderLogger(logger),
	)
	c.registry = extension.NewRegistry(loader,
		extension.WithObserver(observer),
		extension.WithRegistryLogger(logger),
	)
	if err := c.registry.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial extension scan: %w", err)
	}

	c.dispatcher = extension.NewDispatcher(c.registry,
		extension.WithDispatchSettings(settings, extension.SettingsPolicy(cfg.Dispatch.SettingsPolicy)),
		extension.WithTimeout(cfg.Dispatch.Timeout),
		extension.WithRateLimit(cfg.Dispatch.RateLimitRPS, cfg.Dispatch.RateLimitBurst),
		extension.WithDispatchObserver(observer),
		extension.WithDispatchLogger(logger),
	)

	ps, err := prompts.NewStore(cfg.Prompts.BaseDir, logger)
	if err != nil {
		return nil, err
	}
	c.prompts = ps

	if err := c.openAgentStore(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *components) openAgentStore(ctx context.Context, cfg *config.Config) error {
	storeType := agentconfig.StoreType(cfg.Agents.Store)
	needCache := storeType == agentconfig.StoreTypeRedis ||
		(storeType == agentconfig.StoreTypeDatabase && cfg.Agents.CacheTTL > 0)

	if storeType == agentconfig.StoreTypeDatabase {
		pm, err := database.Open(cfg.Database, c.logger)
		if err != nil {
			return err
		}
		c.db = pm
	}

	if needCache {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.Redis.Addr
		cacheCfg.Password = cfg.Redis.Password
		cacheCfg.DB = cfg.Redis.DB
		cacheCfg.KeyPrefix = cfg.Redis.KeyPrefix
		cacheCfg.PoolSize = cfg.Redis.PoolSize
		cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns
		mgr, err := cache.NewManager(cacheCfg, c.logger)
		if err != nil {
			return err
		}
		c.cache = mgr
	}

	storeCfg := agentconfig.StoreConfig{
		Type:      storeType,
		KeyPrefix: cfg.Redis.KeyPrefix,
		CacheTTL:  cfg.Agents.CacheTTL,
		Logger:    c.logger,
	}
	if c.db != nil {
		storeCfg.DB = c.db.DB()
	}
	if c.cache != nil {
		storeCfg.Redis = c.cache.Client()
		if storeType == agentconfig.StoreTypeDatabase {
			storeCfg.Cache = c.cache
		}
	}

	store, err := agentconfig.NewStore(storeCfg)
	if err != nil {
		return err
	}
	if err := agentconfig.Seed(ctx, store, cfg.Agents.Static); err != nil {
		return err
	}
	c.agents = store

	c.logger.Info("agent store ready",
		zap.String("store", string(storeType)),
		zap.Int("static_agents", len(cfg.Agents.Static)))
	return nil
}

// Close 释放数据库与 Redis 连接
func (c *components) Close() error {
	var errs []error
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}
