package agentconfig

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/internal/cache"
	"github.com/BaSui01/agentcmd/types"
)

// Cache is the subset of cache.Manager used by CachedStore.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedStore adds a read-through cache in front of another Store. Writes go
// to the inner store first and then invalidate the cached entry.
type CachedStore struct {
	inner  Store
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore wraps inner with c.
func NewCachedStore(inner Store, c Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "agent_config_cache")),
	}
}

func cacheKey(agent string) string {
	return "agentcfg:cache:" + agent
}

func (s *CachedStore) Get(ctx context.Context, agent string) (types.CommandConfig, error) {
	var flags map[string]bool
	err := s.cache.GetJSON(ctx, cacheKey(agent), &flags)
	if err == nil {
		return toConfig(flags), nil
	}
	if !cache.IsCacheMiss(err) {
		s.logger.Warn("agent config cache read failed", zap.String("agent", agent), zap.Error(err))
	}

	cfg, err := s.inner.Get(ctx, agent)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, cacheKey(agent), normalize(cfg), s.ttl); err != nil {
		s.logger.Warn("agent config cache write failed", zap.String("agent", agent), zap.Error(err))
	}
	return cfg, nil
}

func (s *CachedStore) Put(ctx context.Context, agent string, cfg types.CommandConfig) error {
	if err := s.inner.Put(ctx, agent, cfg); err != nil {
		return err
	}
	s.invalidate(ctx, agent)
	return nil
}

func (s *CachedStore) SetCommand(ctx context.Context, agent, command string, enabled bool) error {
	if err := s.inner.SetCommand(ctx, agent, command, enabled); err != nil {
		return err
	}
	s.invalidate(ctx, agent)
	return nil
}

func (s *CachedStore) List(ctx context.Context) ([]string, error) {
	return s.inner.List(ctx)
}

func (s *CachedStore) Delete(ctx context.Context, agent string) error {
	if err := s.inner.Delete(ctx, agent); err != nil {
		return err
	}
	s.invalidate(ctx, agent)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, agent string) {
	if err := s.cache.Delete(ctx, cacheKey(agent)); err != nil {
		s.logger.Warn("agent config cache invalidation failed", zap.String("agent", agent), zap.Error(err))
	}
}
