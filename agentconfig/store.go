package agentconfig

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentcmd/types"
)

// ErrAgentNotFound is wrapped by every store when an agent has no configuration.
var ErrAgentNotFound = errors.New("agent not found")

// Store persists per-agent command configurations.
type Store interface {
	// Get returns the configuration of agent.
	Get(ctx context.Context, agent string) (types.CommandConfig, error)
	// Put replaces the whole configuration of agent.
	Put(ctx context.Context, agent string, cfg types.CommandConfig) error
	// SetCommand switches a single command for agent, creating the agent if needed.
	SetCommand(ctx context.Context, agent, command string, enabled bool) error
	// List returns all agent names in ascending order.
	List(ctx context.Context) ([]string, error)
	// Delete removes agent and its configuration.
	Delete(ctx context.Context, agent string) error
}

// StoreType selects a Store implementation.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeDatabase StoreType = "database"
	StoreTypeRedis    StoreType = "redis"
)

// StoreConfig carries what NewStore needs for each driver.
type StoreConfig struct {
	Type StoreType

	// DB backs StoreTypeDatabase.
	DB *gorm.DB
	// Redis backs StoreTypeRedis.
	Redis     *redis.Client
	KeyPrefix string

	// Cache, when set together with a positive CacheTTL, wraps the store in a CachedStore.
	Cache    Cache
	CacheTTL time.Duration

	Logger *zap.Logger
}

// NewStore creates a Store for cfg.Type.
func NewStore(cfg StoreConfig) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Type {
	case StoreTypeMemory, "":
		store = NewMemoryStore()
	case StoreTypeDatabase:
		if cfg.DB == nil {
			return nil, fmt.Errorf("database store requires a gorm DB")
		}
		store, err = NewGormStore(cfg.DB)
	case StoreTypeRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		store = NewRedisStore(cfg.Redis, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown agent store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Cache != nil && cfg.CacheTTL > 0 {
		store = NewCachedStore(store, cfg.Cache, cfg.CacheTTL, cfg.Logger)
	}
	return store, nil
}

// Seed writes each static configuration into store, replacing what is stored.
func Seed(ctx context.Context, store Store, static map[string]types.CommandConfig) error {
	agents := make([]string, 0, len(static))
	for name := range static {
		agents = append(agents, name)
	}
	sort.Strings(agents)

	for _, agent := range agents {
		if err := store.Put(ctx, agent, static[agent]); err != nil {
			return fmt.Errorf("seed agent %s: %w", agent, err)
		}
	}
	return nil
}

// Filter projects a CommandConfig onto the loaded commands.
type Filter interface {
	FilterEnabled(cfg types.CommandConfig) []types.AvailableCommand
}

// AvailableCommands resolves agent's configuration and returns the commands it may call.
func AvailableCommands(ctx context.Context, store Store, filter Filter, agent string) ([]types.AvailableCommand, error) {
	cfg, err := store.Get(ctx, agent)
	if err != nil {
		return nil, err
	}
	return filter.FilterEnabled(cfg), nil
}

// normalize converts every entry to a plain bool using CommandConfig.Enabled.
func normalize(cfg types.CommandConfig) map[string]bool {
	out := make(map[string]bool, len(cfg))
	for name := range cfg {
		out[name] = cfg.Enabled(name)
	}
	return out
}

func toConfig(flags map[string]bool) types.CommandConfig {
	cfg := make(types.CommandConfig, len(flags))
	for name, enabled := range flags {
		cfg[name] = enabled
	}
	return cfg
}

func validAgent(agent string) error {
	if agent == "" {
		return types.NewError(types.ErrInvalidRequest, "agent name is required").
			WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

func notFound(agent string) error {
	return types.NewError(types.ErrAgentNotFound, fmt.Sprintf("agent %s not found", agent)).
		WithCause(ErrAgentNotFound).
		WithHTTPStatus(http.StatusNotFound)
}
