package agentconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/agentcmd/types"
)

func newGormTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接独立，固定为单连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:"), mr
}

// storeFactories 为每种驱动构造一个全新的存储
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"gorm":   func(t *testing.T) Store { return newGormTestStore(t) },
		"redis": func(t *testing.T) Store {
			s, _ := newRedisTestStore(t)
			return s
		},
		"cached-memory": func(t *testing.T) Store {
			return NewCachedStore(NewMemoryStore(), newMapCache(), 0, nil)
		},
	}
}

// =============================================================================
// 🧪 存储契约测试
// =============================================================================

func TestStore_Contract(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("get unknown agent", func(t *testing.T) {
				s := factory(t)
				_, err := s.Get(context.Background(), "ghost")
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrAgentNotFound))
				assert.Equal(t, types.ErrAgentNotFound, types.GetErrorCode(err))
			})

			t.Run("put normalizes flags", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, "researcher", types.CommandConfig{
					"Search Web": true,
					"Word Count": "true",
					"Summarize":  "yes",
					"Delete All": false,
				}))

				cfg, err := s.Get(ctx, "researcher")
				require.NoError(t, err)
				assert.Equal(t, types.CommandConfig{
					"Search Web": true,
					"Word Count": true,
					"Summarize":  false,
					"Delete All": false,
				}, cfg)
			})

			t.Run("put replaces previous config", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, "a", types.CommandConfig{"X": true, "Y": true}))
				require.NoError(t, s.Put(ctx, "a", types.CommandConfig{"Y": false}))

				cfg, err := s.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, types.CommandConfig{"Y": false}, cfg)
			})

			t.Run("empty config still registers agent", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, "idle", nil))

				cfg, err := s.Get(ctx, "idle")
				require.NoError(t, err)
				assert.Empty(t, cfg)

				names, err := s.List(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"idle"}, names)
			})

			t.Run("set command upserts", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				require.NoError(t, s.SetCommand(ctx, "writer", "Count Words", true))
				require.NoError(t, s.SetCommand(ctx, "writer", "Search Web", true))
				require.NoError(t, s.SetCommand(ctx, "writer", "Count Words", false))

				cfg, err := s.Get(ctx, "writer")
				require.NoError(t, err)
				assert.False(t, cfg.Enabled("Count Words"))
				assert.True(t, cfg.Enabled("Search Web"))
				assert.Len(t, cfg, 2)
			})

			t.Run("list is sorted", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				names, err := s.List(ctx)
				require.NoError(t, err)
				assert.Empty(t, names)

				for _, agent := range []string{"zeta", "alpha", "mid"} {
					require.NoError(t, s.SetCommand(ctx, agent, "X", true))
				}
				names, err = s.List(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
			})

			t.Run("delete", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, "gone", types.CommandConfig{"X": true}))
				require.NoError(t, s.Delete(ctx, "gone"))

				_, err := s.Get(ctx, "gone")
				assert.True(t, errors.Is(err, ErrAgentNotFound))

				err = s.Delete(ctx, "gone")
				assert.True(t, errors.Is(err, ErrAgentNotFound))
			})

			t.Run("empty agent name rejected", func(t *testing.T) {
				s := factory(t)
				err := s.Put(context.Background(), "", types.CommandConfig{"X": true})
				assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
				err = s.SetCommand(context.Background(), "", "X", true)
				assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
			})
		})
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", types.CommandConfig{"X": true}))

	cfg, err := s.Get(ctx, "a")
	require.NoError(t, err)
	cfg["X"] = false

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, again.Enabled("X"))
}

func TestMemoryStore_ConcurrentWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SetCommand(ctx, "shared", fmt.Sprintf("cmd-%d", i), true))
		}(i)
	}
	wg.Wait()

	cfg, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, cfg, 20)
}

func TestRedisStore_Layout(t *testing.T) {
	s, mr := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "researcher", types.CommandConfig{"Search Web": true, "Count Words": false}))

	assert.Equal(t, "1", mr.HGet("test:agentcfg:agent:researcher", "Search Web"))
	assert.Equal(t, "0", mr.HGet("test:agentcfg:agent:researcher", "Count Words"))
	members, err := mr.Members("test:agentcfg:agents")
	require.NoError(t, err)
	assert.Equal(t, []string{"researcher"}, members)

	assert.Equal(t, "agentcmd:agentcfg:", NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "").keyPrefix)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	s, mr := newRedisTestStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "a")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAgentNotFound))
}

// =============================================================================
// 🧪 工厂与辅助函数
// =============================================================================

func TestNewStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     StoreConfig
		want    any
		wantErr string
	}{
		{name: "default", cfg: StoreConfig{}, want: &MemoryStore{}},
		{name: "memory", cfg: StoreConfig{Type: StoreTypeMemory}, want: &MemoryStore{}},
		{name: "database", cfg: StoreConfig{Type: StoreTypeDatabase, DB: db}, want: &GormStore{}},
		{name: "redis", cfg: StoreConfig{Type: StoreTypeRedis, Redis: client}, want: &RedisStore{}},
		{name: "cached", cfg: StoreConfig{Type: StoreTypeRedis, Redis: client, Cache: newMapCache(), CacheTTL: 1}, want: &CachedStore{}},
		{name: "cache without ttl", cfg: StoreConfig{Type: StoreTypeMemory, Cache: newMapCache()}, want: &MemoryStore{}},
		{name: "database without db", cfg: StoreConfig{Type: StoreTypeDatabase}, wantErr: "requires a gorm DB"},
		{name: "redis without client", cfg: StoreConfig{Type: StoreTypeRedis}, wantErr: "requires a redis client"},
		{name: "unknown", cfg: StoreConfig{Type: "etcd"}, wantErr: "unknown agent store type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestSeed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "researcher", types.CommandConfig{"Old": true}))

	err := Seed(ctx, s, map[string]types.CommandConfig{
		"researcher": {"Search Web": true},
		"writer":     {"Count Words": "true"},
	})
	require.NoError(t, err)

	cfg, err := s.Get(ctx, "researcher")
	require.NoError(t, err)
	assert.Equal(t, types.CommandConfig{"Search Web": true}, cfg)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"researcher", "writer"}, names)

	err = Seed(ctx, s, map[string]types.CommandConfig{"": {"X": true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed agent")
}

// staticFilter 按配置返回固定命令集合中启用的部分
type staticFilter []types.CommandDefinition

func (f staticFilter) FilterEnabled(cfg types.CommandConfig) []types.AvailableCommand {
	out := make([]types.AvailableCommand, 0)
	for _, def := range f {
		if cfg.Enabled(def.FriendlyName) {
			out = append(out, types.AvailableCommand{FriendlyName: def.FriendlyName, Name: def.FunctionName, Enabled: true})
		}
	}
	return out
}

func TestAvailableCommands(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "researcher", types.CommandConfig{"Search Web": true, "Count Words": false}))

	filter := staticFilter{
		{FriendlyName: "Count Words", FunctionName: "count_words"},
		{FriendlyName: "Search Web", FunctionName: "search"},
	}

	cmds, err := AvailableCommands(ctx, s, filter, "researcher")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "search", cmds[0].Name)

	_, err = AvailableCommands(ctx, s, filter, "nobody")
	assert.True(t, errors.Is(err, ErrAgentNotFound))
}
