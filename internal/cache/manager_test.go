package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr := miniredis.RunT(t)

	config := Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: 1 * time.Minute,
	}

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestManager_PrefixesKeys(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "agent:researcher", "v", 0))

	// 底层键带前缀
	raw, err := mr.Get("test:agent:researcher")
	require.NoError(t, err)
	assert.Equal(t, "v", raw)
	assert.False(t, mr.Exists("agent:researcher"))

	assert.Equal(t, "test:x", manager.Key("x"))
	assert.NotNil(t, manager.Client())
}

func TestManager_GetMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))
	assert.Empty(t, value)

	var dest map[string]any
	err = manager.GetJSON(context.Background(), "non-existent", &dest)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_DeleteMany(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", 0))
	require.NoError(t, manager.Set(ctx, "b", "2", 0))

	require.NoError(t, manager.Delete(ctx))
	require.NoError(t, manager.Delete(ctx, "a", "b"))

	_, err := manager.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
	_, err = manager.Get(ctx, "b")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	commands := map[string]bool{"Search Web": true, "Word Count": false}
	require.NoError(t, manager.SetJSON(ctx, "commands", commands, time.Minute))

	var got map[string]bool
	require.NoError(t, manager.GetJSON(ctx, "commands", &got))
	assert.Equal(t, commands, got)

	t.Run("unmarshalable value", func(t *testing.T) {
		err := manager.SetJSON(ctx, "bad", make(chan int), time.Minute)
		assert.Error(t, err)
	})

	t.Run("invalid stored json", func(t *testing.T) {
		require.NoError(t, manager.Set(ctx, "garbage", "not a json", time.Minute))
		var dest map[string]any
		err := manager.GetJSON(ctx, "garbage", &dest)
		require.Error(t, err)
		assert.False(t, IsCacheMiss(err))
	})
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "short", "value", 100*time.Millisecond))
	require.NoError(t, manager.Set(ctx, "default", "value", 0))

	// ttl 为 0 时使用默认过期时间
	assert.Equal(t, time.Minute, mr.TTL("test:default"))

	mr.FastForward(200 * time.Millisecond)
	_, err := manager.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))

	value, err := manager.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Ping(ctx))
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	assert.ErrorIs(t, manager.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
}

func TestManager_ConnectFailed(t *testing.T) {
	manager, err := NewManager(Config{Addr: "localhost:1"}, nil)
	assert.Nil(t, manager)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestManager_HealthCheckLoopStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:                mr.Addr(),
		HealthCheckInterval: 10 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, manager.Close())
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("concurrent-%d", id)
			assert.NoError(t, manager.Set(ctx, key, key, time.Minute))
			value, err := manager.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, key, value)
		}(i)
	}
	wg.Wait()
}
