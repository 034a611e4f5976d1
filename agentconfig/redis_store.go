package agentconfig

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentcmd/types"
)

// RedisStore keeps one hash per agent (command → "1"/"0") plus a set
// indexing agent names.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a store on client. An empty prefix defaults to "agentcmd:".
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "agentcmd:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "agentcfg:",
	}
}

// agentKey returns the hash key holding an agent's commands
func (s *RedisStore) agentKey(agent string) string {
	return s.keyPrefix + "agent:" + agent
}

// indexKey returns the set key listing every agent
func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "agents"
}

func (s *RedisStore) Get(ctx context.Context, agent string) (types.CommandConfig, error) {
	known, err := s.client.SIsMember(ctx, s.indexKey(), agent).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check agent %s: %w", agent, err)
	}
	if !known {
		return nil, notFound(agent)
	}

	fields, err := s.client.HGetAll(ctx, s.agentKey(agent)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load commands of %s: %w", agent, err)
	}

	cfg := make(types.CommandConfig, len(fields))
	for command, v := range fields {
		cfg[command] = v == "1"
	}
	return cfg, nil
}

func (s *RedisStore) Put(ctx context.Context, agent string, cfg types.CommandConfig) error {
	if err := validAgent(agent); err != nil {
		return err
	}

	flags := normalize(cfg)
	values := make(map[string]any, len(flags))
	for command, enabled := range flags {
		values[command] = flagValue(enabled)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.agentKey(agent))
		if len(values) > 0 {
			pipe.HSet(ctx, s.agentKey(agent), values)
		}
		pipe.SAdd(ctx, s.indexKey(), agent)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save agent %s: %w", agent, err)
	}
	return nil
}

func (s *RedisStore) SetCommand(ctx context.Context, agent, command string, enabled bool) error {
	if err := validAgent(agent); err != nil {
		return err
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.agentKey(agent), command, flagValue(enabled))
		pipe.SAdd(ctx, s.indexKey(), agent)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set command %s of %s: %w", command, agent, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Delete(ctx context.Context, agent string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.indexKey(), agent)
		pipe.Del(ctx, s.agentKey(agent))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete agent %s: %w", agent, err)
	}
	if removed.Val() == 0 {
		return notFound(agent)
	}
	return nil
}

func flagValue(enabled bool) string {
	if enabled {
		return "1"
	}
	return "0"
}
