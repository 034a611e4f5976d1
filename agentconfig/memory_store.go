package agentconfig

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/agentcmd/types"
)

// MemoryStore keeps configurations in process memory. Suitable for
// development and for agents declared statically in the config file.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]map[string]bool)}
}

func (s *MemoryStore) Get(_ context.Context, agent string) (types.CommandConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flags, ok := s.agents[agent]
	if !ok {
		return nil, notFound(agent)
	}
	return toConfig(flags), nil
}

func (s *MemoryStore) Put(_ context.Context, agent string, cfg types.CommandConfig) error {
	if err := validAgent(agent); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent] = normalize(cfg)
	return nil
}

func (s *MemoryStore) SetCommand(_ context.Context, agent, command string, enabled bool) error {
	if err := validAgent(agent); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flags, ok := s.agents[agent]
	if !ok {
		flags = make(map[string]bool)
		s.agents[agent] = flags
	}
	flags[command] = enabled
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Delete(_ context.Context, agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agent]; !ok {
		return notFound(agent)
	}
	delete(s.agents, agent)
	return nil
}
