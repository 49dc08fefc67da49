package guild

import (
	"context"
	"sort"
	"sync"
)

// Store persists guild configurations.
// Get returns Default(id) for a guild that has never been saved.
type Store interface {
	ListIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (Config, error)
	Put(ctx context.Context, cfg Config) error
}

// MemoryStore is an in-process Store. It is used in tests and when no
// database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewMemoryStore returns a store pre-loaded with cfgs.
func NewMemoryStore(cfgs ...Config) *MemoryStore {
	s := &MemoryStore{configs: make(map[string]Config, len(cfgs))}
	for _, c := range cfgs {
		c.Normalize()
		s.configs[c.ID] = c.Clone()
	}
	return s
}

func (s *MemoryStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok {
		return Default(id), nil
	}
	return c.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, cfg Config) error {
	cfg.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg.Clone()
	return nil
}
