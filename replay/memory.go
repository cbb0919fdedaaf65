package replay

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps episodes in memory. With a positive capacity the oldest
// episodes are dropped once more than capacity transitions are stored.
type MemoryStore struct {
	mu       sync.RWMutex
	episodes []Episode
	len      int
	capacity int
}

var _ Store = &MemoryStore{}

func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		episodes: make([]Episode, 0),
		capacity: capacity,
	}
}

func (m *MemoryStore) Append(_ context.Context, ep Episode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes = append(m.episodes, append(Episode(nil), ep...))
	m.len += len(ep)
	for m.capacity > 0 && m.len > m.capacity && len(m.episodes) > 1 {
		m.len -= len(m.episodes[0])
		m.episodes = m.episodes[1:]
	}
	return len(m.episodes) - 1, nil
}

func (m *MemoryStore) Episode(_ context.Context, i int) (Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.episodes) {
		return nil, fmt.Errorf("replay: episode %d: %w", i, ErrNoEpisode)
	}
	return append(Episode(nil), m.episodes[i]...), nil
}

func (m *MemoryStore) Episodes(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.episodes), nil
}

func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.len, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes = make([]Episode, 0)
	m.len = 0
	return nil
}
