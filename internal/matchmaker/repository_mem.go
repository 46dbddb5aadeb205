package matchmaker

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memRepo struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryRepo returns an in-process queue. Used when no redis address
// is configured, and in tests.
func NewMemoryRepo() Repo {
	return &memRepo{entries: make(map[string]time.Time)}
}

func (m *memRepo) Enqueue(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[userID]; !ok {
		m.entries[userID] = at
	}
	return nil
}

func (m *memRepo) Remove(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

func (m *memRepo) Contains(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[userID]
	return ok, nil
}

func (m *memRepo) Snapshot(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]Entry, 0, len(m.entries))
	for id, at := range m.entries {
		entries = append(entries, Entry{UserID: id, EnqueuedAt: at})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].EnqueuedAt.Equal(entries[j].EnqueuedAt) {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
	})
	return entries, nil
}
