package draftstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/salon-pos/internal/domain/session"
)

var _ session.DraftStore = (*Memory)(nil)

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is a process-local store used when no Redis URL is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: map[string]memEntry{}, now: time.Now}
}

// Save implements session.DraftStore. A zero ttl never expires.
func (m *Memory) Save(_ context.Context, key string, data []byte, ttl time.Duration) error {
	e := memEntry{data: slices.Clone(data)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

// Load implements session.DraftStore.
func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	return slices.Clone(e.data), nil
}

// Delete implements session.DraftStore.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
