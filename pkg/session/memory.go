package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type memoryEntry struct {
	state    []byte
	deadline time.Time
}

// MemoryStore keeps sessions in process memory. Suitable for a single instance;
// everything is lost on restart, which matches the store's own expiry contract.
type MemoryStore struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an in-memory store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	log.Info().Dur("ttl", ttl).Msg("Memory session store initialized")
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryStore) Get(_ context.Context, sid string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[sid]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.deadline) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(entry.state))
	copy(out, entry.state)
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, sid string, state []byte) error {
	doc := make([]byte, len(state))
	copy(doc, state)

	m.mu.Lock()
	m.entries[sid] = memoryEntry{
		state:    doc,
		deadline: time.Now().Add(m.ttl),
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	delete(m.entries, sid)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context) (int, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for sid, entry := range m.entries {
		if now.After(entry.deadline) {
			delete(m.entries, sid)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) Len(_ context.Context) (int, error) {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, entry := range m.entries {
		if !now.After(entry.deadline) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}
