package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationRegistry tracks tokens invalidated before their natural
// expiry. Implementations are injected into the service; callers must be
// able to share one registry across concurrent handlers.
type RevocationRegistry interface {
	// Revoke marks token as unusable for ttl (the token's remaining
	// lifetime). A non-positive ttl is a no-op: the token is already dead.
	Revoke(ctx context.Context, token string, ttl time.Duration) error

	// IsRevoked reports whether token was revoked and has not yet aged out.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// MemoryRegistry is a process-local registry guarded by a mutex. Entries
// carry the token's expiry so the map cannot grow past the set of live
// revocations; dead entries are swept on write.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRegistry returns an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryRegistry) Revoke(_ context.Context, token string, ttl time.Duration) error {
	if token == "" || ttl <= 0 {
		return nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, k)
		}
	}
	m.entries[token] = now.Add(ttl)
	return nil
}

func (m *MemoryRegistry) IsRevoked(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	m.mu.RLock()
	exp, ok := m.entries[token]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return exp.After(m.now()), nil
}
