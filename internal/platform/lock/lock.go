// Package lock provides short-lived mutual-exclusion guards used to
// deduplicate concurrent processing of the same clinical event. Locks
// auto-expire after a fixed TTL so a crashed handler can never wedge a
// patient's pipeline.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL is the auto-expiry window for an acquired lock.
const DefaultTTL = 30 * time.Second

// Manager is the dedup lock contract. TryAcquire returns false when the key
// is already held; callers are expected to skip their work, not retry.
type Manager interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryManager is the single-process Manager implementation. Acquisition and
// the expiry timer are set up under one mutex, so two concurrent TryAcquire
// calls for the same key can never both succeed.
type MemoryManager struct {
	mu    sync.Mutex
	held  map[string]clockwork.Timer
	ttl   time.Duration
	clock clockwork.Clock
}

// NewMemoryManager creates a MemoryManager. A ttl of zero falls back to
// DefaultTTL.
func NewMemoryManager(ttl time.Duration, clock clockwork.Clock) *MemoryManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryManager{
		held:  make(map[string]clockwork.Timer),
		ttl:   ttl,
		clock: clock,
	}
}

func (m *MemoryManager) TryAcquire(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return false, nil
	}

	var t clockwork.Timer
	t = m.clock.AfterFunc(m.ttl, func() { m.expire(key, t) })
	m.held[key] = t
	return true, nil
}

// expire removes the key only if it is still guarded by the timer that
// scheduled this callback. A callback that lost the race against Release and
// a re-acquire must not evict the new holder.
func (m *MemoryManager) expire(key string, t clockwork.Timer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.held[key]; ok && cur == t {
		delete(m.held, key)
	}
}

func (m *MemoryManager) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if timer, ok := m.held[key]; ok {
		timer.Stop()
		delete(m.held, key)
	}
	return nil
}

// Held reports whether the key is currently locked.
func (m *MemoryManager) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
